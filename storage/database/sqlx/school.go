package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

type schoolRepository struct {
	exec core.DBExecutor
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(exec core.DBExecutor) *schoolRepository {
	return &schoolRepository{exec: exec}
}

func (repo schoolRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func orderBy(ordering []core.DBOrdering) string {
	if len(ordering) == 0 {
		return ""
	}
	orderList := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		orderList = append(orderList, ord.String())
	}
	return " ORDER BY " + strings.Join(orderList, ", ")
}

func (repo schoolRepository) CreateClass(ctx context.Context, cls school.Class, exec ...core.DBExecutor) (school.Class, error) {
	cls.ID = uuid.New().String()
	exe := repo.getExec(exec)

	query := exe.Rebind(`
		INSERT INTO class (id, name, code, teacher_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, query, cls.ID, cls.Name, cls.Code, cls.TeacherID, cls.CreatedAt.UTC(), cls.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return school.Class{}, school.ErrCodeExists
		}
		return school.Class{}, errors.Wrap(err, "inserting class")
	}
	return cls, nil
}

func (repo schoolRepository) GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (school.Class, error) {
	if _, err := uuid.Parse(id); err != nil {
		return school.Class{}, school.ErrClassNotFound
	}
	exe := repo.getExec(exec)

	var cls school.Class
	if err := exe.GetContext(ctx, &cls, exe.Rebind(`SELECT * FROM class WHERE id = ?`), id); err != nil {
		if err == sql.ErrNoRows {
			return school.Class{}, school.ErrClassNotFound
		}
		return school.Class{}, errors.Wrap(err, "finding class")
	}
	return cls, nil
}

func (repo schoolRepository) QueryClasses(ctx context.Context, teacherID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Class, error) {
	exe := repo.getExec(exec)

	query := `SELECT * FROM class`
	var args []interface{}
	if teacherID != "" {
		query += ` WHERE teacher_id = ?`
		args = append(args, teacherID)
	}
	query += orderBy(ordering)

	classes := make([]school.Class, 0)
	if err := exe.SelectContext(ctx, &classes, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying classes")
	}
	return classes, nil
}

func (repo schoolRepository) UpdateClass(ctx context.Context, cls school.Class, exec ...core.DBExecutor) (school.Class, error) {
	exe := repo.getExec(exec)

	query := exe.Rebind(`UPDATE class SET name = ?, code = ?, teacher_id = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, query, cls.Name, cls.Code, cls.TeacherID, cls.UpdatedAt.UTC(), cls.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return school.Class{}, school.ErrCodeExists
		}
		return school.Class{}, errors.Wrap(err, "updating class")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return school.Class{}, school.ErrClassNotFound
	}
	return cls, nil
}

func (repo schoolRepository) DeleteClassesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(`DELETE FROM class WHERE id = ANY(?)`), pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting classes")
	}
	cnt, _ := res.RowsAffected()
	return int(cnt), nil
}

func (repo schoolRepository) CreateStudent(ctx context.Context, std school.Student, exec ...core.DBExecutor) (school.Student, error) {
	std.ID = uuid.New().String()
	exe := repo.getExec(exec)

	query := exe.Rebind(`
		INSERT INTO student (id, name, student_no, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`)
	_, err := exe.ExecContext(ctx, query, std.ID, std.Name, std.StudentNo, std.CreatedAt.UTC(), std.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return school.Student{}, school.ErrStudentNoExists
		}
		return school.Student{}, errors.Wrap(err, "inserting student")
	}
	return std, nil
}

func (repo schoolRepository) GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (school.Student, error) {
	if _, err := uuid.Parse(id); err != nil {
		return school.Student{}, school.ErrStudentNotFound
	}
	exe := repo.getExec(exec)

	var std school.Student
	if err := exe.GetContext(ctx, &std, exe.Rebind(`SELECT * FROM student WHERE id = ?`), id); err != nil {
		if err == sql.ErrNoRows {
			return school.Student{}, school.ErrStudentNotFound
		}
		return school.Student{}, errors.Wrap(err, "finding student")
	}
	return std, nil
}

func (repo schoolRepository) QueryStudents(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.Student, error) {
	exe := repo.getExec(exec)

	students := make([]school.Student, 0)
	if err := exe.SelectContext(ctx, &students, `SELECT * FROM student`+orderBy(ordering)); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	return students, nil
}

func (repo schoolRepository) UpdateStudent(ctx context.Context, std school.Student, exec ...core.DBExecutor) (school.Student, error) {
	exe := repo.getExec(exec)

	query := exe.Rebind(`UPDATE student SET name = ?, student_no = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, query, std.Name, std.StudentNo, std.UpdatedAt.UTC(), std.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return school.Student{}, school.ErrStudentNoExists
		}
		return school.Student{}, errors.Wrap(err, "updating student")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return school.Student{}, school.ErrStudentNotFound
	}
	return std, nil
}

func (repo schoolRepository) DeleteStudentsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)
	res, err := exe.ExecContext(ctx, exe.Rebind(`DELETE FROM student WHERE id = ANY(?)`), pq.Array(ids))
	if err != nil {
		return 0, errors.Wrap(err, "deleting students")
	}
	cnt, _ := res.RowsAffected()
	return int(cnt), nil
}

func (repo schoolRepository) Enroll(ctx context.Context, classID string, studentIDs []string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)

	query := exe.Rebind(`
		INSERT INTO enrollment (class_id, student_id, created_at)
		SELECT ?, s.id, NOW() FROM student s WHERE s.id = ANY(?)
		ON CONFLICT DO NOTHING`)
	if _, err := exe.ExecContext(ctx, query, classID, pq.Array(studentIDs)); err != nil {
		return errors.Wrap(err, "enrolling students")
	}
	return nil
}

func (repo schoolRepository) Unenroll(ctx context.Context, classID, studentID string, exec ...core.DBExecutor) error {
	exe := repo.getExec(exec)

	query := exe.Rebind(`DELETE FROM enrollment WHERE class_id = ? AND student_id = ?`)
	if _, err := exe.ExecContext(ctx, query, classID, studentID); err != nil {
		return errors.Wrap(err, "unenrolling student")
	}
	return nil
}

func (repo schoolRepository) EnrolledStudentIDs(ctx context.Context, classID string, exec ...core.DBExecutor) ([]string, error) {
	exe := repo.getExec(exec)

	ids := make([]string, 0)
	query := exe.Rebind(`SELECT student_id FROM enrollment WHERE class_id = ?`)
	if err := exe.SelectContext(ctx, &ids, query, classID); err != nil {
		return nil, errors.Wrap(err, "listing enrolled students")
	}
	return ids, nil
}

func (repo schoolRepository) StudentClasses(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]school.Class, error) {
	exe := repo.getExec(exec)

	classes := make([]school.Class, 0)
	query := exe.Rebind(`
		SELECT c.* FROM class c
		JOIN enrollment e ON e.class_id = c.id
		WHERE e.student_id = ?
		ORDER BY c.name ASC`)
	if err := exe.SelectContext(ctx, &classes, query, studentID); err != nil {
		return nil, errors.Wrap(err, "listing student classes")
	}
	return classes, nil
}

// isUniqueViolation reports whether err is a psql unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
