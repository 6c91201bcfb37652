package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
)

type schoolRepository struct {
	class      *classTable
	student    *studentTable
	enrollment *enrollmentTable
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{
		class:      db.class,
		student:    db.student,
		enrollment: db.enrollment,
	}
}

func (repo *schoolRepository) CreateClass(_ context.Context, cls school.Class, _ ...core.DBExecutor) (school.Class, error) {
	repo.class.Lock()
	defer repo.class.Unlock()

	for _, c := range repo.class.table {
		if c.Code == cls.Code {
			return school.Class{}, school.ErrCodeExists
		}
	}
	cls.ID = uuid.New().String()
	repo.class.table[cls.ID] = cls
	return cls, nil
}

func (repo *schoolRepository) GetClass(_ context.Context, id string, _ ...core.DBExecutor) (school.Class, error) {
	repo.class.RLock()
	defer repo.class.RUnlock()

	if cls, ok := repo.class.table[id]; ok {
		return cls, nil
	}
	return school.Class{}, school.ErrClassNotFound
}

func (repo *schoolRepository) QueryClasses(_ context.Context, teacherID string, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]school.Class, error) {
	repo.class.RLock()
	defer repo.class.RUnlock()

	classes := make([]school.Class, 0, len(repo.class.table))
	for _, cls := range repo.class.table {
		if teacherID != "" && !cls.OwnedBy(teacherID) {
			continue
		}
		classes = append(classes, cls)
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}

func (repo *schoolRepository) UpdateClass(_ context.Context, cls school.Class, _ ...core.DBExecutor) (school.Class, error) {
	repo.class.Lock()
	defer repo.class.Unlock()

	if _, ok := repo.class.table[cls.ID]; !ok {
		return school.Class{}, school.ErrClassNotFound
	}
	for id, c := range repo.class.table {
		if id != cls.ID && c.Code == cls.Code {
			return school.Class{}, school.ErrCodeExists
		}
	}
	repo.class.table[cls.ID] = cls
	return cls, nil
}

func (repo *schoolRepository) DeleteClassesByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.class.Lock()
	defer repo.class.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.class.table[id]; ok {
			delete(repo.class.table, id)
			cnt++
		}
	}
	return cnt, nil
}

func (repo *schoolRepository) CreateStudent(_ context.Context, std school.Student, _ ...core.DBExecutor) (school.Student, error) {
	repo.student.Lock()
	defer repo.student.Unlock()

	for _, s := range repo.student.table {
		if s.StudentNo == std.StudentNo {
			return school.Student{}, school.ErrStudentNoExists
		}
	}
	std.ID = uuid.New().String()
	repo.student.table[std.ID] = std
	return std, nil
}

func (repo *schoolRepository) GetStudent(_ context.Context, id string, _ ...core.DBExecutor) (school.Student, error) {
	repo.student.RLock()
	defer repo.student.RUnlock()

	if std, ok := repo.student.table[id]; ok {
		return std, nil
	}
	return school.Student{}, school.ErrStudentNotFound
}

func (repo *schoolRepository) QueryStudents(_ context.Context, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]school.Student, error) {
	repo.student.RLock()
	defer repo.student.RUnlock()

	students := make([]school.Student, 0, len(repo.student.table))
	for _, std := range repo.student.table {
		students = append(students, std)
	}
	sort.Slice(students, func(i, j int) bool { return students[i].Name < students[j].Name })
	return students, nil
}

func (repo *schoolRepository) UpdateStudent(_ context.Context, std school.Student, _ ...core.DBExecutor) (school.Student, error) {
	repo.student.Lock()
	defer repo.student.Unlock()

	if _, ok := repo.student.table[std.ID]; !ok {
		return school.Student{}, school.ErrStudentNotFound
	}
	for id, s := range repo.student.table {
		if id != std.ID && s.StudentNo == std.StudentNo {
			return school.Student{}, school.ErrStudentNoExists
		}
	}
	repo.student.table[std.ID] = std
	return std, nil
}

func (repo *schoolRepository) DeleteStudentsByID(_ context.Context, ids []string, _ ...core.DBExecutor) (int, error) {
	repo.student.Lock()
	defer repo.student.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := repo.student.table[id]; ok {
			delete(repo.student.table, id)
			cnt++
		}
	}
	return cnt, nil
}

func (repo *schoolRepository) Enroll(_ context.Context, classID string, studentIDs []string, _ ...core.DBExecutor) error {
	repo.enrollment.Lock()
	defer repo.enrollment.Unlock()

	enrolled, ok := repo.enrollment.table[classID]
	if !ok {
		enrolled = make(map[string]time.Time, len(studentIDs))
		repo.enrollment.table[classID] = enrolled
	}
	for _, id := range studentIDs {
		if _, ok = enrolled[id]; !ok {
			enrolled[id] = time.Now().UTC()
		}
	}
	return nil
}

func (repo *schoolRepository) Unenroll(_ context.Context, classID, studentID string, _ ...core.DBExecutor) error {
	repo.enrollment.Lock()
	defer repo.enrollment.Unlock()

	if enrolled, ok := repo.enrollment.table[classID]; ok {
		delete(enrolled, studentID)
	}
	return nil
}

func (repo *schoolRepository) EnrolledStudentIDs(_ context.Context, classID string, _ ...core.DBExecutor) ([]string, error) {
	repo.enrollment.RLock()
	defer repo.enrollment.RUnlock()

	enrolled := repo.enrollment.table[classID]
	ids := make([]string, 0, len(enrolled))
	for id := range enrolled {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (repo *schoolRepository) StudentClasses(_ context.Context, studentID string, _ ...core.DBExecutor) ([]school.Class, error) {
	repo.enrollment.RLock()
	repo.class.RLock()
	defer repo.enrollment.RUnlock()
	defer repo.class.RUnlock()

	classes := make([]school.Class, 0)
	for classID, enrolled := range repo.enrollment.table {
		if _, ok := enrolled[studentID]; !ok {
			continue
		}
		if cls, found := repo.class.table[classID]; found {
			classes = append(classes, cls)
		}
	}
	sort.Slice(classes, func(i, j int) bool { return classes[i].Name < classes[j].Name })
	return classes, nil
}
