package school

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
)

var (
	ErrClassNotFound   = errors.New("class not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrCodeExists      = errors.New("a class with this code already exists")
	ErrStudentNoExists = errors.New("a student with this number already exists")
)

type (
	ServiceInterface interface {
		CreateClass(ctx context.Context, nc NewClass) (Class, error)
		GetClass(ctx context.Context, id string) (Class, error)
		QueryClasses(ctx context.Context, teacherID string, ordering ...core.DBOrdering) ([]Class, error)
		UpdateClass(ctx context.Context, id string, uc UpdateClass) (Class, error)
		DeleteClasses(ctx context.Context, ids ...string) error

		CreateStudent(ctx context.Context, ns NewStudent) (Student, error)
		GetStudent(ctx context.Context, id string) (Student, error)
		QueryStudents(ctx context.Context, ordering ...core.DBOrdering) ([]Student, error)
		UpdateStudent(ctx context.Context, id string, us UpdateStudent) (Student, error)
		DeleteStudents(ctx context.Context, ids ...string) error

		Enroll(ctx context.Context, classID string, studentIDs ...string) error
		Unenroll(ctx context.Context, classID, studentID string) error
		EnrolledStudentIDs(ctx context.Context, classID string) ([]string, error)
		StudentClasses(ctx context.Context, studentID string) ([]Class, error)
	}

	service struct {
		repo Repository
	}
)

var _ ServiceInterface = (*service)(nil)

func NewService(repo Repository) ServiceInterface {
	return &service{repo: repo}
}

func (svc *service) CreateClass(ctx context.Context, nc NewClass) (Class, error) {
	now := time.Now().UTC()
	cls := Class{
		Name:      nc.Name,
		Code:      nc.Code,
		TeacherID: nc.TeacherID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cls, err := svc.repo.CreateClass(ctx, cls)
	return cls, codeConflictErr(err)
}

func (svc *service) GetClass(ctx context.Context, id string) (Class, error) {
	return svc.repo.GetClass(ctx, id)
}

func (svc *service) QueryClasses(ctx context.Context, teacherID string, ordering ...core.DBOrdering) ([]Class, error) {
	return svc.repo.QueryClasses(ctx, teacherID, ordering)
}

func (svc *service) UpdateClass(ctx context.Context, id string, uc UpdateClass) (Class, error) {
	cls, err := svc.repo.GetClass(ctx, id)
	if err != nil {
		return Class{}, err
	}
	if uc.Name != "" {
		cls.Name = uc.Name
	}
	if uc.Code != "" {
		cls.Code = uc.Code
	}
	if uc.TeacherID.Valid {
		cls.TeacherID = uc.TeacherID
	}
	cls.UpdatedAt = time.Now().UTC()
	cls, err = svc.repo.UpdateClass(ctx, cls)
	return cls, codeConflictErr(err)
}

func (svc *service) DeleteClasses(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteClassesByID(ctx, ids)
	return err
}

func (svc *service) CreateStudent(ctx context.Context, ns NewStudent) (Student, error) {
	now := time.Now().UTC()
	std := Student{
		Name:      ns.Name,
		StudentNo: ns.StudentNo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	std, err := svc.repo.CreateStudent(ctx, std)
	return std, codeConflictErr(err)
}

func (svc *service) GetStudent(ctx context.Context, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, id)
}

func (svc *service) QueryStudents(ctx context.Context, ordering ...core.DBOrdering) ([]Student, error) {
	return svc.repo.QueryStudents(ctx, ordering)
}

func (svc *service) UpdateStudent(ctx context.Context, id string, us UpdateStudent) (Student, error) {
	std, err := svc.repo.GetStudent(ctx, id)
	if err != nil {
		return Student{}, err
	}
	if us.Name != "" {
		std.Name = us.Name
	}
	if us.StudentNo != "" {
		std.StudentNo = us.StudentNo
	}
	std.UpdatedAt = time.Now().UTC()
	std, err = svc.repo.UpdateStudent(ctx, std)
	return std, codeConflictErr(err)
}

func (svc *service) DeleteStudents(ctx context.Context, ids ...string) error {
	_, err := svc.repo.DeleteStudentsByID(ctx, ids)
	return err
}

func (svc *service) Enroll(ctx context.Context, classID string, studentIDs ...string) error {
	if _, err := svc.repo.GetClass(ctx, classID); err != nil {
		return err
	}
	return svc.repo.Enroll(ctx, classID, studentIDs)
}

func (svc *service) Unenroll(ctx context.Context, classID, studentID string) error {
	return svc.repo.Unenroll(ctx, classID, studentID)
}

func (svc *service) EnrolledStudentIDs(ctx context.Context, classID string) ([]string, error) {
	return svc.repo.EnrolledStudentIDs(ctx, classID)
}

func (svc *service) StudentClasses(ctx context.Context, studentID string) ([]Class, error) {
	return svc.repo.StudentClasses(ctx, studentID)
}

// codeConflictErr converts the repos' uniqueness sentinels into user-fixable
// field errors; anything else passes through.
func codeConflictErr(err error) error {
	switch errors.Cause(err) {
	case ErrCodeExists:
		return core.NewFieldError("code", err.Error())
	case ErrStudentNoExists:
		return core.NewFieldError("student_no", err.Error())
	}
	return err
}
