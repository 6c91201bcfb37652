package school

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
)

// Class is one taught class; TeacherID references the owning instructor's
// user account and scopes roster writes.
type Class struct {
	ID        string      `json:"id" db:"id"`
	Name      string      `json:"name" db:"name"`
	Code      string      `json:"code" db:"code"`
	TeacherID null.String `json:"teacher_id" db:"teacher_id"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// OwnedBy reports whether teacherID is this class's instructor.
func (c *Class) OwnedBy(teacherID string) bool {
	return c.TeacherID.Valid && c.TeacherID.String == teacherID
}

type Student struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	StudentNo string    `json:"student_no" db:"student_no"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// NewClass contains information needed to create a new Class.
type NewClass struct {
	Name      string      `json:"name" validate:"required"`
	Code      string      `json:"code" validate:"required,alphanum_"`
	TeacherID null.String `json:"teacher_id"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Code = core.CleanString(nc.Code, true /* lower */)
	return validate.Struct(nc)
}

// UpdateClass defines what may be modified on an existing Class.
type UpdateClass struct {
	Name      string      `json:"name"`
	Code      string      `json:"code" validate:"omitempty,alphanum_"`
	TeacherID null.String `json:"teacher_id"`
}

func (uc *UpdateClass) Validate(validate *validator.Validate) error {
	uc.Name = core.CleanString(uc.Name)
	uc.Code = core.CleanString(uc.Code, true /* lower */)
	return validate.Struct(uc)
}

// NewStudent contains information needed to create a new Student.
type NewStudent struct {
	Name      string `json:"name" validate:"required"`
	StudentNo string `json:"student_no" validate:"required,alphanum_"`
}

func (ns *NewStudent) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.StudentNo = core.CleanString(ns.StudentNo, true /* lower */)
	return validate.Struct(ns)
}

// UpdateStudent defines what may be modified on an existing Student.
type UpdateStudent struct {
	Name      string `json:"name"`
	StudentNo string `json:"student_no" validate:"omitempty,alphanum_"`
}

func (us *UpdateStudent) Validate(validate *validator.Validate) error {
	us.Name = core.CleanString(us.Name)
	us.StudentNo = core.CleanString(us.StudentNo, true /* lower */)
	return validate.Struct(us)
}

type Repository interface {
	CreateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
	GetClass(ctx context.Context, id string, exec ...core.DBExecutor) (Class, error)
	QueryClasses(ctx context.Context, teacherID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Class, error)
	UpdateClass(ctx context.Context, cls Class, exec ...core.DBExecutor) (Class, error)
	DeleteClassesByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

	CreateStudent(ctx context.Context, std Student, exec ...core.DBExecutor) (Student, error)
	GetStudent(ctx context.Context, id string, exec ...core.DBExecutor) (Student, error)
	QueryStudents(ctx context.Context, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Student, error)
	UpdateStudent(ctx context.Context, std Student, exec ...core.DBExecutor) (Student, error)
	DeleteStudentsByID(ctx context.Context, ids []string, exec ...core.DBExecutor) (int, error)

	Enroll(ctx context.Context, classID string, studentIDs []string, exec ...core.DBExecutor) error
	Unenroll(ctx context.Context, classID, studentID string, exec ...core.DBExecutor) error
	// EnrolledStudentIDs lists the students currently on classID's roll.
	EnrolledStudentIDs(ctx context.Context, classID string, exec ...core.DBExecutor) ([]string, error)
	// StudentClasses lists the classes studentID is enrolled in, by class name.
	StudentClasses(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]Class, error)
}
