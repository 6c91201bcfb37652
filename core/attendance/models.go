package attendance

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
)

// Statuses a student can be marked with for one class session.
const (
	StatusPresent = "present"
	StatusLate    = "late"
	StatusAbsent  = "absent"
	StatusExcused = "excused"
)

var AllStatuses = []string{StatusPresent, StatusLate, StatusAbsent, StatusExcused}

// statusWeights drive the weighted attendance rate: excused absences still
// count toward the denominator, so they lower the rate like plain absences.
var statusWeights = map[string]float64{
	StatusPresent: 1,
	StatusLate:    .75,
	StatusAbsent:  0,
	StatusExcused: 0,
}

// Record is one student's attendance fact for one class session. At most one
// Record exists per (StudentID, ClassID, SessionDate): the Recorder's
// delete-then-insert protocol maintains this, and the table's unique
// constraint backs it up against concurrent writers.
type Record struct {
	ID          string      `json:"id" db:"id"`
	StudentID   string      `json:"student_id" db:"student_id"`
	ClassID     string      `json:"class_id" db:"class_id"`
	SessionDate core.Date   `json:"session_date" db:"session_date"`
	Status      string      `json:"status" db:"status"`
	MarkedBy    null.String `json:"marked_by" db:"marked_by"`
	Notes       null.String `json:"notes" db:"notes"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"` // UTC
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"` // UTC
}

// SessionEntry is one student's line in a roster submission.
type SessionEntry struct {
	StudentID string      `json:"student_id" validate:"required"`
	Status    string      `json:"status" validate:"required,attstatus"`
	Notes     null.String `json:"notes"`
}

// MarkSession is a roster-wide submission for one (class, session date) pair.
type MarkSession struct {
	ClassID     string         `json:"class_id" validate:"required"`
	SessionDate core.Date      `json:"date" validate:"required"`
	Entries     []SessionEntry `json:"entries" validate:"required,min=1,dive"`
}

func (ms *MarkSession) Validate(validate *validator.Validate) error {
	ms.ClassID = core.CleanString(ms.ClassID)
	for i := range ms.Entries {
		ms.Entries[i].StudentID = core.CleanString(ms.Entries[i].StudentID)
		ms.Entries[i].Status = core.CleanString(ms.Entries[i].Status, true /* lower */)
	}
	return validate.Struct(ms)
}

// UpdateRecord spot-corrects a single record's status/notes.
type UpdateRecord struct {
	Status string      `json:"status" validate:"required,attstatus"`
	Notes  null.String `json:"notes"`
}

func (ur *UpdateRecord) Validate(validate *validator.Validate) error {
	ur.Status = core.CleanString(ur.Status, true /* lower */)
	return validate.Struct(ur)
}

// QueryFilter narrows record/stats queries; all fields optional, combined
// with AND. An empty filter spans the whole log.
type QueryFilter struct {
	StudentID string    `query:"student_id"`
	ClassID   string    `query:"class_id"`
	From      core.Date `query:"from"`
	To        core.Date `query:"to"`

	// ClassIDs restricts to any of the given classes. Server-side only, set
	// after Clean to scope teachers to the classes they own.
	ClassIDs []string `query:"-"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.StudentID == "" && qf.ClassID == "" && len(qf.ClassIDs) == 0 &&
		qf.From.IsZero() && qf.To.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.StudentID = core.CleanString(qf.StudentID)
	qf.ClassID = core.CleanString(qf.ClassID)
	qf.ClassIDs = nil // never client-supplied
}

// StatusCounts is the raw per-status breakdown a Repository aggregates.
type StatusCounts struct {
	Total   int `db:"total"`
	Present int `db:"present"`
	Late    int `db:"late"`
	Absent  int `db:"absent"`
	Excused int `db:"excused"`
}

// ClassStatusCounts is StatusCounts for one class of a student, zero-valued
// for enrolled classes with no attendance rows yet.
type ClassStatusCounts struct {
	ClassID   string `db:"class_id"`
	ClassName string `db:"class_name"`
	StatusCounts
}

// Stats is the aggregate reported to callers. AttendanceRate is null (not 0,
// not NaN) when TotalRecords is 0.
type Stats struct {
	TotalRecords   int          `json:"total_records"`
	PresentCount   int          `json:"present_count"`
	LateCount      int          `json:"late_count"`
	AbsentCount    int          `json:"absent_count"`
	ExcusedCount   int          `json:"excused_count"`
	AttendanceRate null.Float64 `json:"attendance_rate"`
}

// ClassStats is Stats for one class a student is enrolled in.
type ClassStats struct {
	ClassID   string `json:"class_id"`
	ClassName string `json:"class_name"`
	Stats
}

type Repository interface {
	// CreateRecords inserts one row per record in order, generating IDs.
	CreateRecords(ctx context.Context, recs []Record, exec ...core.DBExecutor) ([]Record, error)
	// DeleteSession removes all records for the (classID, date) session.
	DeleteSession(ctx context.Context, classID string, date core.Date, exec ...core.DBExecutor) (int, error)
	GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (Record, error)
	UpdateRecord(ctx context.Context, rec Record, exec ...core.DBExecutor) (Record, error)
	// FilterRecords applies AND on the filter's set fields.
	FilterRecords(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Record, error)
	CountByStatus(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) (StatusCounts, error)
	// CountByStatusPerClass returns one row per class the student is enrolled
	// in (zero-valued when no records match), ordered by class name.
	CountByStatusPerClass(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]ClassStatusCounts, error)
}
