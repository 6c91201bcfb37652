package attendance

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
)

var (
	// errors
	ErrNotFound      = errors.New("attendance record not found")
	ErrNotClassOwner = errors.New("this class is assigned to another teacher")
)

type (
	// RecorderInterface owns all roster writes.
	RecorderInterface interface {
		MarkSession(ctx context.Context, principal user.User, data MarkSession) (int, error)
		Update(ctx context.Context, principal user.User, recordID string, data UpdateRecord) (Record, error)
	}

	// Recorder atomically replaces the attendance roster for one
	// (class, session date) pair and spot-corrects single records.
	Recorder struct {
		db        core.DB
		repo      Repository
		schoolSvc school.ServiceInterface
	}
)

var _ RecorderInterface = (*Recorder)(nil)

func NewRecorder(db core.DB, repo Repository, schoolSvc school.ServiceInterface) *Recorder {
	return &Recorder{
		db:        db,
		repo:      repo,
		schoolSvc: schoolSvc,
	}
}

// MarkSession replaces the whole roster for (data.ClassID, data.SessionDate)
// with data.Entries in a single transaction: the previous records for the
// session are deleted and one row per entry is inserted, stamped with the
// principal and the current time. On any failure the prior roster is left
// untouched. Duplicate students within one submission collapse to the last
// occurrence. Returns the number of records written.
//
// Two concurrent calls for the same session are not ordered here: the last
// transaction to commit determines the final roster.
func (rec *Recorder) MarkSession(ctx context.Context, principal user.User, data MarkSession) (int, error) {
	// fail fast, before any store round-trip
	if data.ClassID == "" {
		return 0, core.NewFieldError("class_id", "this field is required")
	}
	if data.SessionDate.IsZero() {
		return 0, core.NewFieldError("date", "this field is required")
	}
	if len(data.Entries) == 0 {
		return 0, core.NewFieldError("entries", "at least one entry is required")
	}

	cls, err := rec.schoolSvc.GetClass(ctx, data.ClassID)
	if err != nil {
		return 0, err
	}
	if err = rec.authorize(principal, &cls); err != nil {
		return 0, err
	}

	enrolled, err := rec.enrolledSet(ctx, data.ClassID)
	if err != nil {
		return 0, err
	}

	// last occurrence of a student wins within one submission
	entries := make([]SessionEntry, 0, len(data.Entries))
	seen := make(map[string]int, len(data.Entries))
	for _, entry := range data.Entries {
		if _, ok := statusWeights[entry.Status]; !ok {
			return 0, core.NewFieldError("status", statusText)
		}
		if !enrolled[entry.StudentID] {
			return 0, core.NewFieldError("student_id", "student "+entry.StudentID+" is not enrolled in this class")
		}
		if i, ok := seen[entry.StudentID]; ok {
			entries[i] = entry
			continue
		}
		seen[entry.StudentID] = len(entries)
		entries = append(entries, entry)
	}

	now := time.Now().UTC()
	recs := make([]Record, 0, len(entries))
	for _, entry := range entries {
		recs = append(recs, Record{
			StudentID:   entry.StudentID,
			ClassID:     data.ClassID,
			SessionDate: data.SessionDate,
			Status:      entry.Status,
			MarkedBy:    null.StringFrom(principal.ID),
			Notes:       entry.Notes,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	err = rec.db.RunInTx(ctx, func(tx core.DBExecutor) error {
		if _, err := rec.repo.DeleteSession(ctx, data.ClassID, data.SessionDate, tx); err != nil {
			return errors.Wrap(err, "clearing previous roster")
		}
		if _, err := rec.repo.CreateRecords(ctx, recs, tx); err != nil {
			return errors.Wrap(err, "inserting roster")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

// Update corrects a single record's status/notes; ownership is checked
// through the record's class.
func (rec *Recorder) Update(ctx context.Context, principal user.User, recordID string, data UpdateRecord) (Record, error) {
	if _, ok := statusWeights[data.Status]; !ok {
		return Record{}, core.NewFieldError("status", statusText)
	}

	record, err := rec.repo.GetRecord(ctx, recordID)
	if err != nil {
		return Record{}, err
	}
	cls, err := rec.schoolSvc.GetClass(ctx, record.ClassID)
	if err != nil {
		return Record{}, err
	}
	if err = rec.authorize(principal, &cls); err != nil {
		return Record{}, err
	}

	record.Status = data.Status
	record.Notes = data.Notes
	record.UpdatedAt = time.Now().UTC()
	return rec.repo.UpdateRecord(ctx, record)
}

// authorize allows admins on any class and teachers on their own only.
func (rec *Recorder) authorize(principal user.User, cls *school.Class) error {
	if principal.IsAdmin() {
		return nil
	}
	if principal.IsTeacher() && cls.OwnedBy(principal.ID) {
		return nil
	}
	return ErrNotClassOwner
}

func (rec *Recorder) enrolledSet(ctx context.Context, classID string) (map[string]bool, error) {
	ids, err := rec.schoolSvc.EnrolledStudentIDs(ctx, classID)
	if err != nil {
		return nil, errors.Wrap(err, "fetching class enrollment")
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}
