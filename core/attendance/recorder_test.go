package attendance_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
	dummydb "github.com/trezcool/mahudhurio/storage/database/dummy"
	testutil "github.com/trezcool/mahudhurio/tests"
)

type recorderFixture struct {
	db       *dummydb.DB
	repo     attendance.Repository
	recorder *attendance.Recorder
	agg      *attendance.Aggregator

	admin   user.User
	teacher user.User // owns class
	other   user.User // another teacher
	student user.User

	class school.Class
	std1  school.Student
	std2  school.Student
	std3  school.Student
}

func newRecorderFixture(t *testing.T) *recorderFixture {
	t.Helper()

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	usrRepo := dummydb.NewUserRepository(db)
	schoolRepo := dummydb.NewSchoolRepository(db)
	attRepo := dummydb.NewAttendanceRepository(db)

	fix := &recorderFixture{
		db:       db,
		repo:     attRepo,
		recorder: attendance.NewRecorder(db, attRepo, school.NewService(schoolRepo)),
		agg:      attendance.NewAggregator(attRepo),

		admin:   testutil.CreateUser(t, usrRepo, "Head Master", "headmaster", "head@test.cd", "", user.AdminRoles, true),
		teacher: testutil.CreateUser(t, usrRepo, "Mr. Huruma", "huruma", "huruma@test.cd", "", user.TeacherRoles, true),
		other:   testutil.CreateUser(t, usrRepo, "Mrs. Zawadi", "zawadi", "zawadi@test.cd", "", user.TeacherRoles, true),
		student: testutil.CreateUser(t, usrRepo, "Eleza", "eleza", "eleza@test.cd", "", user.StudentRoles, true),
	}
	fix.class = testutil.CreateClass(t, schoolRepo, "Mathematics", "MATH101", fix.teacher.ID)
	fix.std1 = testutil.CreateStudent(t, schoolRepo, "Amani", "STD001")
	fix.std2 = testutil.CreateStudent(t, schoolRepo, "Baraka", "STD002")
	fix.std3 = testutil.CreateStudent(t, schoolRepo, "Chiku", "STD003")
	testutil.Enroll(t, schoolRepo, fix.class.ID, fix.std1.ID, fix.std2.ID, fix.std3.ID)
	return fix
}

func entry(studentID, status string) attendance.SessionEntry {
	return attendance.SessionEntry{StudentID: studentID, Status: status}
}

func TestRecorder_MarkSession(t *testing.T) {
	ctx := context.Background()
	date := core.NewDate(2021, 3, 15)

	t.Run("writes one record per entry", func(t *testing.T) {
		fix := newRecorderFixture(t)

		n, err := fix.recorder.MarkSession(ctx, fix.teacher, attendance.MarkSession{
			ClassID:     fix.class.ID,
			SessionDate: date,
			Entries: []attendance.SessionEntry{
				entry(fix.std1.ID, attendance.StatusPresent),
				entry(fix.std2.ID, attendance.StatusLate),
				{StudentID: fix.std3.ID, Status: attendance.StatusAbsent, Notes: null.StringFrom("sick")},
			},
		})
		if assert.NoError(t, err) {
			assert.Equal(t, 3, n)
		}

		recs, err := fix.agg.Records(ctx, attendance.QueryFilter{ClassID: fix.class.ID})
		assert.NoError(t, err)
		assert.Len(t, recs, 3)
		for _, rec := range recs {
			assert.NotEmpty(t, rec.ID)
			assert.Equal(t, fix.class.ID, rec.ClassID)
			assert.True(t, rec.SessionDate.Equal(date))
			assert.Equal(t, fix.teacher.ID, rec.MarkedBy.String)
		}
	})

	t.Run("re-marking replaces the whole roster", func(t *testing.T) {
		fix := newRecorderFixture(t)

		data := attendance.MarkSession{
			ClassID:     fix.class.ID,
			SessionDate: date,
			Entries: []attendance.SessionEntry{
				entry(fix.std1.ID, attendance.StatusAbsent),
				entry(fix.std2.ID, attendance.StatusAbsent),
			},
		}
		_, err := fix.recorder.MarkSession(ctx, fix.teacher, data)
		assert.NoError(t, err)

		// correction: same session, different statuses, extra student
		data.Entries = []attendance.SessionEntry{
			entry(fix.std1.ID, attendance.StatusPresent),
			entry(fix.std2.ID, attendance.StatusLate),
			entry(fix.std3.ID, attendance.StatusExcused),
		}
		n, err := fix.recorder.MarkSession(ctx, fix.teacher, data)
		if assert.NoError(t, err) {
			assert.Equal(t, 3, n)
		}

		recs, err := fix.agg.Records(ctx, attendance.QueryFilter{ClassID: fix.class.ID})
		assert.NoError(t, err)
		assert.Len(t, recs, 3) // no duplicate rows for the session

		statuses := make(map[string]string, len(recs))
		for _, rec := range recs {
			statuses[rec.StudentID] = rec.Status
		}
		assert.Equal(t, attendance.StatusPresent, statuses[fix.std1.ID])
		assert.Equal(t, attendance.StatusLate, statuses[fix.std2.ID])
		assert.Equal(t, attendance.StatusExcused, statuses[fix.std3.ID])
	})

	t.Run("does not clobber other sessions of the class", func(t *testing.T) {
		fix := newRecorderFixture(t)
		otherDate := core.NewDate(2021, 3, 16)

		_, err := fix.recorder.MarkSession(ctx, fix.teacher, attendance.MarkSession{
			ClassID:     fix.class.ID,
			SessionDate: date,
			Entries:     []attendance.SessionEntry{entry(fix.std1.ID, attendance.StatusPresent)},
		})
		assert.NoError(t, err)
		_, err = fix.recorder.MarkSession(ctx, fix.teacher, attendance.MarkSession{
			ClassID:     fix.class.ID,
			SessionDate: otherDate,
			Entries:     []attendance.SessionEntry{entry(fix.std1.ID, attendance.StatusAbsent)},
		})
		assert.NoError(t, err)

		recs, err := fix.agg.Records(ctx, attendance.QueryFilter{ClassID: fix.class.ID, From: date, To: date})
		assert.NoError(t, err)
		if assert.Len(t, recs, 1) {
			assert.Equal(t, attendance.StatusPresent, recs[0].Status)
		}
	})

	t.Run("duplicate student entries collapse to the last one", func(t *testing.T) {
		fix := newRecorderFixture(t)

		n, err := fix.recorder.MarkSession(ctx, fix.teacher, attendance.MarkSession{
			ClassID:     fix.class.ID,
			SessionDate: date,
			Entries: []attendance.SessionEntry{
				entry(fix.std1.ID, attendance.StatusAbsent),
				entry(fix.std2.ID, attendance.StatusPresent),
				entry(fix.std1.ID, attendance.StatusLate), // corrects the first line
			},
		})
		if assert.NoError(t, err) {
			assert.Equal(t, 2, n)
		}

		recs, err := fix.agg.Records(ctx, attendance.QueryFilter{StudentID: fix.std1.ID})
		assert.NoError(t, err)
		if assert.Len(t, recs, 1) {
			assert.Equal(t, attendance.StatusLate, recs[0].Status)
		}
	})

	t.Run("authorization", func(t *testing.T) {
		fix := newRecorderFixture(t)
		data := attendance.MarkSession{
			ClassID:     fix.class.ID,
			SessionDate: date,
			Entries:     []attendance.SessionEntry{entry(fix.std1.ID, attendance.StatusPresent)},
		}

		tests := []struct {
			name      string
			principal user.User
			wantErr   error
		}{
			{"admin can mark any class", fix.admin, nil},
			{"owning teacher can mark", fix.teacher, nil},
			{"other teacher cannot mark", fix.other, attendance.ErrNotClassOwner},
			{"student cannot mark", fix.student, attendance.ErrNotClassOwner},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := fix.recorder.MarkSession(ctx, tt.principal, data)
				if tt.wantErr == nil {
					assert.NoError(t, err)
				} else {
					assert.Equal(t, tt.wantErr, errors.Cause(err))
				}
			})
		}
	})

	t.Run("input errors", func(t *testing.T) {
		fix := newRecorderFixture(t)
		valid := func() attendance.MarkSession {
			return attendance.MarkSession{
				ClassID:     fix.class.ID,
				SessionDate: date,
				Entries:     []attendance.SessionEntry{entry(fix.std1.ID, attendance.StatusPresent)},
			}
		}

		tests := []struct {
			name      string
			mutate    func(*attendance.MarkSession)
			wantField string
		}{
			{"missing class id", func(ms *attendance.MarkSession) { ms.ClassID = "" }, "class_id"},
			{"missing date", func(ms *attendance.MarkSession) { ms.SessionDate = core.Date{} }, "date"},
			{"empty entries", func(ms *attendance.MarkSession) { ms.Entries = nil }, "entries"},
			{"unknown status", func(ms *attendance.MarkSession) { ms.Entries[0].Status = "presentee" }, "status"},
			{"not enrolled student", func(ms *attendance.MarkSession) { ms.Entries[0].StudentID = fix.student.ID }, "student_id"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				data := valid()
				tt.mutate(&data)
				_, err := fix.recorder.MarkSession(ctx, fix.admin, data)
				var vErr *core.ValidationError
				if assert.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err) {
					if assert.Len(t, vErr.Fields, 1) {
						assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
					}
				}
			})
		}

		t.Run("unknown class", func(t *testing.T) {
			data := valid()
			data.ClassID = "no-such-class"
			_, err := fix.recorder.MarkSession(ctx, fix.admin, data)
			assert.Equal(t, school.ErrClassNotFound, errors.Cause(err))
		})
	})

	t.Run("failed insert leaves the prior roster intact", func(t *testing.T) {
		fix := newRecorderFixture(t)

		_, err := fix.recorder.MarkSession(ctx, fix.teacher, attendance.MarkSession{
			ClassID:     fix.class.ID,
			SessionDate: date,
			Entries: []attendance.SessionEntry{
				entry(fix.std1.ID, attendance.StatusPresent),
				entry(fix.std2.ID, attendance.StatusPresent),
			},
		})
		assert.NoError(t, err)

		fix.db.FailCreateRecordsAfter(1)
		defer fix.db.FailCreateRecordsAfter(0)

		_, err = fix.recorder.MarkSession(ctx, fix.teacher, attendance.MarkSession{
			ClassID:     fix.class.ID,
			SessionDate: date,
			Entries: []attendance.SessionEntry{
				entry(fix.std1.ID, attendance.StatusAbsent),
				entry(fix.std2.ID, attendance.StatusAbsent),
				entry(fix.std3.ID, attendance.StatusAbsent),
			},
		})
		assert.Error(t, err)

		recs, err := fix.agg.Records(ctx, attendance.QueryFilter{ClassID: fix.class.ID})
		assert.NoError(t, err)
		assert.Len(t, recs, 2)
		for _, rec := range recs {
			assert.Equal(t, attendance.StatusPresent, rec.Status)
		}
	})
}

func TestRecorder_Update(t *testing.T) {
	ctx := context.Background()
	date := core.NewDate(2021, 3, 15)

	markOne := func(t *testing.T, fix *recorderFixture) attendance.Record {
		t.Helper()
		_, err := fix.recorder.MarkSession(ctx, fix.teacher, attendance.MarkSession{
			ClassID:     fix.class.ID,
			SessionDate: date,
			Entries:     []attendance.SessionEntry{entry(fix.std1.ID, attendance.StatusAbsent)},
		})
		if err != nil {
			t.Fatalf("MarkSession() failed: %v", err)
		}
		recs, err := fix.agg.Records(ctx, attendance.QueryFilter{ClassID: fix.class.ID})
		if err != nil || len(recs) != 1 {
			t.Fatalf("Records() failed: %v (%d records)", err, len(recs))
		}
		return recs[0]
	}

	t.Run("corrects status and notes", func(t *testing.T) {
		fix := newRecorderFixture(t)
		orig := markOne(t, fix)

		updated, err := fix.recorder.Update(ctx, fix.teacher, orig.ID, attendance.UpdateRecord{
			Status: attendance.StatusExcused,
			Notes:  null.StringFrom("doctor's note"),
		})
		if assert.NoError(t, err) {
			assert.Equal(t, orig.ID, updated.ID)
			assert.Equal(t, attendance.StatusExcused, updated.Status)
			assert.Equal(t, "doctor's note", updated.Notes.String)
			assert.True(t, updated.UpdatedAt.After(orig.UpdatedAt) || updated.UpdatedAt.Equal(orig.UpdatedAt))
		}

		got, err := fix.repo.GetRecord(ctx, orig.ID)
		assert.NoError(t, err)
		assert.Equal(t, attendance.StatusExcused, got.Status)
	})

	t.Run("admin may correct any class", func(t *testing.T) {
		fix := newRecorderFixture(t)
		orig := markOne(t, fix)

		_, err := fix.recorder.Update(ctx, fix.admin, orig.ID, attendance.UpdateRecord{Status: attendance.StatusPresent})
		assert.NoError(t, err)
	})

	t.Run("non-owner teacher is rejected", func(t *testing.T) {
		fix := newRecorderFixture(t)
		orig := markOne(t, fix)

		_, err := fix.recorder.Update(ctx, fix.other, orig.ID, attendance.UpdateRecord{Status: attendance.StatusPresent})
		assert.Equal(t, attendance.ErrNotClassOwner, errors.Cause(err))
	})

	t.Run("unknown record", func(t *testing.T) {
		fix := newRecorderFixture(t)

		_, err := fix.recorder.Update(ctx, fix.admin, "no-such-record", attendance.UpdateRecord{Status: attendance.StatusPresent})
		assert.Equal(t, attendance.ErrNotFound, errors.Cause(err))
	})

	t.Run("invalid status", func(t *testing.T) {
		fix := newRecorderFixture(t)
		orig := markOne(t, fix)

		_, err := fix.recorder.Update(ctx, fix.admin, orig.ID, attendance.UpdateRecord{Status: "tardy"})
		var vErr *core.ValidationError
		assert.True(t, errors.As(err, &vErr), "expected ValidationError, got %v", err)
	})
}
