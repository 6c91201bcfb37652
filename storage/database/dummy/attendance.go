package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

var errForcedFailure = errors.New("forced insert failure")

type attendanceRepository struct {
	db         *attendanceTable
	class      *classTable
	enrollment *enrollmentTable
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{
		db:         db.attendance,
		class:      db.class,
		enrollment: db.enrollment,
	}
}

func (repo *attendanceRepository) CreateRecords(_ context.Context, recs []attendance.Record, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for i := range recs {
		if repo.db.failCreateAfter > 0 && i >= repo.db.failCreateAfter {
			return nil, errForcedFailure
		}
		recs[i].ID = uuid.New().String()
		repo.db.table[recs[i].ID] = recs[i]
	}
	return recs, nil
}

func (repo *attendanceRepository) DeleteSession(_ context.Context, classID string, date core.Date, _ ...core.DBExecutor) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cnt int
	for id, rec := range repo.db.table {
		if rec.ClassID == classID && rec.SessionDate.Equal(date) {
			delete(repo.db.table, id)
			cnt++
		}
	}
	return cnt, nil
}

func (repo *attendanceRepository) GetRecord(_ context.Context, id string, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if rec, ok := repo.db.table[id]; ok {
		return rec, nil
	}
	return attendance.Record{}, attendance.ErrNotFound
}

func (repo *attendanceRepository) UpdateRecord(_ context.Context, rec attendance.Record, _ ...core.DBExecutor) (attendance.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if _, ok := repo.db.table[rec.ID]; !ok {
		return attendance.Record{}, attendance.ErrNotFound
	}
	repo.db.table[rec.ID] = rec
	return rec, nil
}

func matches(rec attendance.Record, filter attendance.QueryFilter) bool {
	if filter.StudentID != "" && rec.StudentID != filter.StudentID {
		return false
	}
	if filter.ClassID != "" && rec.ClassID != filter.ClassID {
		return false
	}
	if len(filter.ClassIDs) > 0 {
		var found bool
		for _, id := range filter.ClassIDs {
			if rec.ClassID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.From.IsZero() && rec.SessionDate.Before(filter.From.Time) {
		return false
	}
	if !filter.To.IsZero() && rec.SessionDate.After(filter.To.Time) {
		return false
	}
	return true
}

func (repo *attendanceRepository) FilterRecords(_ context.Context, filter attendance.QueryFilter, ordering []core.DBOrdering, _ ...core.DBExecutor) ([]attendance.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]attendance.Record, 0)
	for _, rec := range repo.db.table {
		if matches(rec, filter) {
			recs = append(recs, rec)
		}
	}

	if len(ordering) > 0 && ordering[0].Field == "session_date" {
		asc := ordering[0].Ascending
		sort.Slice(recs, func(i, j int) bool {
			ri, rj := recs[i], recs[j]
			if !ri.SessionDate.Equal(rj.SessionDate) {
				if asc {
					return ri.SessionDate.Before(rj.SessionDate.Time)
				}
				return ri.SessionDate.After(rj.SessionDate.Time)
			}
			return ri.CreatedAt.After(rj.CreatedAt)
		})
	}
	return recs, nil
}

func (repo *attendanceRepository) CountByStatus(_ context.Context, filter attendance.QueryFilter, _ ...core.DBExecutor) (attendance.StatusCounts, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	var counts attendance.StatusCounts
	for _, rec := range repo.db.table {
		if !matches(rec, filter) {
			continue
		}
		counts.Total++
		switch rec.Status {
		case attendance.StatusPresent:
			counts.Present++
		case attendance.StatusLate:
			counts.Late++
		case attendance.StatusAbsent:
			counts.Absent++
		case attendance.StatusExcused:
			counts.Excused++
		}
	}
	return counts, nil
}

func (repo *attendanceRepository) CountByStatusPerClass(_ context.Context, studentID string, _ ...core.DBExecutor) ([]attendance.ClassStatusCounts, error) {
	repo.enrollment.RLock()
	repo.class.RLock()
	repo.db.RLock()
	defer repo.enrollment.RUnlock()
	defer repo.class.RUnlock()
	defer repo.db.RUnlock()

	counts := make([]attendance.ClassStatusCounts, 0)
	for classID, enrolled := range repo.enrollment.table {
		if _, ok := enrolled[studentID]; !ok {
			continue
		}
		cls, found := repo.class.table[classID]
		if !found {
			continue
		}

		classCounts := attendance.ClassStatusCounts{ClassID: classID, ClassName: cls.Name}
		for _, rec := range repo.db.table {
			if rec.StudentID != studentID || rec.ClassID != classID {
				continue
			}
			classCounts.Total++
			switch rec.Status {
			case attendance.StatusPresent:
				classCounts.Present++
			case attendance.StatusLate:
				classCounts.Late++
			case attendance.StatusAbsent:
				classCounts.Absent++
			case attendance.StatusExcused:
				classCounts.Excused++
			}
		}
		counts = append(counts, classCounts)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].ClassName < counts[j].ClassName })
	return counts, nil
}
