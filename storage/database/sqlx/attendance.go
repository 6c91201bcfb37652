package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
)

type attendanceRepository struct {
	exec core.DBExecutor
}

var _ attendance.Repository = (*attendanceRepository)(nil) // interface compliance check

func NewAttendanceRepository(exec core.DBExecutor) *attendanceRepository {
	return &attendanceRepository{exec: exec}
}

func (repo attendanceRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 {
		return svcExec[0]
	}
	return repo.exec
}

func (repo attendanceRepository) CreateRecords(ctx context.Context, recs []attendance.Record, exec ...core.DBExecutor) ([]attendance.Record, error) {
	exe := repo.getExec(exec)

	query := exe.Rebind(`
		INSERT INTO attendance_record (id, student_id, class_id, session_date, status, marked_by, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	for i := range recs {
		recs[i].ID = uuid.New().String()
		rec := recs[i]
		_, err := exe.ExecContext(ctx, query,
			rec.ID, rec.StudentID, rec.ClassID, rec.SessionDate, rec.Status, rec.MarkedBy, rec.Notes,
			rec.CreatedAt.UTC(), rec.UpdatedAt.UTC(),
		)
		if err != nil {
			return nil, errors.Wrap(err, "inserting attendance record")
		}
	}
	return recs, nil
}

func (repo attendanceRepository) DeleteSession(ctx context.Context, classID string, date core.Date, exec ...core.DBExecutor) (int, error) {
	exe := repo.getExec(exec)

	query := exe.Rebind(`DELETE FROM attendance_record WHERE class_id = ? AND session_date = ?`)
	res, err := exe.ExecContext(ctx, query, classID, date)
	if err != nil {
		return 0, errors.Wrap(err, "deleting session records")
	}
	cnt, _ := res.RowsAffected()
	return int(cnt), nil
}

func (repo attendanceRepository) GetRecord(ctx context.Context, id string, exec ...core.DBExecutor) (attendance.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Record{}, attendance.ErrNotFound
	}
	exe := repo.getExec(exec)

	var rec attendance.Record
	if err := exe.GetContext(ctx, &rec, exe.Rebind(`SELECT * FROM attendance_record WHERE id = ?`), id); err != nil {
		if err == sql.ErrNoRows {
			return attendance.Record{}, attendance.ErrNotFound
		}
		return attendance.Record{}, errors.Wrap(err, "finding attendance record")
	}
	return rec, nil
}

func (repo attendanceRepository) UpdateRecord(ctx context.Context, rec attendance.Record, exec ...core.DBExecutor) (attendance.Record, error) {
	exe := repo.getExec(exec)

	query := exe.Rebind(`UPDATE attendance_record SET status = ?, notes = ?, updated_at = ? WHERE id = ?`)
	res, err := exe.ExecContext(ctx, query, rec.Status, rec.Notes, rec.UpdatedAt.UTC(), rec.ID)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "updating attendance record")
	}
	if cnt, err := res.RowsAffected(); err == nil && cnt == 0 {
		return attendance.Record{}, attendance.ErrNotFound
	}
	return rec, nil
}

// filterConds builds the WHERE conditions for filter's set fields.
func (repo attendanceRepository) filterConds(filter attendance.QueryFilter) ([]string, []interface{}) {
	var conds []string
	var args []interface{}

	if filter.StudentID != "" {
		conds = append(conds, `student_id = ?`)
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conds = append(conds, `class_id = ?`)
		args = append(args, filter.ClassID)
	}
	if len(filter.ClassIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(filter.ClassIDs)), ", ")
		conds = append(conds, `class_id IN (`+placeholders+`)`)
		for _, id := range filter.ClassIDs {
			args = append(args, id)
		}
	}
	if !filter.From.IsZero() {
		conds = append(conds, `session_date >= ?`)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conds = append(conds, `session_date <= ?`)
		args = append(args, filter.To)
	}
	return conds, args
}

func (repo attendanceRepository) FilterRecords(ctx context.Context, filter attendance.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]attendance.Record, error) {
	exe := repo.getExec(exec)

	query := `SELECT * FROM attendance_record`
	conds, args := repo.filterConds(filter)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += orderBy(ordering)

	recs := make([]attendance.Record, 0)
	if err := exe.SelectContext(ctx, &recs, exe.Rebind(query), args...); err != nil {
		return nil, errors.Wrap(err, "querying attendance records")
	}
	return recs, nil
}

func (repo attendanceRepository) CountByStatus(ctx context.Context, filter attendance.QueryFilter, exec ...core.DBExecutor) (attendance.StatusCounts, error) {
	exe := repo.getExec(exec)

	query := `
		SELECT COUNT(*)                                           AS total,
		       COUNT(*) FILTER (WHERE status = 'present')         AS present,
		       COUNT(*) FILTER (WHERE status = 'late')            AS late,
		       COUNT(*) FILTER (WHERE status = 'absent')          AS absent,
		       COUNT(*) FILTER (WHERE status = 'excused')         AS excused
		FROM attendance_record`
	conds, args := repo.filterConds(filter)
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}

	var counts attendance.StatusCounts
	if err := exe.GetContext(ctx, &counts, exe.Rebind(query), args...); err != nil {
		return attendance.StatusCounts{}, errors.Wrap(err, "counting attendance records")
	}
	return counts, nil
}

func (repo attendanceRepository) CountByStatusPerClass(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]attendance.ClassStatusCounts, error) {
	exe := repo.getExec(exec)

	// enrolled classes with no records yet still yield a zero-valued row
	query := exe.Rebind(`
		SELECT c.id                                                  AS class_id,
		       c.name                                                AS class_name,
		       COUNT(r.id)                                           AS total,
		       COUNT(r.id) FILTER (WHERE r.status = 'present')       AS present,
		       COUNT(r.id) FILTER (WHERE r.status = 'late')          AS late,
		       COUNT(r.id) FILTER (WHERE r.status = 'absent')        AS absent,
		       COUNT(r.id) FILTER (WHERE r.status = 'excused')       AS excused
		FROM enrollment e
		JOIN class c ON c.id = e.class_id
		LEFT JOIN attendance_record r ON r.class_id = c.id AND r.student_id = e.student_id
		WHERE e.student_id = ?
		GROUP BY c.id, c.name
		ORDER BY c.name ASC`)

	counts := make([]attendance.ClassStatusCounts, 0)
	if err := exe.SelectContext(ctx, &counts, query, studentID); err != nil {
		return nil, errors.Wrap(err, "counting attendance records per class")
	}
	return counts, nil
}
