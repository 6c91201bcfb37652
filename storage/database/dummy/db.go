package dummydb

import (
	"context"
	"sync"
	"time"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
)

type (
	// DB is an in-memory store for tests. The embedded SQL surface is never
	// exercised by the dummy repositories; only RunInTx matters here.
	DB struct {
		core.DBExecutor

		mu         sync.Mutex // serializes transactions
		user       *userTable
		class      *classTable
		student    *studentTable
		enrollment *enrollmentTable
		attendance *attendanceTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]user.User
	}

	classTable struct {
		sync.RWMutex
		table map[string]school.Class
	}

	studentTable struct {
		sync.RWMutex
		table map[string]school.Student
	}

	enrollmentTable struct {
		sync.RWMutex
		table map[string]map[string]time.Time // class ID -> student ID -> enrolled at
	}

	attendanceTable struct {
		sync.RWMutex
		table map[string]attendance.Record

		failCreateAfter int // test hook; 0 disables
	}
)

var _ core.DB = (*DB)(nil)

func Open() (*DB, error) {
	db := &DB{
		user:       &userTable{table: make(map[string]user.User)},
		class:      &classTable{table: make(map[string]school.Class)},
		student:    &studentTable{table: make(map[string]school.Student)},
		enrollment: &enrollmentTable{table: make(map[string]map[string]time.Time)},
		attendance: &attendanceTable{table: make(map[string]attendance.Record)},
	}
	return db, nil
}

// RunInTx snapshots all tables, runs fn and restores the snapshot when fn
// returns an error, mirroring a rolled back transaction.
func (db *DB) RunInTx(_ context.Context, fn func(tx core.DBExecutor) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	userSnap := make(map[string]user.User, len(db.user.table))
	for id, usr := range db.user.table {
		userSnap[id] = usr
	}
	classSnap := make(map[string]school.Class, len(db.class.table))
	for id, cls := range db.class.table {
		classSnap[id] = cls
	}
	studentSnap := make(map[string]school.Student, len(db.student.table))
	for id, std := range db.student.table {
		studentSnap[id] = std
	}
	attendanceSnap := make(map[string]attendance.Record, len(db.attendance.table))
	for id, rec := range db.attendance.table {
		attendanceSnap[id] = rec
	}
	enrollmentSnap := make(map[string]map[string]time.Time, len(db.enrollment.table))
	for classID, students := range db.enrollment.table {
		enrolled := make(map[string]time.Time, len(students))
		for studentID, at := range students {
			enrolled[studentID] = at
		}
		enrollmentSnap[classID] = enrolled
	}

	if err := fn(db); err != nil {
		db.user.table = userSnap
		db.class.table = classSnap
		db.student.table = studentSnap
		db.attendance.table = attendanceSnap
		db.enrollment.table = enrollmentSnap
		return err
	}
	return nil
}

// FailCreateRecordsAfter makes subsequent CreateRecords calls fail after
// inserting n records. Pass 0 to disable.
func (db *DB) FailCreateRecordsAfter(n int) {
	db.attendance.Lock()
	defer db.attendance.Unlock()
	db.attendance.failCreateAfter = n
}
