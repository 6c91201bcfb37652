package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/volatiletech/null/v8"

	echoapi "github.com/trezcool/mahudhurio/apps/api/echo"
	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/attendance"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
	testutil "github.com/trezcool/mahudhurio/tests"
)

type attendanceFixture struct {
	*testApp

	admin   user.User
	teacher user.User
	other   user.User
	student user.User

	class school.Class
	std1  school.Student
	std2  school.Student
}

func setupAttendance(t *testing.T) *attendanceFixture {
	t.Helper()

	app := setup(t)
	fix := &attendanceFixture{
		testApp: app,

		admin:   testutil.CreateUser(t, app.usrRepo, "Head Master", "headmaster", "head@test.cd", "", user.AdminRoles, true),
		teacher: testutil.CreateUser(t, app.usrRepo, "Mr. Huruma", "huruma", "huruma@test.cd", "", user.TeacherRoles, true),
		other:   testutil.CreateUser(t, app.usrRepo, "Mrs. Zawadi", "zawadi", "zawadi@test.cd", "", user.TeacherRoles, true),
		student: testutil.CreateUser(t, app.usrRepo, "Eleza", "elezaa", "eleza@test.cd", "", user.StudentRoles, true),
	}
	fix.class = testutil.CreateClass(t, app.schoolRepo, "Mathematics", "MATH101", fix.teacher.ID)
	fix.std1 = testutil.CreateStudent(t, app.schoolRepo, "Amani", "STD001")
	fix.std2 = testutil.CreateStudent(t, app.schoolRepo, "Baraka", "STD002")
	testutil.Enroll(t, app.schoolRepo, fix.class.ID, fix.std1.ID, fix.std2.ID)
	return fix
}

func (fix *attendanceFixture) markBody(t *testing.T, date string, entries ...attendance.SessionEntry) []byte {
	t.Helper()

	d, err := core.ParseDate(date)
	if err != nil {
		t.Fatalf("ParseDate() failed: %v", err)
	}
	return marchallObj(t, attendance.MarkSession{ClassID: fix.class.ID, SessionDate: d, Entries: entries})
}

func Test_attendanceApi_markClass(t *testing.T) {
	fix := setupAttendance(t)
	path := "/v1/attendance/mark-class"

	okBody := fix.markBody(t, "2021-03-15",
		attendance.SessionEntry{StudentID: fix.std1.ID, Status: attendance.StatusPresent},
		attendance.SessionEntry{StudentID: fix.std2.ID, Status: attendance.StatusLate, Notes: null.StringFrom("bus broke down")},
	)

	tests := []httpTest{
		{name: "auth required", body: okBody, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "students not allowed", body: okBody, token: fix.getToken(t, fix.student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "non-owner teacher not allowed", body: okBody, token: fix.getToken(t, fix.other),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "this class is assigned to another teacher"}),
		},
		{
			name:  "invalid status",
			body:  fix.markBody(t, "2021-03-15", attendance.SessionEntry{StudentID: fix.std1.ID, Status: "chilling"}),
			token: fix.getToken(t, fix.teacher), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"status": "status must be one of: present, late, absent, excused"}),
		},
		{
			name:  "unenrolled student",
			body:  fix.markBody(t, "2021-03-15", attendance.SessionEntry{StudentID: fix.student.ID, Status: attendance.StatusPresent}),
			token: fix.getToken(t, fix.teacher), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"student_id": "student " + fix.student.ID + " is not enrolled in this class"}),
		},
		{
			name: "owning teacher marks the roster", body: okBody, token: fix.getToken(t, fix.teacher),
			wantCode: http.StatusOK, wantData: marchallObj(t, echoapi.MarkSessionResponse{RecordsWritten: 2}),
		},
		{
			name: "admin re-marks the same session", body: okBody, token: fix.getToken(t, fix.admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, echoapi.MarkSessionResponse{RecordsWritten: 2}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, path, tt.token, tt.body)
			fix.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("unknown class", func(t *testing.T) {
		body := marchallObj(t, attendance.MarkSession{
			ClassID:     "deadbeef",
			SessionDate: core.NewDate(2021, 3, 15),
			Entries:     []attendance.SessionEntry{{StudentID: fix.std1.ID, Status: attendance.StatusPresent}},
		})
		req, rec := newAuthRequest(http.MethodPost, path, fix.getToken(t, fix.admin), body)
		fix.server.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "class not found"}),
		}, rec)
	})

	// the re-mark replaced the roster, not duplicated it
	recs, err := fix.attRepo.FilterRecords(context.Background(), attendance.QueryFilter{ClassID: fix.class.ID}, nil)
	if err != nil {
		t.Fatalf("FilterRecords() failed: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("expected 2 records after re-mark, got %d", len(recs))
	}
}

func Test_attendanceApi_update(t *testing.T) {
	fix := setupAttendance(t)

	_, err := newRecordedSession(fix)
	if err != nil {
		t.Fatalf("marking session failed: %v", err)
	}
	recs, err := fix.attRepo.FilterRecords(context.Background(), attendance.QueryFilter{StudentID: fix.std1.ID}, nil)
	if err != nil || len(recs) != 1 {
		t.Fatalf("FilterRecords() failed: %v (%d records)", err, len(recs))
	}
	rec := recs[0]

	tests := []httpTest{
		{name: "auth required", path: "/v1/attendance/" + rec.ID, wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "unknown record", path: "/v1/attendance/deadbeef", token: fix.getToken(t, fix.admin),
			body:     marchallObj(t, attendance.UpdateRecord{Status: attendance.StatusExcused}),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "attendance record not found"}),
		},
		{
			name: "non-owner teacher not allowed", path: "/v1/attendance/" + rec.ID, token: fix.getToken(t, fix.other),
			body:     marchallObj(t, attendance.UpdateRecord{Status: attendance.StatusExcused}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "this class is assigned to another teacher"}),
		},
		{
			name: "owner corrects the record", path: "/v1/attendance/" + rec.ID, token: fix.getToken(t, fix.teacher),
			body:     marchallObj(t, attendance.UpdateRecord{Status: attendance.StatusExcused, Notes: null.StringFrom("doctor's note")}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rr := newAuthRequest(http.MethodPut, tt.path, tt.token, tt.body)
			fix.server.ServeHTTP(rr, req)

			if tt.wantCode == http.StatusOK {
				if rr.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %v", rr.Code, tt.wantCode, rr.Body.String())
				}
				var updated attendance.Record
				if err := json.Unmarshal(rr.Body.Bytes(), &updated); err != nil {
					t.Fatalf("json.Unmarshal() failed: %v", err)
				}
				if updated.Status != attendance.StatusExcused {
					t.Errorf("status = %v, want %v", updated.Status, attendance.StatusExcused)
				}
				if updated.Notes.String != "doctor's note" {
					t.Errorf("notes = %v, want doctor's note", updated.Notes.String)
				}
				return
			}
			checkCodeAndData(t, tt, rr)
		})
	}
}

func Test_attendanceApi_stats(t *testing.T) {
	fix := setupAttendance(t)

	if _, err := newRecordedSession(fix); err != nil {
		t.Fatalf("marking session failed: %v", err)
	}

	// second class owned by the other teacher, with one absent record
	bio := testutil.CreateClass(t, fix.schoolRepo, "Biology", "BIO101", fix.other.ID)
	testutil.Enroll(t, fix.schoolRepo, bio.ID, fix.std2.ID)
	recorder := attendance.NewRecorder(fix.db, fix.attRepo, school.NewService(fix.schoolRepo))
	if _, err := recorder.MarkSession(context.Background(), fix.admin, attendance.MarkSession{
		ClassID:     bio.ID,
		SessionDate: core.NewDate(2021, 3, 15),
		Entries:     []attendance.SessionEntry{{StudentID: fix.std2.ID, Status: attendance.StatusAbsent}},
	}); err != nil {
		t.Fatalf("marking session failed: %v", err)
	}

	idle := testutil.CreateUser(t, fix.usrRepo, "Mr. Mgeni", "mgeni", "mgeni@test.cd", "", user.TeacherRoles, true)

	mathStats := attendance.Stats{
		TotalRecords:   2,
		PresentCount:   1,
		LateCount:      1,
		AttendanceRate: null.Float64From(87.5), // (1 + 0.75) / 2 * 100
	}

	tests := []httpTest{
		{name: "auth required", path: "/v1/attendance/stats", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "students not allowed", path: "/v1/attendance/stats", token: fix.getToken(t, fix.student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "unscoped teacher sees their own classes only", path: "/v1/attendance/stats",
			token:    fix.getToken(t, fix.teacher),
			wantCode: http.StatusOK, wantData: marchallObj(t, mathStats),
		},
		{
			name: "teacher with no classes gets an empty aggregate", path: "/v1/attendance/stats",
			token:    fix.getToken(t, idle),
			wantCode: http.StatusOK, wantData: marchallObj(t, attendance.Stats{}),
		},
		{
			name: "teacher cannot read another teacher's class", path: "/v1/attendance/stats?class_id=" + fix.class.ID,
			token:    fix.getToken(t, fix.other),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "owning teacher reads class stats", path: "/v1/attendance/stats?class_id=" + fix.class.ID,
			token:    fix.getToken(t, fix.teacher),
			wantCode: http.StatusOK, wantData: marchallObj(t, mathStats),
		},
		{
			name: "admin reads school-wide stats", path: "/v1/attendance/stats", token: fix.getToken(t, fix.admin),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, attendance.Stats{
				TotalRecords:   3,
				PresentCount:   1,
				LateCount:      1,
				AbsentCount:    1,
				AttendanceRate: null.Float64From(58.3), // (1 + 0.75) / 3 * 100, rounded half up
			}),
		},
		{
			name: "admin scopes by student and date range",
			path: "/v1/attendance/stats?student_id=" + fix.std1.ID + "&from=2021-03-01&to=2021-03-31",
			token:    fix.getToken(t, fix.admin),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, attendance.Stats{TotalRecords: 1, PresentCount: 1, AttendanceRate: null.Float64From(100.0)}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rr := newAuthRequest(http.MethodGet, tt.path, tt.token, tt.body)
			fix.server.ServeHTTP(rr, req)
			checkCodeAndData(t, tt, rr)
		})
	}
}

func Test_attendanceApi_studentRecords(t *testing.T) {
	fix := setupAttendance(t)

	if _, err := newRecordedSession(fix); err != nil {
		t.Fatalf("marking session failed: %v", err)
	}

	t.Run("unknown student", func(t *testing.T) {
		req, rr := newAuthRequest(http.MethodGet, "/v1/attendance/students/deadbeef", fix.getToken(t, fix.teacher))
		fix.server.ServeHTTP(rr, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "student not found"}),
		}, rr)
	})

	t.Run("records with summary", func(t *testing.T) {
		req, rr := newAuthRequest(http.MethodGet, "/v1/attendance/students/"+fix.std1.ID, fix.getToken(t, fix.teacher))
		fix.server.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %v", rr.Code, rr.Body.String())
		}

		var respData echoapi.StudentRecordsResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &respData); err != nil {
			t.Fatalf("json.Unmarshal() failed: %v", err)
		}
		if len(respData.Records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(respData.Records))
		}
		if respData.Records[0].StudentID != fix.std1.ID {
			t.Errorf("student_id = %v, want %v", respData.Records[0].StudentID, fix.std1.ID)
		}
		if respData.Summary.TotalRecords != 1 {
			t.Errorf("total_records = %v, want 1", respData.Summary.TotalRecords)
		}
		if !respData.Summary.AttendanceRate.Valid || respData.Summary.AttendanceRate.Float64 != 100.0 {
			t.Errorf("attendance_rate = %+v, want 100", respData.Summary.AttendanceRate)
		}
	})
}

func Test_attendanceApi_studentStatsByClass(t *testing.T) {
	fix := setupAttendance(t)

	// second class, never marked
	bio := testutil.CreateClass(t, fix.schoolRepo, "Biology", "BIO101", fix.other.ID)
	testutil.Enroll(t, fix.schoolRepo, bio.ID, fix.std1.ID)

	if _, err := newRecordedSession(fix); err != nil {
		t.Fatalf("marking session failed: %v", err)
	}

	req, rr := newAuthRequest(http.MethodGet, "/v1/attendance/students/"+fix.std1.ID+"/by-class", fix.getToken(t, fix.admin))
	fix.server.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("failed! code = %v; body %v", rr.Code, rr.Body.String())
	}

	var stats []attendance.ClassStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v", err)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 classes, got %d", len(stats))
	}
	// ordered by class name
	if stats[0].ClassName != "Biology" || stats[1].ClassName != "Mathematics" {
		t.Errorf("unexpected class order: %v, %v", stats[0].ClassName, stats[1].ClassName)
	}
	if stats[0].TotalRecords != 0 || stats[0].AttendanceRate.Valid {
		t.Errorf("expected zero counts and a null rate for the unmarked class, got %+v", stats[0].Stats)
	}
	if stats[1].TotalRecords != 1 {
		t.Errorf("total_records = %v, want 1", stats[1].TotalRecords)
	}
}

// newRecordedSession writes one session via the recorder: std1 present, std2 late.
func newRecordedSession(fix *attendanceFixture) (int, error) {
	recorder := attendance.NewRecorder(fix.db, fix.attRepo, school.NewService(fix.schoolRepo))
	return recorder.MarkSession(context.Background(), fix.admin, attendance.MarkSession{
		ClassID:     fix.class.ID,
		SessionDate: core.NewDate(2021, 3, 15),
		Entries: []attendance.SessionEntry{
			{StudentID: fix.std1.ID, Status: attendance.StatusPresent},
			{StudentID: fix.std2.ID, Status: attendance.StatusLate},
		},
	})
}
