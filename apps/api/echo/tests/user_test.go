package tests

import (
	"encoding/json"
	"net/http"
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"

	echoapi "github.com/trezcool/mahudhurio/apps/api/echo"
	"github.com/trezcool/mahudhurio/core/user"
	emailsvc "github.com/trezcool/mahudhurio/services/email"
	testutil "github.com/trezcool/mahudhurio/tests"
)

func Test_userApi_login(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, app.usrRepo, "Hero", "heroic", "hero@test.cd", "LetMeIn!", user.StudentRoles, true)
	testutil.CreateUser(t, app.usrRepo, "N Dog", "ndoggg", "ndog@test.cd", "LetMeIn!", user.StudentRoles, false)

	authFailed := marchallObj(t, httpErr{Error: "authentication failed"})

	tests := []httpTest{
		{
			name: "required fields", body: marchallObj(t, echoapi.LoginRequest{}), wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"username": "this field is required", "password": "this field is required"}),
		},
		{
			name: "unknown user", body: marchallObj(t, echoapi.LoginRequest{Username: "whodis", Password: "LetMeIn!"}),
			wantCode: http.StatusBadRequest, wantData: authFailed,
		},
		{
			name: "wrong password", body: marchallObj(t, echoapi.LoginRequest{Username: student.Username, Password: "nope"}),
			wantCode: http.StatusBadRequest, wantData: authFailed,
		},
		{
			name: "inactive account", body: marchallObj(t, echoapi.LoginRequest{Username: "ndoggg", Password: "LetMeIn!"}),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "login by email", body: marchallObj(t, echoapi.LoginRequest{Username: student.Email, Password: "LetMeIn!"}),
			wantCode: http.StatusOK,
		},
		{
			name: "login by username", body: marchallObj(t, echoapi.LoginRequest{Username: student.Username, Password: "LetMeIn!"}),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			app.server.ServeHTTP(rec, req)

			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %v", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal() failed: %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_refreshToken(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, app.usrRepo, "Hero", "heroic", "hero@test.cd", "", user.StudentRoles, true)
	naughty := testutil.CreateUser(t, app.usrRepo, "N Dog", "ndoggg", "ndog@test.cd", "", user.StudentRoles, false)

	now := time.Now()
	unrefreshableClaims := &echoapi.Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    app.conf.AppName,
			Subject:   student.ID,
			Audience:  "Shule",
			ExpiresAt: now.Add(app.conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		OrigIssuedAt: now.Add(-2 * app.conf.Server.JWTRefreshExpirationDelta).Unix(), // older than threshold
		Username:     student.Username,
		Email:        student.Email,
		IsStudent:    student.IsStudent(),
		Roles:        student.Roles,
	}
	unrefreshableToken, err := echoapi.GenerateToken(unrefreshableClaims)
	if err != nil {
		t.Fatalf("GenerateToken() failed: %v", err)
	}

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "inactive user not allowed", token: app.getToken(t, naughty),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name: "refresh period expired", token: unrefreshableToken,
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "refresh has expired"}),
		},
		{name: "token refreshed", token: app.getToken(t, student), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", tt.token, tt.body)
			app.server.ServeHTTP(rec, req)

			// cannot guess the new token.. just check that it's not empty
			if tt.wantCode == http.StatusOK {
				if rec.Code != tt.wantCode {
					t.Fatalf("failed! code = %v; wantCode %v; body %v", rec.Code, tt.wantCode, rec.Body.String())
				}
				var respData echoapi.LoginResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &respData); err != nil {
					t.Fatalf("json.Unmarshal() failed: %v", err)
				}
				if respData.Token == "" {
					t.Error("failed! empty token")
				}
				return
			}
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_passwordResetFlow(t *testing.T) {
	app := setup(t)

	student := testutil.CreateUser(t, app.usrRepo, "Hero", "heroic", "hero@test.cd", "0ldPassw0rd!", user.StudentRoles, true)
	emailsvc.SentMessages = emailsvc.SentMessages[:0]

	successData := marchallObj(t, echoapi.SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})

	// request a reset
	req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, echoapi.PasswordResetRequest{Email: student.Email}))
	app.server.ServeHTTP(rec, req)
	tt := httpTest{wantCode: http.StatusOK, wantData: successData}
	checkCodeAndData(t, tt, rec)

	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("expected 1 sent email, got %d", len(emailsvc.SentMessages))
	}
	sent := emailsvc.SentMessages[0]

	// pull the uid & token out of the reset link
	linkRegex := regexp.MustCompile(`/password-reset/([^/\s]+)/([^/\s]+)`)
	match := linkRegex.FindStringSubmatch(sent.TextContent)
	if match == nil {
		t.Fatalf("no reset link found in email:\n%s", sent.TextContent)
	}
	uid, token := match[1], match[2]

	// unknown email does not leak existence and sends nothing
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, echoapi.PasswordResetRequest{Email: "lol@test.cd"}))
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: successData}, rec)
	if len(emailsvc.SentMessages) != 1 {
		t.Fatalf("expected no new email, got %d", len(emailsvc.SentMessages))
	}

	// confirm with a bad token
	body := marchallObj(t, map[string]string{
		"uid": uid, "token": "bad-token", "password": "N3wPassw0rd!", "password_confirm": "N3wPassw0rd!",
	})
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("failed! code = %v; wantCode %v; body %v", rec.Code, http.StatusBadRequest, rec.Body.String())
	}

	// confirm with the real token
	body = marchallObj(t, map[string]string{
		"uid": uid, "token": token, "password": "N3wPassw0rd!", "password_confirm": "N3wPassw0rd!",
	})
	req, rec = newRequest(http.MethodPost, "/v1/users/password-reset-confirm", body)
	app.server.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: marchallObj(t, echoapi.SuccessResponse{Success: "Password has been reset with the new password."}),
	}, rec)

	// old password no longer works, new one does
	req, rec = newRequest(http.MethodPost, "/v1/users/login", marchallObj(t, echoapi.LoginRequest{Username: student.Username, Password: "0ldPassw0rd!"}))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("old password still accepted! code = %v", rec.Code)
	}
	req, rec = newRequest(http.MethodPost, "/v1/users/login", marchallObj(t, echoapi.LoginRequest{Username: student.Username, Password: "N3wPassw0rd!"}))
	app.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("new password rejected! code = %v; body %v", rec.Code, rec.Body.String())
	}
}

func Test_userApi_query(t *testing.T) {
	app := setup(t)

	usr1 := testutil.CreateUser(t, app.usrRepo, "Awe User", "aweuser", "awe@test.cd", "", nil, true)
	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "adminio", "admin@test.cd", "", user.AdminRoles, true)
	teacher := testutil.CreateUser(t, app.usrRepo, "Teacher", "teachy", "teacher@test.cd", "", user.TeacherRoles, true)
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "heroic", "hero@test.cd", "", user.StudentRoles, true)

	adminToken := app.getToken(t, admin)
	empty := []byte("[]") // handlers return an empty array, never null

	path := func(query url.Values) string {
		if len(query) == 0 {
			return "/v1/users"
		}
		return "/v1/users?" + query.Encode()
	}

	tests := []httpTest{
		{name: "auth required", path: path(nil), wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{
			name: "admin required", path: path(nil), token: app.getToken(t, student),
			wantCode: http.StatusForbidden, wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name: "get all", path: path(nil), token: adminToken,
			wantData: marchallList(t, admin, usr1, student, teacher), // ordered by username
		},
		{name: "search (unknown)", path: path(url.Values{"search": {"lol"}}), token: adminToken, wantData: empty},
		{name: "search", path: path(url.Values{"search": {"hero"}}), token: adminToken, wantData: marchallList(t, student)},
		{
			name: "role filter", path: path(url.Values{"role": {user.RoleTeacher}}), token: adminToken,
			wantData: marchallList(t, teacher),
		},
	}
	for _, tt := range tests {
		if tt.wantCode == 0 {
			tt.wantCode = http.StatusOK
		}
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_retrieve(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, app.usrRepo, "Admin", "adminio", "admin@test.cd", "", user.AdminRoles, true)
	student := testutil.CreateUser(t, app.usrRepo, "Hero", "heroic", "hero@test.cd", "", user.StudentRoles, true)
	other := testutil.CreateUser(t, app.usrRepo, "Other", "otherrr", "other@test.cd", "", user.StudentRoles, true)

	tests := []httpTest{
		{
			name: "admin can fetch anyone", path: "/v1/users/" + student.ID, token: app.getToken(t, admin),
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "own account", path: "/v1/users/" + student.ID, token: app.getToken(t, student),
			wantCode: http.StatusOK, wantData: marchallObj(t, student),
		},
		{
			name: "someone else's account is hidden", path: "/v1/users/" + other.ID, token: app.getToken(t, student),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name: "unknown user", path: "/v1/users/deadbeef", token: app.getToken(t, admin),
			wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, tt.path, tt.token, tt.body)
			app.server.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
