package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/trezcool/mahudhurio/core"
	"github.com/trezcool/mahudhurio/core/school"
	"github.com/trezcool/mahudhurio/core/user"
)

// NewTestConfig returns a Config suitable for tests; nothing is read from the
// environment.
func NewTestConfig() *core.Config {
	conf := new(core.Config)
	conf.TestMode = true
	conf.Env = "TEST"
	conf.AppName = "Mahudhurio"
	conf.SecretKey = []byte("secret")
	conf.PasswordResetTimeoutDelta = 3 * 24 * time.Hour
	conf.Server.JWTExpirationDelta = 7 * 24 * time.Hour
	conf.Server.JWTRefreshExpirationDelta = 4 * time.Hour
	return conf
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()

	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

func CreateClass(t *testing.T, repo school.Repository, name, code, teacherID string) school.Class {
	t.Helper()

	now := time.Now().UTC()
	cls := school.Class{
		Name:      name,
		Code:      code,
		TeacherID: null.NewString(teacherID, teacherID != ""),
		CreatedAt: now,
		UpdatedAt: now,
	}
	cls, err := repo.CreateClass(context.Background(), cls)
	if err != nil {
		t.Fatalf("CreateClass() failed: %v", err)
	}
	return cls
}

func CreateStudent(t *testing.T, repo school.Repository, name, studentNo string) school.Student {
	t.Helper()

	now := time.Now().UTC()
	std := school.Student{
		Name:      name,
		StudentNo: studentNo,
		CreatedAt: now,
		UpdatedAt: now,
	}
	std, err := repo.CreateStudent(context.Background(), std)
	if err != nil {
		t.Fatalf("CreateStudent() failed: %v", err)
	}
	return std
}

func Enroll(t *testing.T, repo school.Repository, classID string, studentIDs ...string) {
	t.Helper()

	if err := repo.Enroll(context.Background(), classID, studentIDs); err != nil {
		t.Fatalf("Enroll() failed: %v", err)
	}
}
