package lms

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/edtools/edcore/core"
)

var ErrUserNotFound = errors.New("lms user not found")

// Client is the remote LMS API.
type Client interface {
	Categories(ctx context.Context) ([]Category, error)
	CreateCategory(ctx context.Context, cat NewCategory) (int64, error)
	Courses(ctx context.Context) ([]Course, error)
	CreateCourse(ctx context.Context, crs NewCourse) (int64, error)
	// UserByEmail returns ErrUserNotFound when no user has the email.
	UserByEmail(ctx context.Context, email string) (User, error)
	CreateUser(ctx context.Context, usr NewUser) (int64, error)
	UpdateUserIDNumber(ctx context.Context, userID int64, idnumber string) error
	Enrol(ctx context.Context, enrol Enrolment) error
}

var (
	duplicateCodes = map[string]bool{
		"duplicateidnumber":     true,
		"courseidnumbertaken":   true,
		"shortnametaken":        true,
		"categoryidnumbertaken": true,
		"alreadyenrolled":       true,
	}
	duplicateMessages = []string{
		"duplicate idnumber",
		"already exists",
		"already enrolled",
		"already taken",
	}
)

// IsDuplicate reports whether err is the remote rejection of a record that already exists.
func IsDuplicate(err error) bool {
	rerr, ok := core.AsRemoteError(err)
	if !ok {
		return false
	}
	if duplicateCodes[strings.ToLower(rerr.Code)] {
		return true
	}
	msg := strings.ToLower(rerr.Message)
	for _, m := range duplicateMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
