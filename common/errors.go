package common

import (
	"errors"
	"fmt"
)

// Error codes carried by TaskError.
const (
	CodeTask         = "TASK_ERROR"
	CodeSiteNotFound = "SITE_NOT_FOUND"
	CodeAborted      = "ABORTED"
)

// TaskError is returned when a task cannot run: bad pillar data, a failed
// validation or a refused confirmation. The message is meant for the person
// running the command.
type TaskError struct {
	Message string
	Code    string
}

func (e *TaskError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "task error"
}

// Is matches another TaskError by code. A target without a code matches any
// TaskError, so errors.Is(err, ErrTask) is true for every TaskError.
func (e *TaskError) Is(target error) bool {
	t, ok := target.(*TaskError)
	if !ok {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	ErrTask         = &TaskError{}
	ErrSiteNotFound = &TaskError{Code: CodeSiteNotFound}
	ErrAborted      = &TaskError{Code: CodeAborted}
)

// NewTaskError formats a TaskError with CodeTask.
func NewTaskError(format string, args ...interface{}) error {
	return &TaskError{Message: fmt.Sprintf(format, args...), Code: CodeTask}
}

// NewSiteNotFoundError formats a TaskError with CodeSiteNotFound.
func NewSiteNotFoundError(format string, args ...interface{}) error {
	return &TaskError{Message: fmt.Sprintf(format, args...), Code: CodeSiteNotFound}
}

// Abort formats a TaskError with CodeAborted.
func Abort(format string, args ...interface{}) error {
	return &TaskError{Message: fmt.Sprintf(format, args...), Code: CodeAborted}
}

// IsSiteNotFound reports whether err is, or wraps, a site-not-found error.
func IsSiteNotFound(err error) bool {
	return errors.Is(err, ErrSiteNotFound)
}
