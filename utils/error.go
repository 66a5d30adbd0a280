package utils

import (
	"errors"
	"fmt"
	"net/http"

	"gorm.io/gorm"
)

type ErrorCode string

const (
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeValidation        ErrorCode = "VALIDATION_ERROR"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeDependencyFailure ErrorCode = "DEPENDENCY_FAILURE"
)

// AppError is the error every exposed operation returns. Two AppErrors are the same error
// (for errors.Is) when their codes match.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

var (
	ErrorRecordNotFound  = &AppError{Code: CodeNotFound, Message: "record not found"}
	ErrValidation        = &AppError{Code: CodeValidation, Message: "validation failed"}
	ErrConflict          = &AppError{Code: CodeConflict, Message: "conflict"}
	ErrDependencyFailure = &AppError{Code: CodeDependencyFailure, Message: "dependency failure"}
)

func NotFound(format string, args ...any) error {
	return &AppError{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func ValidationError(format string, args ...any) error {
	return &AppError{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) error {
	return &AppError{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// DependencyFailure wraps an error returned by a collaborator (record source, database, notifier).
func DependencyFailure(err error, format string, args ...any) error {
	return &AppError{Code: CodeDependencyFailure, Message: fmt.Sprintf(format, args...), Err: err}
}

// DBError maps gorm's not-found to NOT_FOUND and anything else to DEPENDENCY_FAILURE.
// AppErrors pass through untouched.
func DBError(err error, what string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return NotFound("%s not found", what)
	}
	return DependencyFailure(err, "%s", what)
}

func ErrorCodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

func HTTPStatus(err error) int {
	switch ErrorCodeOf(err) {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeDependencyFailure:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
