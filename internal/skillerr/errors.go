// Package skillerr defines the error taxonomy shared by the policy gate,
// the gateway dispatcher and the skill handler.
package skillerr

import (
	"errors"
	"fmt"

	"github.com/askdba/dbquery-skill/internal/util"
)

// Code is the machine-readable error code placed in metadata.error.code.
type Code string

const (
	CodeMissingParameter      Code = "MISSING_PARAMETER"
	CodeInvalidParameter      Code = "INVALID_PARAMETER"
	CodeInvalidAction         Code = "INVALID_ACTION"
	CodeDatabaseNotAllowed    Code = "DATABASE_NOT_ALLOWED"
	CodeSQLNotAllowed         Code = "SQL_NOT_ALLOWED"
	CodeSQLInjectionDetected  Code = "SQL_INJECTION_DETECTED"
	CodeConfirmationRequired  Code = "CONFIRMATION_REQUIRED"
	CodeProviderNotConfigured Code = "PROVIDER_NOT_CONFIGURED"
	CodeTimeout               Code = "TIMEOUT"
	CodeUpstream              Code = "UPSTREAM_ERROR"
	CodeQueryFailed           Code = "QUERY_FAILED"
	CodeExecuteFailed         Code = "EXECUTE_FAILED"
	CodeDescribeFailed        Code = "DESCRIBE_FAILED"
	CodeListTablesFailed      Code = "LIST_TABLES_FAILED"
	CodeExplainFailed         Code = "EXPLAIN_FAILED"
	CodeOperationFailed       Code = "OPERATION_FAILED"
)

// Retriable reports whether a caller may retry a request that failed with
// this code without changing its input.
func (c Code) Retriable() bool {
	switch c {
	case CodeTimeout, CodeUpstream, CodeQueryFailed, CodeExecuteFailed,
		CodeDescribeFailed, CodeListTablesFailed, CodeExplainFailed:
		return true
	default:
		return false
	}
}

// Error is a classified skill failure.
type Error struct {
	Code      Code
	Message   string
	Retriable bool
	Findings  []util.InjectionFinding
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds an Error whose retriable flag follows the code.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Retriable: code.Retriable(),
	}
}

// Wrap builds an Error around an underlying cause.
func Wrap(code Code, err error, format string, args ...interface{}) *Error {
	e := New(code, format, args...)
	e.Err = err
	return e
}

// As extracts an *Error from err, if any.
func As(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code Code) bool {
	se, ok := As(err)
	return ok && se.Code == code
}
