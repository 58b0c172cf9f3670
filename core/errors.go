package core

import (
	"fmt"

	"github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Field + ": " + err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// ConfigError reports a missing credential or setting.
type ConfigError struct {
	Key string
}

func NewConfigError(key string) error {
	return &ConfigError{Key: key}
}

func (err ConfigError) Error() string {
	return "missing configuration: " + err.Key
}

// ConflictError reports a remote record that exists with the expected key but cannot be adopted.
type ConflictError struct {
	Resource string
	Key      string
	Detail   string
}

func NewConflictError(resource, key, detail string) error {
	return &ConflictError{Resource: resource, Key: key, Detail: detail}
}

func (err ConflictError) Error() string {
	return fmt.Sprintf("%s %q conflict: %s", err.Resource, err.Key, err.Detail)
}

// RemoteError is any rejection returned by an external system.
type RemoteError struct {
	System   string
	Function string
	Status   int
	Code     string
	Message  string
}

func (err RemoteError) Error() string {
	msg := err.Message
	if msg == "" {
		msg = err.Code
	}
	if err.Function != "" {
		return fmt.Sprintf("%s error (%s): %s", err.System, err.Function, msg)
	}
	return fmt.Sprintf("%s error: %s", err.System, msg)
}

// DataError reports missing or inconsistent input data, naming the offending field.
type DataError struct {
	Field   string
	Message string
}

func NewDataError(field, msg string) error {
	return &DataError{Field: field, Message: msg}
}

func (err DataError) Error() string {
	return err.Field + ": " + err.Message
}

func IsConfigError(err error) bool {
	_, ok := errors.Cause(err).(*ConfigError)
	return ok
}

func IsConflict(err error) bool {
	_, ok := errors.Cause(err).(*ConflictError)
	return ok
}

func IsDataError(err error) bool {
	_, ok := errors.Cause(err).(*DataError)
	return ok
}

// AsRemoteError returns the *RemoteError at the root of err, if any.
func AsRemoteError(err error) (*RemoteError, bool) {
	rerr, ok := errors.Cause(err).(*RemoteError)
	return rerr, ok
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
