package core

import "github.com/pkg/errors"

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports bad input; Fields, when set, are rendered per field.
// Err keeps the domain sentinel (ErrClassFull, ErrEmailExists...) so callers can still compare causes.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

// NewFieldError blames field for the domain error err.
func NewFieldError(field string, err error) error {
	return &ValidationError{Err: err, Fields: []FieldError{{Field: field, Error: err.Error()}}}
}

// InvalidField blames field with a plain message and no domain cause.
func InvalidField(field, msg string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Error: msg}}}
}

// AsValidationError unwraps err down to a *ValidationError.
func AsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
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

func (err ValidationError) Unwrap() error { return err.Err }

// FieldMessages maps each field to its error message.
func (err ValidationError) FieldMessages() map[string]string {
	msgs := make(map[string]string, len(err.Fields))
	for _, fErr := range err.Fields {
		msgs[fErr.Field] = fErr.Error
	}
	return msgs
}

// Message returns the error reported for field, if any.
func (err ValidationError) Message(field string) (string, bool) {
	for _, fErr := range err.Fields {
		if fErr.Field == field {
			return fErr.Error, true
		}
	}
	return "", false
}

type shutdown struct {
	message string
}

// NewShutdownError asks the API server to stop; the error handler signals it after answering.
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
