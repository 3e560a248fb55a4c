package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error taxonomy. Pipeline stages, the lifecycle controller, and the HTTP
// surface all classify failures by wrapping one of these sentinels.
var (
	ErrNotFound                = errors.New("resource not found")
	ErrConflict                = errors.New("conflict")
	ErrConfig                  = errors.New("configuration error")
	ErrInvalidModelOutput      = errors.New("invalid model output")
	ErrSchemaValidation        = errors.New("schema validation failed")
	ErrUnsupportedDocumentType = errors.New("unsupported document type")
	ErrValidation              = errors.New("validation failed")
	ErrNoDocuments             = errors.New("no documents uploaded")
	ErrInternal                = errors.New("internal error")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
