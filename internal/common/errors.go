package common

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeValidation for validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeKeychain for credential store errors
	ErrorTypeKeychain ErrorType = "keychain"
	// ErrorTypeJira for Jira-specific errors
	ErrorTypeJira ErrorType = "jira"
)

// LauncherError represents a structured error with context
type LauncherError struct {
	Type      ErrorType `json:"type"`
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   string    `json:"details,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Cause     error     `json:"-"`
}

// Error implements the error interface
func (e *LauncherError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Type, e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Type, e.Code, e.Message)
}

// Unwrap implements the errors.Unwrap interface
func (e *LauncherError) Unwrap() error {
	return e.Cause
}

// NewError creates a new LauncherError
func NewError(errorType ErrorType, code, message string) *LauncherError {
	return &LauncherError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewValidationError creates a validation error
func NewValidationError(code, message string) *LauncherError {
	return NewError(ErrorTypeValidation, code, message)
}

// NewKeychainError creates a credential store error
func NewKeychainError(code, message string) *LauncherError {
	return NewError(ErrorTypeKeychain, code, message)
}

// NewJiraError creates a Jira-specific error
func NewJiraError(code, message string) *LauncherError {
	return NewError(ErrorTypeJira, code, message)
}

// WrapError wraps an existing error with LauncherError context
func WrapError(err error, errorType ErrorType, code, message string) *LauncherError {
	return &LauncherError{
		Type:      errorType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
	}
}
