// Package errors provides error handling utilities.
package errors

import (
	"errors"
	"fmt"
)

// Type identifies the category of error
type Type string

const (
	// TypeConfig indicates an invalid rule or application configuration
	TypeConfig Type = "CONFIG_ERROR"

	// TypeSyntax indicates a malformed formula expression
	TypeSyntax Type = "SYNTAX_ERROR"

	// TypeParsing indicates a rule or dataset file that could not be decoded
	TypeParsing Type = "PARSING_ERROR"

	// TypeNotFound indicates a catalog or dataset lookup that found nothing
	TypeNotFound Type = "NOT_FOUND"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"
)

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(t Type) bool {
	return e.Type == t
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// IsType reports whether err, or any error it wraps, is a domain error of type t.
func IsType(err error, t Type) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == t
	}
	return false
}

// Config creates a configuration error
func Config(message string) *Error {
	return New(TypeConfig, message)
}

// Configf creates a formatted configuration error
func Configf(format string, args ...interface{}) *Error {
	return Newf(TypeConfig, format, args...)
}

// Syntax creates an expression syntax error
func Syntax(message string) *Error {
	return New(TypeSyntax, message)
}

// Syntaxf creates a formatted expression syntax error
func Syntaxf(format string, args ...interface{}) *Error {
	return Newf(TypeSyntax, format, args...)
}

// Parsing creates a parsing error
func Parsing(message string, cause error) *Error {
	return Wrap(TypeParsing, message, cause)
}

// NotFound creates a not found error
func NotFound(kind, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", kind, identifier)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
