// Package errors defines the structured error type shared by every etch
// component. Each error carries a taxonomy type, a stable code and an optional
// cause, so a failed run surfaces one readable chain from the outermost stage
// down to the root cause.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeCoercion   ErrorType = "coercion"
	ErrorTypeContext    ErrorType = "context"
	ErrorTypeEngine     ErrorType = "engine"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeLockfile   ErrorType = "lockfile"
	ErrorTypeWalk       ErrorType = "walk"
	ErrorTypeValidation ErrorType = "validation"
)

// Common error codes.
const (
	ErrCodeConfigRead       = "ERR_CONFIG_READ"
	ErrCodeConfigDecode     = "ERR_CONFIG_DECODE"
	ErrCodeConfigSchema     = "ERR_CONFIG_SCHEMA"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeDuplicateKey     = "ERR_DUPLICATE_CONTEXT_KEY"
	ErrCodeCoerce           = "ERR_COERCE"
	ErrCodeMissingEnv       = "ERR_MISSING_ENV"
	ErrCodeCommandFailed    = "ERR_COMMAND_FAILED"
	ErrCodeImplicitNone     = "ERR_IMPLICIT_NONE"
	ErrCodeSyntaxInvalid    = "ERR_SYNTAX_INVALID"
	ErrCodeExtensionLoad    = "ERR_EXTENSION_LOAD"
	ErrCodeNameCollision    = "ERR_NAME_COLLISION"
	ErrCodeTemplateNotFound = "ERR_TEMPLATE_NOT_FOUND"
	ErrCodeTemplateParse    = "ERR_TEMPLATE_PARSE"
	ErrCodeRenderFailed     = "ERR_RENDER_FAILED"
	ErrCodeExtensionCall    = "ERR_EXTENSION_CALL"
	ErrCodeLockfileWrite    = "ERR_LOCKFILE_WRITE"
	ErrCodeOutputWrite      = "ERR_OUTPUT_WRITE"
	ErrCodeInvalidPattern   = "ERR_INVALID_PATTERN"
	ErrCodeTraversal        = "ERR_TRAVERSAL"
	ErrCodeRootMissing      = "ERR_ROOT_MISSING"
	ErrCodeRootNotDir       = "ERR_ROOT_NOT_DIR"
)

// EtchError is a structured error type with context.
type EtchError struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	Path    string
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *EtchError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Path != "" {
		parts = append(parts, e.Path+":")
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *EtchError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *EtchError) Is(target error) bool {
	var t *EtchError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *EtchError) WithContext(key string, value interface{}) *EtchError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath attaches the file or document path the error refers to.
func (e *EtchError) WithPath(path string) *EtchError {
	e.Path = path

	return e
}

// WithCause sets the underlying cause.
func (e *EtchError) WithCause(cause error) *EtchError {
	e.Cause = cause

	return e
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *EtchError {
	return &EtchError{Type: ErrorTypeConfig, Code: code, Message: message}
}

// NewCoercionError creates a coercion error.
func NewCoercionError(message string, cause error) *EtchError {
	return &EtchError{Type: ErrorTypeCoercion, Code: ErrCodeCoerce, Message: message, Cause: cause}
}

// NewContextError creates a context resolution error.
func NewContextError(code, message string) *EtchError {
	return &EtchError{Type: ErrorTypeContext, Code: code, Message: message}
}

// NewEngineError creates an engine construction error.
func NewEngineError(code, message string) *EtchError {
	return &EtchError{Type: ErrorTypeEngine, Code: code, Message: message}
}

// NewRenderError creates a render error.
func NewRenderError(code, message string, cause error) *EtchError {
	return &EtchError{Type: ErrorTypeRender, Code: code, Message: message, Cause: cause}
}

// NewLockfileError creates a lockfile error.
func NewLockfileError(code, message string, cause error) *EtchError {
	return &EtchError{Type: ErrorTypeLockfile, Code: code, Message: message, Cause: cause}
}

// NewWalkError creates a walk error.
func NewWalkError(code, message string, cause error) *EtchError {
	return &EtchError{Type: ErrorTypeWalk, Code: code, Message: message, Cause: cause}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *EtchError {
	return &EtchError{Type: ErrorTypeValidation, Code: code, Message: message}
}
