package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with additional context, creating an EtchError whose
// cause is err. The path and context of an inner EtchError are carried over.
func Wrap(err error, errType ErrorType, code, message string) *EtchError {
	if err == nil {
		return nil
	}

	wrapped := &EtchError{
		Type:    errType,
		Code:    code,
		Message: message,
		Cause:   err,
	}

	var ee *EtchError
	if errors.As(err, &ee) && ee.Context != nil {
		wrapped.Context = make(map[string]interface{}, len(ee.Context))
		for k, v := range ee.Context {
			wrapped.Context[k] = v
		}
	}

	return wrapped
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *EtchError {
	return Wrap(err, ErrorTypeConfig, code, message)
}

// WrapContext wraps an error as a context resolution error
func WrapContext(err error, code, message string) *EtchError {
	return Wrap(err, ErrorTypeContext, code, message)
}

// WrapEngine wraps an error as an engine construction error
func WrapEngine(err error, code, message string) *EtchError {
	return Wrap(err, ErrorTypeEngine, code, message)
}

// WrapRender wraps an error as a render error
func WrapRender(err error, code, message string) *EtchError {
	return Wrap(err, ErrorTypeRender, code, message)
}

// WrapWalk wraps an error as a walk error
func WrapWalk(err error, code, message string) *EtchError {
	return Wrap(err, ErrorTypeWalk, code, message)
}

// IsType reports whether any EtchError in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var ee *EtchError
		if !errors.As(err, &ee) {
			return false
		}
		if ee.Type == errType {
			return true
		}
		err = ee.Cause
	}

	return false
}

// Prefix prepends message to err's chain. The result keeps the type and code
// of the outermost EtchError in err so callers can still match on them.
func Prefix(err error, message string) error {
	if err == nil {
		return nil
	}

	var ee *EtchError
	if !errors.As(err, &ee) {
		return fmt.Errorf("%s: %w", message, err)
	}

	return Wrap(err, ee.Type, ee.Code, message)
}
