// Package extension defines user-supplied template functions: the Function
// contract, the Registry they are registered into, the render Session they
// can read the context from, and loaders that discover them (Starlark scripts
// or Go code).
package extension

// Function is a callable registered under Name and invokable from templates.
type Function interface {
	// Name returns the name templates call the function by.
	Name() string

	// Call invokes the function. Arguments and the result use the JSON-like
	// value model (nil, bool, int64, float64, string, []interface{},
	// map[string]interface{}).
	Call(sess *Session, args []interface{}, kwargs map[string]interface{}) (interface{}, error)
}

// CallFunc is the Go signature adapted by NewFunc.
type CallFunc func(sess *Session, args []interface{}, kwargs map[string]interface{}) (interface{}, error)

type goFunction struct {
	name string
	fn   CallFunc
}

// NewFunc wraps a Go function as an extension Function.
func NewFunc(name string, fn CallFunc) Function {
	return &goFunction{name: name, fn: fn}
}

func (f *goFunction) Name() string { return f.name }

func (f *goFunction) Call(sess *Session, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	return f.fn(sess, args, kwargs)
}
