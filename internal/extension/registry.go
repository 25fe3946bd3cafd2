package extension

import (
	"fmt"
	"sort"
	"sync"

	etcherrors "github.com/conneroisu/etch/internal/errors"
)

// Registry holds extension functions by name. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Function
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Function)}
}

// Register adds fn. A second function with the same name is rejected.
func (r *Registry) Register(fn Function) error {
	name := fn.Name()
	if name == "" {
		return etcherrors.NewEngineError(etcherrors.ErrCodeExtensionLoad, "Extension function has no name.")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		return etcherrors.NewEngineError(
			etcherrors.ErrCodeNameCollision,
			fmt.Sprintf("Extension function '%s' is already registered.", name),
		).WithContext("function", name)
	}
	r.funcs[name] = fn

	return nil
}

// Get returns the function registered under name.
func (r *Registry) Get(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]

	return fn, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.funcs)
}

// Invoke calls the function registered under name. The registry lock is not
// held during the call, so functions may invoke each other.
func (r *Registry) Invoke(sess *Session, name string, args []interface{}, kwargs map[string]interface{}) (interface{}, error) {
	fn, ok := r.Get(name)
	if !ok {
		return nil, etcherrors.NewRenderError(
			etcherrors.ErrCodeExtensionCall,
			fmt.Sprintf("No extension function named '%s'.", name),
			nil,
		)
	}

	result, err := fn.Call(sess, args, kwargs)
	if err != nil {
		return nil, etcherrors.NewRenderError(
			etcherrors.ErrCodeExtensionCall,
			fmt.Sprintf("Extension function '%s' failed", name),
			err,
		).WithContext("function", name)
	}

	return result, nil
}
