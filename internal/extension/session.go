package extension

import (
	"sync"

	etcherrors "github.com/conneroisu/etch/internal/errors"
)

// Session is the state of one render, handed to extension functions. The
// context snapshot is readable only while the session is open.
type Session struct {
	mu      sync.RWMutex
	context map[string]interface{}
	closed  bool
}

// NewSession opens a session over a copy of ctx.
func NewSession(ctx map[string]interface{}) *Session {
	snapshot := make(map[string]interface{}, len(ctx))
	for k, v := range ctx {
		snapshot[k] = v
	}

	return &Session{context: snapshot}
}

// Context returns a copy of the resolved context. Calling it on a nil or
// closed session is an error.
func (s *Session) Context() (map[string]interface{}, error) {
	if s == nil {
		return nil, errNoRender()
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, errNoRender()
	}

	out := make(map[string]interface{}, len(s.context))
	for k, v := range s.context {
		out[k] = v
	}

	return out, nil
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.context = nil
}

func errNoRender() error {
	return etcherrors.NewContextError(
		etcherrors.ErrCodeExtensionCall,
		"The render context is only available while templates are being rendered.",
	)
}
