// hub.go owns the scope stack and the fold that merges it into events.

package temps

import (
	"sync"
	"time"
)

// CaptureContext is a one-shot enrichment applied to a temporary scope after
// the full stack fold, so it has final-word precedence over every scope.
type CaptureContext func(*Scope)

// FromScope turns a partial scope into a CaptureContext overlaying its
// explicitly set fields.
func FromScope(partial *Scope) CaptureContext {
	return func(s *Scope) {
		s.assign(partial)
	}
}

// Hub owns a stack of scopes bound to one client. The bottom scope is the
// global scope and is never popped; the top scope is the current one.
//
// The process-wide hub installed by Init serves most applications. Hosts with
// interleaved logical flows (one process, many in-flight requests) should
// give each flow its own Hub via NewHub to avoid cross-flow tag, user, and
// breadcrumb leakage.
type Hub struct {
	mu     sync.RWMutex
	client *Client
	stack  []*Scope
}

// NewHub returns a hub bound to the client with the given global scope.
// Both may be nil; a nil-client hub warns and drops captures.
func NewHub(client *Client, scope *Scope) *Hub {
	if scope == nil {
		scope = NewScope()
	}
	return &Hub{
		client: client,
		stack:  []*Scope{scope},
	}
}

// Client returns the client bound to this hub, or nil.
func (h *Hub) Client() *Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

// Scope returns the current top scope. The stack always holds at least the
// global scope, so the result is never nil.
func (h *Hub) Scope() *Scope {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stack[len(h.stack)-1]
}

// PushScope clones the current top scope, pushes the clone, and returns it.
func (h *Hub) PushScope() *Scope {
	h.mu.Lock()
	defer h.mu.Unlock()
	top := h.stack[len(h.stack)-1].Clone()
	h.stack = append(h.stack, top)
	return top
}

// PopScope removes and returns the top scope. The global scope is terminal:
// when only it remains, PopScope is a no-op returning nil.
func (h *Hub) PopScope() *Scope {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.stack) == 1 {
		return nil
	}
	top := h.stack[len(h.stack)-1]
	h.stack = h.stack[:len(h.stack)-1]
	return top
}

// WithScope pushes a scope, invokes fn with it, and pops it again on every
// exit path. A panic inside fn still pops before propagating to the caller.
func (h *Hub) WithScope(fn func(*Scope)) {
	scope := h.PushScope()
	defer h.PopScope()
	fn(scope)
}

// ConfigureScope invokes fn with the current top scope, mutating it in place.
func (h *Hub) ConfigureScope(fn func(*Scope)) {
	fn(h.Scope())
}

// Convenience proxies operating on the current top scope.

func (h *Hub) SetUser(user *User) { h.Scope().SetUser(user) }

func (h *Hub) SetTag(key, value string) { h.Scope().SetTag(key, value) }

func (h *Hub) SetTags(tags map[string]string) { h.Scope().SetTags(tags) }

func (h *Hub) SetExtra(key string, value any) { h.Scope().SetExtra(key, value) }

func (h *Hub) SetExtras(extra map[string]any) { h.Scope().SetExtras(extra) }

func (h *Hub) SetContext(name string, values map[string]any) { h.Scope().SetContext(name, values) }

func (h *Hub) SetLevel(level Level) { h.Scope().SetLevel(level) }

func (h *Hub) SetFingerprint(fingerprint []string) { h.Scope().SetFingerprint(fingerprint) }

func (h *Hub) AddBreadcrumb(crumb Breadcrumb) { h.Scope().AddBreadcrumb(crumb) }

func (h *Hub) ClearBreadcrumbs() { h.Scope().ClearBreadcrumbs() }

// ApplyToEvent folds the whole scope stack bottom to top into a copy of the
// event, so scopes nearer the top override fields set further down. Capture
// contexts, if any, are applied last through a temporary scope and win over
// the entire stack. The hub's scopes are never mutated.
func (h *Hub) ApplyToEvent(event *Event, captureContexts ...CaptureContext) *Event {
	h.mu.RLock()
	stack := make([]*Scope, len(h.stack))
	copy(stack, h.stack)
	h.mu.RUnlock()

	for _, scope := range stack {
		event = scope.ApplyToEvent(event)
	}
	if len(captureContexts) > 0 {
		tmp := NewScope()
		for _, apply := range captureContexts {
			if apply != nil {
				apply(tmp)
			}
		}
		event = tmp.ApplyToEvent(event)
	}
	return event
}

// CaptureException captures an error as an event and returns its id, or ""
// when no enabled client is bound.
func (h *Hub) CaptureException(err error, captureContexts ...CaptureContext) string {
	return h.capture(eventFromException(err), captureContexts)
}

// CaptureMessage captures a text message at the given level (info when empty)
// and returns its id, or "" when no enabled client is bound.
func (h *Hub) CaptureMessage(message string, level Level, captureContexts ...CaptureContext) string {
	return h.capture(eventFromMessage(message, level), captureContexts)
}

// CaptureEvent captures a caller-built event as-is and returns its id, or ""
// when no enabled client is bound.
func (h *Hub) CaptureEvent(event *Event, captureContexts ...CaptureContext) string {
	if event == nil {
		event = NewEvent()
	}
	return h.capture(event, captureContexts)
}

func (h *Hub) capture(event *Event, captureContexts []CaptureContext) string {
	client := h.Client()
	if client == nil || !client.Enabled() {
		logUninitialized()
		return ""
	}
	return client.processEvent(event, h, captureContexts)
}

// Flush waits, bounded by timeout, for the bound client's transport queue to
// drain. Returns true when the queue drained in time, and true when no client
// is bound (nothing to drain).
func (h *Hub) Flush(timeout time.Duration) bool {
	client := h.Client()
	if client == nil {
		return true
	}
	return client.Flush(timeout)
}
