// api.go is the process-wide registry and the package-level capture surface
// consumed by everything that links against the client.

package temps

import (
	"sync"
	"time"
)

var (
	globalMu  sync.RWMutex
	globalHub *Hub
)

// Init builds a client and hub from the options and installs them as the
// process-wide current hub. A replaced client is closed so its transport
// worker does not linger; the close does not wait for a drain.
func Init(options ClientOptions) error {
	client, err := NewClient(options)
	if err != nil {
		return err
	}
	hub := NewHub(client, newScope(options.MaxBreadcrumbs))
	globalMu.Lock()
	old := globalHub
	globalHub = hub
	globalMu.Unlock()
	if old != nil && old.Client() != nil {
		old.Client().Close(0)
	}
	return nil
}

// CurrentHub returns the process-wide hub, or nil before Init.
func CurrentHub() *Hub {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalHub
}

// CurrentClient returns the process-wide client, or nil before Init.
func CurrentClient() *Client {
	hub := CurrentHub()
	if hub == nil {
		return nil
	}
	return hub.Client()
}

// resetRegistry clears the process-wide hub back to uninitialized. Test
// support only; exposed through export_test.go.
func resetRegistry() {
	globalMu.Lock()
	globalHub = nil
	globalMu.Unlock()
}

// CaptureException captures an error on the current hub.
func CaptureException(err error, captureContexts ...CaptureContext) string {
	hub := CurrentHub()
	if hub == nil {
		logUninitialized()
		return ""
	}
	return hub.CaptureException(err, captureContexts...)
}

// CaptureMessage captures a text message on the current hub.
func CaptureMessage(message string, level Level, captureContexts ...CaptureContext) string {
	hub := CurrentHub()
	if hub == nil {
		logUninitialized()
		return ""
	}
	return hub.CaptureMessage(message, level, captureContexts...)
}

// CaptureEvent captures a caller-built event on the current hub.
func CaptureEvent(event *Event, captureContexts ...CaptureContext) string {
	hub := CurrentHub()
	if hub == nil {
		logUninitialized()
		return ""
	}
	return hub.CaptureEvent(event, captureContexts...)
}

// Flush waits, bounded by timeout, for pending deliveries to drain. With no
// client installed there is nothing to drain and Flush returns true.
func Flush(timeout time.Duration) bool {
	client := CurrentClient()
	if client == nil {
		return true
	}
	return client.Flush(timeout)
}

// Close drains pending deliveries bounded by timeout, then disables the
// client; subsequent captures are no-ops returning "". Reports whether the
// drain completed in time.
func Close(timeout time.Duration) bool {
	client := CurrentClient()
	if client == nil {
		return true
	}
	return client.Close(timeout)
}

// Context proxies delegating to the current hub. With no client installed
// they log the fixed warning and do nothing.

func SetUser(user *User) { withCurrentHub(func(h *Hub) { h.SetUser(user) }) }

func SetTag(key, value string) { withCurrentHub(func(h *Hub) { h.SetTag(key, value) }) }

func SetTags(tags map[string]string) { withCurrentHub(func(h *Hub) { h.SetTags(tags) }) }

func SetExtra(key string, value any) { withCurrentHub(func(h *Hub) { h.SetExtra(key, value) }) }

func SetExtras(extra map[string]any) { withCurrentHub(func(h *Hub) { h.SetExtras(extra) }) }

func SetContext(name string, values map[string]any) {
	withCurrentHub(func(h *Hub) { h.SetContext(name, values) })
}

func SetLevel(level Level) { withCurrentHub(func(h *Hub) { h.SetLevel(level) }) }

func SetFingerprint(fingerprint []string) {
	withCurrentHub(func(h *Hub) { h.SetFingerprint(fingerprint) })
}

func AddBreadcrumb(crumb Breadcrumb) { withCurrentHub(func(h *Hub) { h.AddBreadcrumb(crumb) }) }

func ClearBreadcrumbs() { withCurrentHub(func(h *Hub) { h.ClearBreadcrumbs() }) }

// ConfigureScope mutates the current hub's active scope in place.
func ConfigureScope(fn func(*Scope)) { withCurrentHub(func(h *Hub) { h.ConfigureScope(fn) }) }

// WithScope pushes a scope on the current hub for the duration of fn. The pop
// is guaranteed even when fn panics.
func WithScope(fn func(*Scope)) { withCurrentHub(func(h *Hub) { h.WithScope(fn) }) }

func withCurrentHub(fn func(*Hub)) {
	hub := CurrentHub()
	if hub == nil {
		logUninitialized()
		return
	}
	fn(hub)
}
