// event.go defines the canonical event structure delivered to the collector.

package temps

import (
	"encoding/hex"
	"reflect"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// Level indicates the severity of an event or breadcrumb.
type Level string

const (
	LevelDebug   Level = "debug"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// transactionType marks events routed through BeforeSendTransaction and the
// "transaction" rate-limit category.
const transactionType = "transaction"

// User describes the user associated with an event.
type User struct {
	ID        string `json:"id,omitempty"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	IPAddress string `json:"ip_address,omitempty"`
}

// Breadcrumb is a timestamped diagnostic note recorded on a scope.
type Breadcrumb struct {
	Message   string         `json:"message,omitempty"`
	Category  string         `json:"category,omitempty"`
	Level     Level          `json:"level,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Exception carries details of a captured error.
type Exception struct {
	Type       string `json:"type,omitempty"`
	Value      string `json:"value,omitempty"`
	Stacktrace string `json:"stacktrace,omitempty"`
}

// Event is a single reportable occurrence. Once handed to a Transport it is
// treated as immutable.
type Event struct {
	EventID     string                    `json:"event_id"`
	Type        string                    `json:"type,omitempty"`
	Message     string                    `json:"message,omitempty"`
	Exception   []Exception               `json:"exception,omitempty"`
	Level       Level                     `json:"level,omitempty"`
	Timestamp   time.Time                 `json:"timestamp"`
	Platform    string                    `json:"platform,omitempty"`
	Environment string                    `json:"environment,omitempty"`
	Release     string                    `json:"release,omitempty"`
	Tags        map[string]string         `json:"tags,omitempty"`
	Extra       map[string]any            `json:"extra,omitempty"`
	Contexts    map[string]map[string]any `json:"contexts,omitempty"`
	Breadcrumbs []Breadcrumb              `json:"breadcrumbs,omitempty"`
	User        *User                     `json:"user,omitempty"`
	Fingerprint []string                  `json:"fingerprint,omitempty"`
}

// NewEvent returns an empty event with initialized maps.
func NewEvent() *Event {
	return &Event{
		Tags:     map[string]string{},
		Extra:    map[string]any{},
		Contexts: map[string]map[string]any{},
	}
}

// newEventID returns a fresh 32-character lowercase hexadecimal identifier.
func newEventID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// category maps the event to its rate-limit category.
func (e *Event) category() string {
	if e.Type == transactionType {
		return transactionType
	}
	return "error"
}

// clone returns a copy with fresh maps and slices so overlaying scopes never
// mutates the original.
func (e *Event) clone() *Event {
	c := *e
	c.Tags = lo.Assign(e.Tags)
	c.Extra = lo.Assign(e.Extra)
	c.Contexts = cloneContexts(e.Contexts)
	c.Breadcrumbs = append([]Breadcrumb(nil), e.Breadcrumbs...)
	c.Fingerprint = append([]string(nil), e.Fingerprint...)
	if e.User != nil {
		u := *e.User
		c.User = &u
	}
	c.Exception = append([]Exception(nil), e.Exception...)
	return &c
}

func cloneContexts(contexts map[string]map[string]any) map[string]map[string]any {
	if contexts == nil {
		return nil
	}
	out := make(map[string]map[string]any, len(contexts))
	for name, values := range contexts {
		out[name] = lo.Assign(values)
	}
	return out
}

// eventFromException builds the base event for a captured error.
func eventFromException(err error) *Event {
	event := NewEvent()
	event.Level = LevelError
	if err == nil {
		event.Message = "called CaptureException with nil error"
		return event
	}
	event.Message = err.Error()
	event.Exception = []Exception{{
		Type:  errorType(err),
		Value: err.Error(),
	}}
	return event
}

// eventFromMessage builds the base event for a captured message.
func eventFromMessage(message string, level Level) *Event {
	event := NewEvent()
	event.Message = message
	if level == "" {
		level = LevelInfo
	}
	event.Level = level
	return event
}

// errorType reports the concrete Go type of an error for the exception record.
func errorType(err error) string {
	t := reflect.TypeOf(err)
	if t == nil {
		return "error"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}
