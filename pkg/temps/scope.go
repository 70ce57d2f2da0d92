// scope.go implements the layered enrichment bag attached to a hub's stack.

package temps

import (
	"sync"
	"time"

	"github.com/samber/lo"
)

// defaultMaxBreadcrumbs caps the breadcrumb ring when ClientOptions does not
// override it.
const defaultMaxBreadcrumbs = 100

// maxBreadcrumbsCeiling is the hard upper bound on a configured ring size.
const maxBreadcrumbsCeiling = 500

// Scope holds contextual data applied to every event captured while it is on
// the hub's stack: user identity, tags, extra data, named contexts, a bounded
// ring of breadcrumbs, severity level, and an optional grouping fingerprint.
//
// The hub's top scope is shared mutable state across goroutines, so all
// methods are safe for concurrent use.
type Scope struct {
	mu sync.RWMutex
	// userSet distinguishes "never set" from "explicitly cleared": both
	// leave user nil, but only an explicit SetUser(nil) overrides the folded
	// value.
	user           *User
	userSet        bool
	tags           map[string]string
	extra          map[string]any
	contexts       map[string]map[string]any
	breadcrumbs    []Breadcrumb
	level          Level
	fingerprint    []string
	maxBreadcrumbs int
}

// NewScope returns an empty scope with the default breadcrumb capacity.
func NewScope() *Scope {
	return newScope(defaultMaxBreadcrumbs)
}

func newScope(maxBreadcrumbs int) *Scope {
	if maxBreadcrumbs <= 0 {
		maxBreadcrumbs = defaultMaxBreadcrumbs
	}
	if maxBreadcrumbs > maxBreadcrumbsCeiling {
		maxBreadcrumbs = maxBreadcrumbsCeiling
	}
	return &Scope{
		tags:           map[string]string{},
		extra:          map[string]any{},
		contexts:       map[string]map[string]any{},
		maxBreadcrumbs: maxBreadcrumbs,
	}
}

// SetUser associates a user with the scope. A nil user clears it.
func (s *Scope) SetUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userSet = true
	if user == nil {
		s.user = nil
		return
	}
	u := *user
	s.user = &u
}

// SetTag sets a single tag, overwriting only that key.
func (s *Scope) SetTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags[key] = value
}

// SetTags merges the given tags into the scope key-wise.
func (s *Scope) SetTags(tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tags = lo.Assign(s.tags, tags)
}

// SetExtra sets a single extra value, overwriting only that key.
func (s *Scope) SetExtra(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra[key] = value
}

// SetExtras merges the given extra values into the scope key-wise.
func (s *Scope) SetExtras(extra map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extra = lo.Assign(s.extra, extra)
}

// SetContext sets the named context, replacing any previous value under that
// name.
func (s *Scope) SetContext(name string, values map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contexts[name] = lo.Assign(values)
}

// SetLevel sets the severity applied to events folded through this scope.
func (s *Scope) SetLevel(level Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.level = level
}

// SetFingerprint overrides the grouping fingerprint the collector computes.
func (s *Scope) SetFingerprint(fingerprint []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fingerprint = append([]string(nil), fingerprint...)
}

// AddBreadcrumb appends a breadcrumb to the ring, defaulting its timestamp
// when unset. When the ring is full the oldest entry is evicted first.
func (s *Scope) AddBreadcrumb(crumb Breadcrumb) {
	if crumb.Timestamp.IsZero() {
		crumb.Timestamp = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.breadcrumbs) >= s.maxBreadcrumbs {
		s.breadcrumbs = append(s.breadcrumbs[1:], crumb)
		return
	}
	s.breadcrumbs = append(s.breadcrumbs, crumb)
}

// ClearBreadcrumbs empties this scope's ring only; parent and child scopes
// keep theirs.
func (s *Scope) ClearBreadcrumbs() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breadcrumbs = nil
}

// Clone returns an independent copy. Mutating either copy never affects the
// other.
func (s *Scope) Clone() *Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	clone := newScope(s.maxBreadcrumbs)
	if s.user != nil {
		u := *s.user
		clone.user = &u
	}
	clone.userSet = s.userSet
	clone.tags = lo.Assign(s.tags)
	clone.extra = lo.Assign(s.extra)
	clone.contexts = cloneContexts(s.contexts)
	clone.breadcrumbs = append([]Breadcrumb(nil), s.breadcrumbs...)
	clone.level = s.level
	clone.fingerprint = append([]string(nil), s.fingerprint...)
	return clone
}

// ApplyToEvent overlays this scope's fields onto a copy of the event and
// returns the copy. The input is never mutated. Tags, extra, and contexts
// merge key-wise with the scope winning on conflicts; user, level, and
// fingerprint replace wholly, but only when this scope explicitly set them.
func (s *Scope) ApplyToEvent(event *Event) *Event {
	if event == nil {
		event = NewEvent()
	}
	merged := event.clone()

	s.mu.RLock()
	defer s.mu.RUnlock()

	merged.Tags = lo.Assign(merged.Tags, s.tags)
	merged.Extra = lo.Assign(merged.Extra, s.extra)
	if merged.Contexts == nil {
		merged.Contexts = map[string]map[string]any{}
	}
	for name, values := range s.contexts {
		merged.Contexts[name] = lo.Assign(values)
	}
	if len(s.breadcrumbs) > 0 {
		merged.Breadcrumbs = append([]Breadcrumb(nil), s.breadcrumbs...)
	}
	if s.userSet {
		if s.user == nil {
			merged.User = nil
		} else {
			u := *s.user
			merged.User = &u
		}
	}
	if s.level != "" {
		merged.Level = s.level
	}
	if len(s.fingerprint) > 0 {
		merged.Fingerprint = append([]string(nil), s.fingerprint...)
	}
	return merged
}

// assign copies the other scope's explicitly set fields into s. Used to turn
// a partial scope into a capture context.
func (s *Scope) assign(other *Scope) {
	if other == nil {
		return
	}
	other.mu.RLock()
	user := other.user
	userSet := other.userSet
	tags := lo.Assign(other.tags)
	extra := lo.Assign(other.extra)
	contexts := cloneContexts(other.contexts)
	crumbs := append([]Breadcrumb(nil), other.breadcrumbs...)
	level := other.level
	fingerprint := append([]string(nil), other.fingerprint...)
	other.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if userSet {
		s.userSet = true
		if user == nil {
			s.user = nil
		} else {
			u := *user
			s.user = &u
		}
	}
	s.tags = lo.Assign(s.tags, tags)
	s.extra = lo.Assign(s.extra, extra)
	for name, values := range contexts {
		s.contexts[name] = values
	}
	if len(crumbs) > 0 {
		s.breadcrumbs = crumbs
	}
	if level != "" {
		s.level = level
	}
	if len(fingerprint) > 0 {
		s.fingerprint = fingerprint
	}
}
