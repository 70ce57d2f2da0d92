// recover.go provides defer helpers that capture panics as events.

package temps

import (
	"fmt"
	"runtime/debug"
)

// Recover captures an in-flight panic as a fatal event on the current hub and
// returns the recovered value without re-panicking.
//
// Use in defer:
//
//	func worker() {
//	    defer temps.Recover()
//	    // code that might panic
//	}
func Recover() any {
	r := recover()
	if r == nil {
		return nil
	}
	hub := CurrentHub()
	if hub == nil {
		logUninitialized()
		return r
	}
	hub.RecoverWithValue(r)
	return r
}

// RecoverWithValue captures an already recovered panic value as a fatal event
// and returns its id. Useful when the caller runs its own recover() and wants
// to keep control of re-panicking.
func (h *Hub) RecoverWithValue(recovered any) string {
	event := NewEvent()
	event.Level = LevelFatal
	event.Message = formatRecovered(recovered)
	event.Exception = []Exception{{
		Type:       "panic",
		Value:      event.Message,
		Stacktrace: string(debug.Stack()),
	}}
	return h.CaptureEvent(event)
}

func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}
