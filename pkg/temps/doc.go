// Package temps is the embedded error and event tracking client for the
// temps platform.
//
// Applications link against temps to capture exceptions and diagnostic
// messages, enrich them with layered context, and deliver them to a temps
// collector under partial-failure conditions (network errors, rate limiting,
// timeouts).
//
// # Core Components
//
//   - Event: the canonical occurrence sent to the collector, with level,
//     tags, extra data, contexts, breadcrumbs, and user identity
//   - Scope: one layer of contextual enrichment, including a bounded
//     breadcrumb ring
//   - Hub: owner of the scope stack; folds the stack into outgoing events
//   - Transport: delivery strategy with a bounded in-flight queue, retry
//     with exponential backoff, and per-category rate-limit cooldowns
//
// # Quick Start
//
//	err := temps.Init(temps.ClientOptions{
//	    DSN:         "https://key@errors.example.com/42",
//	    Environment: "production",
//	    Release:     "v1.4.2",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer temps.Close(2 * time.Second)
//
//	temps.SetTag("region", "eu-west-1")
//	temps.CaptureException(err)
//
// # Design Principles
//
//   - Capture calls never fail the caller: errors on the delivery path are
//     swallowed and logged
//   - Capture is non-blocking: delivery happens on a background worker and
//     only Flush/Close wait, bounded by their timeout
//   - Scope isolation: pushed scopes are clones; mutating a child never
//     leaks into its parent
package temps
