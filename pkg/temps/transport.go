// transport.go delivers finished events to the collector. Sends are
// fire-and-forget through a bounded queue; Flush and Close are the only
// synchronization points and both are bounded waits.

package temps

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Transport abstracts delivery of a finished event.
// Implementations must be safe for concurrent use.
type Transport interface {
	// SendEvent enqueues the event for background delivery and returns
	// immediately.
	SendEvent(event *Event)

	// Flush waits, bounded by timeout, for the in-flight queue to drain.
	// Reports whether the queue drained before the timeout.
	Flush(timeout time.Duration) bool

	// Close stops accepting new events and signals background delivery to
	// finish. It does not wait; call Flush first for a bounded drain.
	Close()
}

const (
	defaultQueueSize      = 1000
	defaultRequestTimeout = 30 * time.Second
	flushPollInterval     = 5 * time.Millisecond
)

// TransportStats is a snapshot of delivery counters.
type TransportStats struct {
	Sent        int64
	Failed      int64
	RateLimited int64
	Dropped     int64
}

// HTTPTransportOption configures the HTTP transport.
type HTTPTransportOption func(*HTTPTransport)

// WithQueueSize bounds the in-flight queue (default 1000).
func WithQueueSize(size int) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if size > 0 {
			t.queueSize = size
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if client != nil {
			t.client = client
		}
	}
}

// WithClock injects the clock used for backoff, cooldowns, and flush polling.
func WithClock(clk clock.Clock) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if clk != nil {
			t.clock = clk
		}
	}
}

// WithCompression toggles gzip compression of request bodies (default on).
func WithCompression(enabled bool) HTTPTransportOption {
	return func(t *HTTPTransport) {
		t.compression = enabled
	}
}

// WithRetryPolicy bounds retries of retryable failures and sets the backoff
// range.
func WithRetryPolicy(maxAttempts int, initialBackoff, maxBackoff time.Duration) HTTPTransportOption {
	return func(t *HTTPTransport) {
		if maxAttempts > 0 {
			t.retry.maxAttempts = maxAttempts
		}
		if initialBackoff > 0 {
			t.retry.initialBackoff = initialBackoff
		}
		if maxBackoff > 0 {
			t.retry.maxBackoff = maxBackoff
		}
	}
}

// HTTPTransport POSTs events to the collector endpoint derived from the DSN.
// Network errors and 5xx responses are retried with exponential backoff; 4xx
// responses are dropped; 429 and rate-limit headers start a per-category
// cooldown during which sends of that category are suppressed locally.
type HTTPTransport struct {
	dsn         *DSN
	logger      *zap.Logger
	client      *http.Client
	clock       clock.Clock
	limiter     *rateLimiter
	retry       retryPolicy
	compression bool
	queueSize   int

	queue   chan *Event
	done    chan struct{}
	pending atomic.Int64
	closed  atomic.Bool
	wg      sync.WaitGroup
	once    sync.Once

	sent        atomic.Int64
	failed      atomic.Int64
	rateLimited atomic.Int64
	dropped     atomic.Int64
}

// NewHTTPTransport creates a transport delivering to the given DSN and starts
// its background worker.
func NewHTTPTransport(dsn *DSN, logger *zap.Logger, opts ...HTTPTransportOption) *HTTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &HTTPTransport{
		dsn:         dsn,
		logger:      logger,
		client:      &http.Client{Timeout: defaultRequestTimeout},
		clock:       clock.New(),
		retry:       defaultRetryPolicy(),
		compression: true,
		queueSize:   defaultQueueSize,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.limiter = newRateLimiter(t.clock, logger)
	t.queue = make(chan *Event, t.queueSize)

	t.wg.Add(1)
	go t.worker()
	return t
}

// SendEvent enqueues the event. Events in a rate-limited category and events
// arriving on a full queue are dropped with a log line.
func (t *HTTPTransport) SendEvent(event *Event) {
	if t.closed.Load() {
		t.logger.Debug("transport closed, dropping event", zap.String("event_id", event.EventID))
		return
	}
	category := event.category()
	if t.limiter.isLimited(category) {
		t.rateLimited.Add(1)
		t.logger.Warn("event suppressed by rate limit",
			zap.String("event_id", event.EventID),
			zap.String("category", category),
			zap.Time("until", t.limiter.deadline(category)))
		return
	}

	t.pending.Add(1)
	select {
	case t.queue <- event:
	default:
		t.pending.Add(-1)
		t.dropped.Add(1)
		t.logger.Warn("event queue full, dropping event", zap.String("event_id", event.EventID))
	}
}

// Flush polls until the queue and the event being delivered are both done,
// bounded by timeout.
func (t *HTTPTransport) Flush(timeout time.Duration) bool {
	deadline := t.clock.Now().Add(timeout)
	ticker := t.clock.Ticker(flushPollInterval)
	defer ticker.Stop()
	for {
		if t.pending.Load() == 0 {
			return true
		}
		if !t.clock.Now().Before(deadline) {
			return false
		}
		<-ticker.C
	}
}

// Close stops new sends and tells the worker to finish with a best-effort
// drain. In-flight deliveries are not aborted.
func (t *HTTPTransport) Close() {
	t.once.Do(func() {
		t.closed.Store(true)
		close(t.done)
	})
}

// Stats returns a snapshot of the delivery counters.
func (t *HTTPTransport) Stats() TransportStats {
	return TransportStats{
		Sent:        t.sent.Load(),
		Failed:      t.failed.Load(),
		RateLimited: t.rateLimited.Load(),
		Dropped:     t.dropped.Load(),
	}
}

func (t *HTTPTransport) worker() {
	defer t.wg.Done()
	for {
		select {
		case event := <-t.queue:
			t.deliver(event)
			t.pending.Add(-1)
		case <-t.done:
			// Shutdown drain: one attempt per remaining event, no retries.
			for {
				select {
				case event := <-t.queue:
					t.deliverOnce(event)
					t.pending.Add(-1)
				default:
					return
				}
			}
		}
	}
}

// deliver runs the full attempt/backoff loop for one event.
func (t *HTTPTransport) deliver(event *Event) {
	payload, encoding, err := t.encode(event)
	if err != nil {
		t.failed.Add(1)
		t.logger.Error("failed to serialize event, dropping",
			zap.String("event_id", event.EventID), zap.Error(err))
		return
	}
	category := event.category()

	for attempt := 1; ; attempt++ {
		if t.limiter.isLimited(category) {
			t.rateLimited.Add(1)
			t.logger.Warn("event suppressed by rate limit",
				zap.String("event_id", event.EventID),
				zap.String("category", category),
				zap.Time("until", t.limiter.deadline(category)))
			return
		}

		retryable, rateLimited, err := t.post(payload, encoding)
		if err == nil {
			t.sent.Add(1)
			t.logger.Debug("event sent", zap.String("event_id", event.EventID))
			return
		}
		if rateLimited {
			t.rateLimited.Add(1)
			t.logger.Warn("event rate limited by collector",
				zap.String("event_id", event.EventID),
				zap.String("category", category))
			return
		}
		if !retryable {
			t.failed.Add(1)
			t.logger.Error("event rejected, dropping",
				zap.String("event_id", event.EventID), zap.Error(err))
			return
		}
		if attempt >= t.retry.maxAttempts {
			t.failed.Add(1)
			t.logger.Error("event exceeded retry attempts, dropping",
				zap.String("event_id", event.EventID),
				zap.Int("attempts", attempt), zap.Error(err))
			return
		}

		backoff := t.retry.backoff(attempt)
		t.logger.Debug("retrying event delivery",
			zap.String("event_id", event.EventID),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		if !t.sleep(backoff) {
			// Shutting down mid-backoff.
			t.failed.Add(1)
			return
		}
	}
}

// deliverOnce is the shutdown path: a single attempt, no retries.
func (t *HTTPTransport) deliverOnce(event *Event) {
	payload, encoding, err := t.encode(event)
	if err != nil {
		t.failed.Add(1)
		return
	}
	if t.limiter.isLimited(event.category()) {
		t.rateLimited.Add(1)
		return
	}
	if _, _, err := t.post(payload, encoding); err != nil {
		t.failed.Add(1)
		return
	}
	t.sent.Add(1)
}

// encode serializes the event to the outbound envelope, gzipped when
// compression is on.
func (t *HTTPTransport) encode(event *Event) (payload []byte, encoding string, err error) {
	body, err := json.Marshal(event)
	if err != nil {
		return nil, "", err
	}
	if !t.compression {
		return body, "", nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, "", err
	}
	if err := zw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "gzip", nil
}

// post performs one delivery attempt and classifies the outcome.
func (t *HTTPTransport) post(payload []byte, encoding string) (retryable, rateLimited bool, err error) {
	req, err := http.NewRequest(http.MethodPost, t.dsn.StoreAPIURL(), bytes.NewReader(payload))
	if err != nil {
		return false, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("X-Sentry-Auth", t.dsn.AuthHeader(t.clock.Now()))
	if encoding != "" {
		req.Header.Set("Content-Encoding", encoding)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return true, false, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	// Cooldown headers may arrive on any response, including 200.
	applied := t.limiter.update(resp.Header)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if !applied {
			t.limiter.limitAll()
		}
		return false, true, fmt.Errorf("collector rate limited the request")
	case resp.StatusCode >= 500:
		return true, false, fmt.Errorf("collector returned %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return false, false, fmt.Errorf("collector rejected event: %d", resp.StatusCode)
	default:
		return false, false, nil
	}
}

// sleep waits for d unless the transport shuts down first.
func (t *HTTPTransport) sleep(d time.Duration) bool {
	timer := t.clock.Timer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-t.done:
		return false
	}
}

// DebugTransport writes envelopes to the logger instead of the network.
// Selected by ClientOptions.Debug.
type DebugTransport struct {
	logger *zap.Logger
}

// NewDebugTransport creates a transport that logs every event it would send.
func NewDebugTransport(logger *zap.Logger) *DebugTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DebugTransport{logger: logger}
}

func (t *DebugTransport) SendEvent(event *Event) {
	body, err := json.Marshal(event)
	if err != nil {
		t.logger.Error("failed to serialize event", zap.String("event_id", event.EventID), zap.Error(err))
		return
	}
	t.logger.Info("event captured",
		zap.String("event_id", event.EventID),
		zap.ByteString("envelope", body))
}

func (t *DebugTransport) Flush(time.Duration) bool { return true }

func (t *DebugTransport) Close() {}

// noopTransport swallows events. Bound when no DSN is configured so the
// client stays enabled but silent.
type noopTransport struct{}

func (noopTransport) SendEvent(*Event) {}

func (noopTransport) Flush(time.Duration) bool { return true }

func (noopTransport) Close() {}
