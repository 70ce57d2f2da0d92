package temps

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testDSNFor(t *testing.T, server *httptest.Server) *DSN {
	t.Helper()
	u := server.URL // http://127.0.0.1:port
	dsn, err := ParseDSN("http://key@" + u[len("http://"):] + "/1")
	require.NoError(t, err)
	return dsn
}

func newServerTransport(t *testing.T, server *httptest.Server, opts ...HTTPTransportOption) *HTTPTransport {
	t.Helper()
	opts = append([]HTTPTransportOption{
		WithCompression(false),
		WithRetryPolicy(3, time.Millisecond, 5*time.Millisecond),
	}, opts...)
	transport := NewHTTPTransport(testDSNFor(t, server), zap.NewNop(), opts...)
	t.Cleanup(transport.Close)
	return transport
}

func testEvent(id string) *Event {
	event := NewEvent()
	event.EventID = id
	event.Message = "transport test"
	event.Level = LevelError
	return event
}

func TestHTTPTransport_DeliversEvent(t *testing.T) {
	var requests atomic.Int64
	var gotAuth, gotContentType, gotBody atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		gotAuth.Store(r.Header.Get("X-Sentry-Auth"))
		gotContentType.Store(r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		gotBody.Store(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newServerTransport(t, server)
	transport.SendEvent(testEvent("00000000000000000000000000000001"))

	require.True(t, transport.Flush(2*time.Second))
	assert.Equal(t, int64(1), requests.Load())
	assert.Contains(t, gotAuth.Load().(string), "sentry_key=key")
	assert.Equal(t, "application/json", gotContentType.Load().(string))

	var sent Event
	require.NoError(t, json.Unmarshal(gotBody.Load().([]byte), &sent))
	assert.Equal(t, "00000000000000000000000000000001", sent.EventID)
	assert.Equal(t, "transport test", sent.Message)

	assert.Equal(t, int64(1), transport.Stats().Sent)
}

func TestHTTPTransport_RetriesServerErrorsThenSucceeds(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newServerTransport(t, server)
	transport.SendEvent(testEvent("00000000000000000000000000000002"))

	require.True(t, transport.Flush(5*time.Second))
	assert.Equal(t, int64(3), requests.Load())
	stats := transport.Stats()
	assert.Equal(t, int64(1), stats.Sent)
	assert.Equal(t, int64(0), stats.Failed)
}

func TestHTTPTransport_DropsAfterRetryExhaustion(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	transport := newServerTransport(t, server, WithRetryPolicy(2, time.Millisecond, 2*time.Millisecond))
	transport.SendEvent(testEvent("00000000000000000000000000000003"))

	require.True(t, transport.Flush(5*time.Second))
	assert.Equal(t, int64(2), requests.Load())
	stats := transport.Stats()
	assert.Equal(t, int64(0), stats.Sent)
	assert.Equal(t, int64(1), stats.Failed)
}

func TestHTTPTransport_ClientErrorsAreNotRetried(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	transport := newServerTransport(t, server)
	transport.SendEvent(testEvent("00000000000000000000000000000004"))

	require.True(t, transport.Flush(2*time.Second))
	assert.Equal(t, int64(1), requests.Load())
	assert.Equal(t, int64(1), transport.Stats().Failed)
}

func TestHTTPTransport_RateLimitSuppressesCategory(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Retry-After", "60")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	transport := newServerTransport(t, server)
	transport.SendEvent(testEvent("00000000000000000000000000000005"))
	require.True(t, transport.Flush(2*time.Second))

	// Cooldown is active: the next send never reaches the network.
	transport.SendEvent(testEvent("00000000000000000000000000000006"))
	require.True(t, transport.Flush(2*time.Second))

	assert.Equal(t, int64(1), requests.Load())
	stats := transport.Stats()
	assert.Equal(t, int64(2), stats.RateLimited)
	assert.Equal(t, int64(0), stats.Sent)
}

func TestHTTPTransport_BareTooManyRequestsUsesDefaultCooldown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	transport := newServerTransport(t, server)
	transport.SendEvent(testEvent("00000000000000000000000000000007"))
	require.True(t, transport.Flush(2*time.Second))

	assert.True(t, transport.limiter.isLimited("error"))
	assert.True(t, transport.limiter.isLimited("transaction"))
}

func TestHTTPTransport_QueueOverflowDropsNewEvent(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()
	defer close(release)

	transport := newServerTransport(t, server, WithQueueSize(1))

	// First event occupies the worker, second fills the queue, third drops.
	transport.SendEvent(testEvent("00000000000000000000000000000008"))
	waitUntil(t, time.Second, func() bool { return len(transport.queue) == 0 })
	transport.SendEvent(testEvent("00000000000000000000000000000009"))
	transport.SendEvent(testEvent("0000000000000000000000000000000a"))

	assert.Equal(t, int64(1), transport.Stats().Dropped)
}

func TestHTTPTransport_FlushTimesOutWhileDeliveryBlocked(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newServerTransport(t, server)
	transport.SendEvent(testEvent("0000000000000000000000000000000b"))

	assert.False(t, transport.Flush(50*time.Millisecond))

	close(release)
	assert.True(t, transport.Flush(2*time.Second))
	assert.Equal(t, int64(1), transport.Stats().Sent)
}

func TestHTTPTransport_CloseStopsNewSends(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newServerTransport(t, server)
	transport.Close()

	transport.SendEvent(testEvent("0000000000000000000000000000000c"))
	assert.True(t, transport.Flush(time.Second))
	assert.Equal(t, int64(0), requests.Load())
}

func TestHTTPTransport_GzipBody(t *testing.T) {
	var gotEncoding atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEncoding.Store(r.Header.Get("Content-Encoding"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewHTTPTransport(testDSNFor(t, server), zap.NewNop())
	t.Cleanup(transport.Close)

	transport.SendEvent(testEvent("0000000000000000000000000000000d"))
	require.True(t, transport.Flush(2*time.Second))
	assert.Equal(t, "gzip", gotEncoding.Load().(string))
}

func TestHTTPTransport_UnserializableEventIsDropped(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := newServerTransport(t, server)

	event := testEvent("0000000000000000000000000000000e")
	event.Extra = map[string]any{"ch": make(chan int)}
	transport.SendEvent(event)

	require.True(t, transport.Flush(2*time.Second))
	assert.Equal(t, int64(0), requests.Load())
	assert.Equal(t, int64(1), transport.Stats().Failed)
}

func TestDebugTransport_ReportsSerializationFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	transport := NewDebugTransport(zap.New(core))

	event := testEvent("0000000000000000000000000000000f")
	event.Extra = map[string]any{"ch": make(chan int)}
	transport.SendEvent(event)

	entries := logs.FilterMessage("failed to serialize event").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "0000000000000000000000000000000f",
		entries[0].ContextMap()["event_id"])
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}
