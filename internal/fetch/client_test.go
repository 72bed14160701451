package fetch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/metrics"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newClient(opts Options) (*Client, *metrics.Metrics) {
	m := metrics.New()
	return New(domain.PlatformTwitter, opts, quietLogger(), m), m
}

func TestGetNotFoundAbortsWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c, m := newClient(Options{RetryDelay: time.Millisecond, MaxRetries: -1})
	_, err := c.Get(context.Background(), srv.URL, nil)

	require.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FetchRetries.WithLabelValues("twitter")))
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		assert.Equal(t, "Bearer abc", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c, m := newClient(Options{RetryDelay: time.Millisecond, MaxRetries: -1})

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.GetJSON(context.Background(), srv.URL, map[string]string{"Authorization": "Bearer abc"}, &out)

	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), hits.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FetchRetries.WithLabelValues("twitter")))
}

func TestGetHonoursRetryBound(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := newClient(Options{RetryDelay: time.Millisecond, MaxRetries: 2})
	_, err := c.Get(context.Background(), srv.URL, nil)

	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.Status)
	assert.Equal(t, int32(3), hits.Load())
}

func TestGetStopsOnContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := newClient(Options{RetryDelay: 5 * time.Millisecond, MaxRetries: -1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := c.Get(ctx, srv.URL, nil)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("unbounded retry did not stop after the context was cancelled")
	}
}

func TestCourtesyLimiterSpacesRequests(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, _ := newClient(Options{Courtesy: 40 * time.Millisecond, MaxRetries: 0})

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), srv.URL, nil)
		require.NoError(t, err)
	}
	// The first request passes immediately; the next two each wait one interval.
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}
