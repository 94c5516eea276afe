package webhooks

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastBackoff(int) time.Duration { return time.Millisecond }

func TestDeliverSignsPayload(t *testing.T) {
	var gotSig, gotType string
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-Signature")
		gotType = r.Header.Get("X-Event-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewNotifier("secret", 3, nil)
	n.HTTP = srv.Client()
	env := NewEnvelope("run.completed", "t1", map[string]any{"runId": "r1"})
	require.NoError(t, n.Deliver(context.Background(), srv.URL, "run.completed", env))

	assert.Equal(t, "run.completed", gotType)
	assert.True(t, VerifyHMAC("secret", gotBody, gotSig), "signature must cover the raw body")
	assert.Contains(t, string(gotBody), `"runId":"r1"`)
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &Notifier{HTTP: srv.Client(), MaxAttempts: 5, Backoff: fastBackoff}
	require.NoError(t, n.Deliver(context.Background(), srv.URL, "run.completed", []byte(`{}`)))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestDeliverGivesUp(t *testing.T) {
	var calls int32
	var sig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		sig = r.Header.Get("X-Signature")
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := &Notifier{HTTP: srv.Client(), MaxAttempts: 2, Backoff: fastBackoff}
	err := n.Deliver(context.Background(), srv.URL, "run.failed", []byte(`{}`))
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Empty(t, sig, "no secret means no signature")
}

func TestDeliverStopsOnCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{HTTP: srv.Client(), MaxAttempts: 10, Backoff: func(int) time.Duration {
		cancel()
		return time.Hour
	}}
	assert.ErrorIs(t, n.Deliver(ctx, srv.URL, "run.completed", []byte(`{}`)), context.Canceled)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, time.Second, nextBackoff(-1))
	assert.Equal(t, 4*time.Second, nextBackoff(2))
	assert.Equal(t, 1024*time.Second, nextBackoff(50))
}

func TestVerifyHMACRejectsGarbage(t *testing.T) {
	body := []byte(`{"a":1}`)
	assert.True(t, VerifyHMAC("k", body, SignHMAC("k", body)))
	assert.False(t, VerifyHMAC("other", body, SignHMAC("k", body)))
	assert.False(t, VerifyHMAC("k", body, "zz"))
}
