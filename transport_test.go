package flock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestTransportSetsAuthHeaders(t *testing.T) {
	var gotAuth, gotAgent, gotType string

	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotAgent = r.Header.Get("User-Agent")
		gotType = r.Header.Get("Content-Type")
		rw.Write([]byte(`{"id":"1"}`))
	}))
	defer ts.Close()

	tx := newTransport(ts.Client(), ts.URL+"/", 0, 0, zap.NewNop())

	resp, err := tx.Do(context.Background(), http.MethodPost, "channels/1/messages",
		"secret-token", map[string]string{"content": "hi"})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "secret-token", gotAuth)
	assert.Equal(t, userAgent, gotAgent)
	assert.Equal(t, "application/json", gotType)
	assert.False(t, resp.Blocked)
}

func TestTransportHoldsOnRateLimit(t *testing.T) {
	var calls int32

	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		rw.Header().Set("Retry-After", "0.05")
		rw.WriteHeader(http.StatusTooManyRequests)
		rw.Write([]byte(`{"message":"You are being rate limited.","retry_after":0.05}`))
	}))
	defer ts.Close()

	tx := newTransport(ts.Client(), ts.URL+"/", 0, 50*time.Millisecond, zap.NewNop())

	start := time.Now()
	resp, err := tx.Do(context.Background(), http.MethodGet, "users/@me", "tok", nil)
	require.NoError(t, err)

	// the 429 is held for retry-after plus the cooldown, then handed back
	// to the caller untouched
	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestTransportDetectsVerificationWall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusForbidden)
		rw.Write([]byte(`{"message":"You need to verify your account in order to perform this action.","code":40002}`))
	}))
	defer ts.Close()

	tx := newTransport(ts.Client(), ts.URL+"/", 0, 0, zap.NewNop())

	resp, err := tx.Do(context.Background(), http.MethodPost, "channels/1/messages", "tok",
		map[string]string{"content": "hi"})
	require.NoError(t, err)
	assert.True(t, resp.Blocked)
}

func TestTruncateToken(t *testing.T) {
	assert.Equal(t, "abcd...ijkl", truncateToken("abcdefghijkl"))
	assert.Equal(t, "********", truncateToken("short"))
}
