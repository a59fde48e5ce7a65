package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method string
	path   string
	key    string
	body   []byte
}

func recordingServer(t *testing.T, status func(n int32) int) (*httptest.Server, *[]captured, *int32) {
	t.Helper()
	var (
		mu    sync.Mutex
		calls []captured
		n     int32
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		calls = append(calls, captured{method: r.Method, path: r.URL.EscapedPath(), key: r.Header.Get("Idempotency-Key"), body: body})
		mu.Unlock()
		w.WriteHeader(status(atomic.AddInt32(&n, 1)))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls, &n
}

func TestPayoutPostsJSON(t *testing.T) {
	srv, calls, _ := recordingServer(t, func(int32) int { return http.StatusOK })
	c := NewClient(srv.URL + "/")
	require.NoError(t, c.Payout(context.Background(), PayoutRequest{PlayerID: "tg_1", Amount: 19, Currency: "STARS", GameID: "g1"}))

	require.Len(t, *calls, 1)
	got := (*calls)[0]
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "/api/payments/payout", got.path)
	assert.Equal(t, "payout-g1", got.key)
	var body map[string]any
	require.NoError(t, json.Unmarshal(got.body, &body))
	assert.Equal(t, "tg_1", body["playerId"])
	assert.Equal(t, 19.0, body["amount"])
}

func TestRetriesServerErrors(t *testing.T) {
	srv, calls, _ := recordingServer(t, func(n int32) int {
		if n < 3 {
			return http.StatusBadGateway
		}
		return http.StatusCreated
	})
	c := NewClient(srv.URL, WithRetry(3))
	require.NoError(t, c.SaveGame(context.Background(), SaveGameRequest{ID: "g1"}))
	assert.Len(t, *calls, 3)
}

func TestClientErrorIsNotRetried(t *testing.T) {
	srv, calls, _ := recordingServer(t, func(int32) int { return http.StatusBadRequest })
	c := NewClient(srv.URL)
	err := c.UpdateRating(context.Background(), "tg_1", 1216)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Status)
	require.Len(t, *calls, 1)
	assert.Equal(t, http.MethodPatch, (*calls)[0].method)
	assert.Equal(t, "/api/users/tg_1/rating", (*calls)[0].path)
}

func TestDisabledClient(t *testing.T) {
	c := NewClient("")
	assert.False(t, c.Enabled())
	assert.ErrorIs(t, c.Payout(context.Background(), PayoutRequest{}), ErrDisabled)
}
