package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/park285/dame-server/internal/ai"
	"github.com/park285/dame-server/internal/auth"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/internal/msgcat"
	"github.com/park285/dame-server/internal/presence"
	"github.com/park285/dame-server/internal/repository"
	"github.com/park285/dame-server/pkg/damedto"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

type testEnv struct {
	ts   *httptest.Server
	srv  *Server
	auth *auth.Authenticator
	mgr  *match.Manager
	reg  *presence.Registry
	repo repository.Repository
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := presence.NewRegistry(presence.Options{})
	mgr := match.NewManager(match.Options{
		Tick:      time.Hour,
		Publisher: NewPublisher(reg),
		Coin:      func() bool { return true },
	})
	t.Cleanup(func() { _ = mgr.Close(context.Background()) })

	a, err := auth.New(auth.Options{JWTSecret: "test-secret", Dev: true})
	require.NoError(t, err)
	cat, err := msgcat.New("")
	require.NoError(t, err)
	repo := repository.NewMemory()

	srv := New(Config{
		Auth:     a,
		Presence: reg,
		Matches:  mgr,
		Repo:     repo,
		AI:       ai.NewPool(ai.PoolConfig{MaxConcurrent: 1, Timeout: 5 * time.Second}),
		Catalog:  cat,
	})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, srv: srv, auth: a, mgr: mgr, reg: reg, repo: repo}
}

func (e *testEnv) token(t *testing.T, id, name string) string {
	t.Helper()
	tok, _, err := e.auth.Issue(auth.Identity{ID: id, Username: name})
	require.NoError(t, err)
	return tok
}

func (e *testEnv) wsURL(token string) string {
	return strings.Replace(e.ts.URL, "http://", "ws://", 1) + "/ws?token=" + token
}

func (e *testEnv) dial(t *testing.T, id, name string) *websocket.Conn {
	t.Helper()
	ctx, cancel := timeoutCtx()
	defer cancel()
	conn, _, err := websocket.Dial(ctx, e.wsURL(e.token(t, id, name)), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func (e *testEnv) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func timeoutCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func wsSend(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	raw, err := json.Marshal(damedto.Envelope{Event: event, Data: payload})
	require.NoError(t, err)
	ctx, cancel := timeoutCtx()
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, raw))
}

// expect reads frames until one carries event, skipping the rest.
func expect(t *testing.T, conn *websocket.Conn, event string, out any) {
	t.Helper()
	ctx, cancel := timeoutCtx()
	defer cancel()
	for {
		_, raw, err := conn.Read(ctx)
		require.NoError(t, err, "waiting for %s", event)
		var env damedto.Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.Event != event {
			continue
		}
		if out != nil {
			require.NoError(t, json.Unmarshal(env.Data, out))
		}
		return
	}
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}
