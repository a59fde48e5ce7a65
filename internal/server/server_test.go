package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/park285/dame-server/internal/domain"
	"github.com/park285/dame-server/internal/draughts"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/internal/wire"
	"github.com/park285/dame-server/pkg/damedto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
)

// startGame connects two players and plays the invite/accept handshake.
func startGame(t *testing.T, env *testEnv) (alice, bob *websocket.Conn, gameID string) {
	t.Helper()
	alice = env.dial(t, "tg_1", "alice")
	expect(t, alice, damedto.EventFriendsOnline, nil)
	bob = env.dial(t, "tg_2", "bob")
	expect(t, bob, damedto.EventFriendsOnline, nil)

	amount := 10.0
	wsSend(t, alice, damedto.EventInvite, damedto.InvitePayload{FriendID: "tg_2", BetAmount: &amount, BetCurrency: "STARS"})
	var inv damedto.Invitation
	expect(t, bob, damedto.EventInvitation, &inv)
	require.Equal(t, "tg_1", inv.From.ID)
	expect(t, alice, damedto.EventInvitationSent, nil)

	wsSend(t, bob, damedto.EventAccept, damedto.InvitationReply{InvitationID: inv.ID})
	var started damedto.Started
	expect(t, alice, damedto.EventStarted, &started)
	expect(t, bob, damedto.EventStarted, nil)
	require.Len(t, started.Players, 2)
	return alice, bob, started.GameID
}

func TestPresenceOnConnect(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.dial(t, "tg_1", "alice")
	var list []damedto.Player
	expect(t, alice, damedto.EventFriendsOnline, &list)
	assert.Empty(t, list)

	bob := env.dial(t, "tg_2", "bob")
	expect(t, bob, damedto.EventFriendsOnline, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "alice", list[0].Username)

	var status damedto.FriendStatus
	expect(t, alice, damedto.EventFriendStatus, &status)
	assert.Equal(t, damedto.FriendStatus{UserID: "tg_2", Username: "bob", IsOnline: true}, status)

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, ""))
	expect(t, alice, damedto.EventFriendStatus, &status)
	assert.False(t, status.IsOnline)
}

func TestInviteAcceptPlayResign(t *testing.T) {
	env := setupTestEnv(t)
	alice, bob, gameID := startGame(t, env)

	room, ok := env.reg.RoomOf("tg_1")
	require.True(t, ok)
	assert.Equal(t, gameID, room)

	wsSend(t, alice, damedto.EventMove, damedto.MovePayload{
		GameID: gameID,
		Move:   damedto.Move{From: damedto.Position{Row: 3, Col: 0}, To: damedto.Position{Row: 4, Col: 1}},
	})
	var mm damedto.MoveMade
	expect(t, bob, damedto.EventMoveMade, &mm)
	assert.Equal(t, "black", mm.CurrentTurn)
	var sound damedto.Sound
	expect(t, bob, damedto.EventSoundPlay, &sound)
	assert.Equal(t, "move", sound.Sound)

	// A light piece is not bob's to move.
	wsSend(t, bob, damedto.EventMove, damedto.MovePayload{
		GameID: gameID,
		Move:   damedto.Move{From: damedto.Position{Row: 3, Col: 2}, To: damedto.Position{Row: 4, Col: 3}},
	})
	var derr damedto.DomainError
	expect(t, bob, damedto.EventError, &derr)
	assert.Equal(t, wire.CodeInvalidMove, derr.Code)

	wsSend(t, alice, damedto.EventResign, damedto.GamePayload{GameID: gameID})
	var ended damedto.Ended
	expect(t, bob, damedto.EventEnded, &ended)
	assert.Equal(t, "resignation", ended.Result)
	assert.Equal(t, "black", ended.Winner)
	assert.Equal(t, "tg_2", ended.WinnerID)
	require.NotNil(t, ended.Winnings)
	assert.InDelta(t, 19.0, *ended.Winnings, 1e-9)

	require.Eventually(t, func() bool {
		_, bound := env.reg.RoomOf("tg_1")
		return !bound && env.mgr.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDeclineNotifiesInviter(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.dial(t, "tg_1", "alice")
	expect(t, alice, damedto.EventFriendsOnline, nil)
	bob := env.dial(t, "tg_2", "bob")
	expect(t, bob, damedto.EventFriendsOnline, nil)

	wsSend(t, alice, damedto.EventInvite, damedto.InvitePayload{FriendID: "tg_2"})
	var inv damedto.Invitation
	expect(t, bob, damedto.EventInvitation, &inv)
	assert.Nil(t, inv.BetAmount)

	wsSend(t, bob, damedto.EventDecline, damedto.InvitationReply{InvitationID: inv.ID})
	var dec damedto.InvitationDeclined
	expect(t, alice, damedto.EventInvitationDeclined, &dec)
	assert.Equal(t, "bob", dec.By)

	// The invitation is consumed.
	wsSend(t, bob, damedto.EventAccept, damedto.InvitationReply{InvitationID: inv.ID})
	var derr damedto.DomainError
	expect(t, bob, damedto.EventError, &derr)
	assert.Equal(t, wire.CodeConflict, derr.Code)
}

func TestInviteOfflinePeer(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.dial(t, "tg_1", "alice")
	expect(t, alice, damedto.EventFriendsOnline, nil)

	wsSend(t, alice, damedto.EventInvite, damedto.InvitePayload{FriendID: "tg_9"})
	var derr damedto.DomainError
	expect(t, alice, damedto.EventError, &derr)
	assert.Equal(t, wire.CodeTargetUnavailable, derr.Code)
}

func TestUnknownEventAndBadFrame(t *testing.T) {
	env := setupTestEnv(t)
	alice := env.dial(t, "tg_1", "alice")
	expect(t, alice, damedto.EventFriendsOnline, nil)

	wsSend(t, alice, "game:teleport", map[string]string{})
	var derr damedto.DomainError
	expect(t, alice, damedto.EventError, &derr)
	assert.Equal(t, wire.CodeBadRequest, derr.Code)
	assert.Contains(t, derr.Message, "game:teleport")

	ctx, cancel := timeoutCtx()
	defer cancel()
	require.NoError(t, alice.Write(ctx, websocket.MessageText, []byte("{not json")))
	expect(t, alice, damedto.EventError, &derr)
	assert.Equal(t, wire.CodeBadRequest, derr.Code)
}

func TestNewerConnectionReplacesOlder(t *testing.T) {
	env := setupTestEnv(t)
	first := env.dial(t, "tg_1", "alice")
	expect(t, first, damedto.EventFriendsOnline, nil)
	second := env.dial(t, "tg_1", "alice")
	expect(t, second, damedto.EventFriendsOnline, nil)

	ctx, cancel := timeoutCtx()
	defer cancel()
	var err error
	for err == nil {
		_, _, err = first.Read(ctx)
	}
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	assert.Equal(t, 1, env.reg.Online())
}

func TestReconnectResyncsRoom(t *testing.T) {
	env := setupTestEnv(t)
	alice, bob, gameID := startGame(t, env)

	require.NoError(t, alice.Close(websocket.StatusNormalClosure, ""))
	var disc damedto.PlayerDisconnected
	expect(t, bob, damedto.EventPlayerDisconnected, &disc)
	assert.Equal(t, "tg_1", disc.PlayerID)
	assert.Equal(t, int64(60), disc.ReconnectTime, "seconds")

	again := env.dial(t, "tg_1", "alice")
	var snap damedto.GameSnapshot
	expect(t, again, damedto.EventGameState, &snap)
	assert.Equal(t, gameID, snap.GameID)
	assert.Equal(t, "active", snap.Status)
	expect(t, bob, damedto.EventPlayerReconnected, nil)
}

func TestStaleDisconnectKeepsSeat(t *testing.T) {
	env := setupTestEnv(t)
	_, bob, gameID := startGame(t, env)

	ctx, cancel := timeoutCtx()
	defer cancel()
	require.NoError(t, env.mgr.Submit(ctx, gameID, match.Disconnect{PlayerID: "tg_1", ConnID: "replaced-conn"}))
	st, err := env.mgr.Snapshot(ctx, gameID)
	require.NoError(t, err)
	assert.Equal(t, [2]bool{true, true}, st.Connected)

	sess, ok := env.reg.Get("tg_1")
	require.True(t, ok)
	require.NoError(t, env.mgr.Submit(ctx, gameID, match.Disconnect{PlayerID: "tg_1", ConnID: sess.ConnID}))
	var disc damedto.PlayerDisconnected
	expect(t, bob, damedto.EventPlayerDisconnected, &disc)
	assert.Equal(t, "tg_1", disc.PlayerID)
}

func TestWebSocketRequiresToken(t *testing.T) {
	env := setupTestEnv(t)
	ctx, cancel := timeoutCtx()
	defer cancel()
	_, resp, err := websocket.Dial(ctx, env.wsURL(""), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = websocket.Dial(ctx, env.wsURL("garbage"), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	env := setupTestEnv(t)
	resp := env.get(t, "/healthz", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]any
	decodeJSON(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestSessionExchange(t *testing.T) {
	env := setupTestEnv(t)
	initData := "user=" + url.QueryEscape(`{"id":7,"username":"carol"}`) + "&auth_date=1"
	body, _ := json.Marshal(damedto.SessionRequest{InitData: initData})
	resp, err := http.Post(env.ts.URL+"/api/auth/session", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out damedto.SessionResponse
	decodeJSON(t, resp, &out)
	assert.Equal(t, "tg_7", out.Player.ID)
	assert.Equal(t, 1200, out.Player.Rating)

	id, err := env.auth.Verify(out.Token)
	require.NoError(t, err)
	assert.Equal(t, "carol", id.Username)

	resp2, err := http.Post(env.ts.URL+"/api/auth/session", "application/json", bytes.NewReader([]byte(`{"initData":"user=%7B%7D"}`)))
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp2.StatusCode)
}

func TestAIMove(t *testing.T) {
	env := setupTestEnv(t)
	b, err := draughts.NewInitialBoard(draughts.DefaultSize)
	require.NoError(t, err)

	token := env.token(t, "tg_1", "alice")
	send := func(req damedto.AIMoveRequest, token string) *http.Response {
		body, _ := json.Marshal(req)
		hreq, err := http.NewRequest(http.MethodPost, env.ts.URL+"/api/ai/move", bytes.NewReader(body))
		require.NoError(t, err)
		hreq.Header.Set("Content-Type", "application/json")
		if token != "" {
			hreq.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(hreq)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}
	post := func(req damedto.AIMoveRequest) *http.Response { return send(req, token) }

	resp := send(damedto.AIMoveRequest{Board: wire.BoardDTO(b), Player: "white", Difficulty: 2}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp = send(damedto.AIMoveRequest{Board: wire.BoardDTO(b), Player: "white", Difficulty: 2}, "garbage")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = post(damedto.AIMoveRequest{Board: wire.BoardDTO(b), Player: "white", Difficulty: 2})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var out damedto.AIMoveResponse
	decodeJSON(t, resp, &out)
	assert.Equal(t, 3, out.Move.From.Row)
	assert.Equal(t, 4, out.Move.To.Row)

	resp = post(damedto.AIMoveRequest{Board: wire.BoardDTO(b), Player: "white", Difficulty: 9})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(damedto.AIMoveRequest{Board: wire.BoardDTO(b), Player: "green", Difficulty: 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	empty, err := draughts.NewBoard(draughts.DefaultSize)
	require.NoError(t, err)
	resp = post(damedto.AIMoveRequest{Board: wire.BoardDTO(empty), Player: "black", Difficulty: 1})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestGameReadEndpoints(t *testing.T) {
	env := setupTestEnv(t)
	tok := env.token(t, "tg_1", "alice")

	assert.Equal(t, http.StatusUnauthorized, env.get(t, "/api/games/nope", "").StatusCode)
	assert.Equal(t, http.StatusNotFound, env.get(t, "/api/games/nope", tok).StatusCode)

	_, _, gameID := startGame(t, env)

	resp := env.get(t, "/api/games/"+gameID, tok)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap damedto.GameSnapshot
	decodeJSON(t, resp, &snap)
	assert.Equal(t, "white", snap.CurrentTurn)
	require.NotNil(t, snap.BetAmount)
	assert.InDelta(t, 10.0, *snap.BetAmount, 1e-9)

	png := env.get(t, "/api/games/"+gameID+"/board.png", "")
	require.Equal(t, http.StatusOK, png.StatusCode)
	assert.Equal(t, "image/png", png.Header.Get("Content-Type"))

	online := env.get(t, "/api/players/online", tok)
	require.Equal(t, http.StatusOK, online.StatusCode)
	var peers []damedto.Player
	decodeJSON(t, online, &peers)
	require.Len(t, peers, 1)
	assert.Equal(t, "tg_2", peers[0].ID)
}

func TestPlayerGames(t *testing.T) {
	env := setupTestEnv(t)
	now := time.Now()
	require.NoError(t, env.repo.SaveGame(context.Background(), &domain.GameRecord{
		ID: "g1", LightID: "tg_1", LightName: "alice", DarkID: "tg_2", DarkName: "bob",
		Result: "resignation", Winner: "black", WinnerID: "tg_2",
		Moves: []string{"32-43"}, StartedAt: now.Add(-time.Minute), EndedAt: now,
	}))

	resp := env.get(t, "/api/players/tg_2/games?limit=5", env.token(t, "tg_2", "bob"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var games []damedto.GameSummary
	decodeJSON(t, resp, &games)
	require.Len(t, games, 1)
	assert.Equal(t, "g1", games[0].GameID)
	assert.Equal(t, "alice", games[0].White.Username)
	assert.Equal(t, "black", games[0].Winner)
}

func TestCORSPreflight(t *testing.T) {
	env := setupTestEnv(t)
	env.srv.cfg.AllowedOrigins = []string{"app.example.com"}

	req, err := http.NewRequest(http.MethodOptions, env.ts.URL+"/api/auth/session", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
}
