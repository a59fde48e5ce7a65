package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/park285/dame-server/internal/ai"
	"github.com/park285/dame-server/internal/domain"
	"github.com/park285/dame-server/internal/draughts"
	"github.com/park285/dame-server/internal/obslog"
	"github.com/park285/dame-server/internal/render"
	"github.com/park285/dame-server/internal/wire"
	"github.com/park285/dame-server/pkg/damedto"
	"go.uber.org/zap"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"rooms":  s.cfg.Matches.Count(),
		"online": s.cfg.Presence.Online(),
	})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	var req damedto.SessionRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id, err := s.cfg.Auth.VerifyInitData(req.InitData)
	if err != nil {
		obslog.L().Info("session_rejected", zap.Error(err))
		s.writeError(w, err)
		return
	}
	token, exp, err := s.cfg.Auth.Issue(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	p := s.player(r.Context(), id)
	writeJSON(w, http.StatusOK, damedto.SessionResponse{
		Token:     token,
		ExpiresAt: exp.UnixMilli(),
		Player:    wire.PlayerDTO(p, draughts.NoColor),
	})
}

// handleAIMove is stateless: a signed-in client posts a position and gets a
// reply.
func (s *Server) handleAIMove(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AI == nil {
		writeJSON(w, http.StatusServiceUnavailable, damedto.DomainError{Code: wire.CodeInternal, Message: s.cfg.Catalog.Text("error.internal", nil), Retryable: true})
		return
	}
	var req damedto.AIMoveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	b, err := wire.BoardFromDTO(req.Board)
	if err != nil {
		s.writeError(w, err)
		return
	}
	color, err := wire.ParseColor(req.Player)
	if err != nil || color == draughts.NoColor {
		s.writeError(w, wire.ErrBadRequest)
		return
	}
	mv, ok, err := s.cfg.AI.BestMove(r.Context(), b, color, req.Difficulty)
	if err != nil {
		if errors.Is(err, ai.ErrInvalidDifficulty) {
			err = wire.ErrBadRequest
		}
		s.writeError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, damedto.AIMoveResponse{Move: wire.MoveDTO(mv)})
}

func (s *Server) handleGame(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Matches.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wire.Snapshot(st))
}

// handleBoardPNG is public so chat clients can unfurl the image link.
func (s *Server) handleBoardPNG(w http.ResponseWriter, r *http.Request) {
	st, err := s.cfg.Matches.Snapshot(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	opts := render.Options{
		Title: s.cfg.Catalog.Text("render.title", map[string]any{
			"Light": st.Players[0].DisplayName,
			"Dark":  st.Players[1].DisplayName,
		}),
		Status: s.cfg.Catalog.Text("render.turn", map[string]any{"Color": wire.ColorName(st.Turn)}),
	}
	if st.Outcome != nil {
		opts.Status = s.cfg.Catalog.Text("render.finished", map[string]any{"Result": string(st.Outcome.Reason)})
	}
	if n := len(st.History); n > 0 {
		last := st.History[n-1].Move
		opts.LastMove = &last
	}
	png, err := render.PNG(r.Context(), st.Board, opts)
	if err != nil {
		obslog.L().Warn("board_render_failed", zap.String("room_id", st.ID), zap.Error(err))
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (s *Server) handleOnline(w http.ResponseWriter, r *http.Request) {
	me := identityFrom(r.Context())
	peers := s.cfg.Presence.ListOnlinePeers(me.ID)
	out := make([]damedto.Player, 0, len(peers))
	for _, p := range peers {
		out = append(out, wire.PlayerDTO(p, draughts.NoColor))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePlayerGames(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Repo == nil {
		writeJSON(w, http.StatusOK, []damedto.GameSummary{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	games, err := s.cfg.Repo.RecentGames(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		obslog.L().Warn("recent_games_failed", zap.String("player_id", r.PathValue("id")), zap.Error(err))
		s.writeError(w, err)
		return
	}
	out := make([]damedto.GameSummary, 0, len(games))
	for _, g := range games {
		out = append(out, gameSummary(g))
	}
	writeJSON(w, http.StatusOK, out)
}

func gameSummary(g *domain.GameRecord) damedto.GameSummary {
	return damedto.GameSummary{
		GameID:    g.ID,
		White:     damedto.Player{ID: g.LightID, Username: g.LightName, Color: wire.ColorName(draughts.Light)},
		Black:     damedto.Player{ID: g.DarkID, Username: g.DarkName, Color: wire.ColorName(draughts.Dark)},
		Result:    g.Result,
		Winner:    g.Winner,
		Moves:     g.Moves,
		BetAmount: g.StakeAmount,
		Payout:    g.Payout,
		StartedAt: g.StartedAt.UnixMilli(),
		EndedAt:   g.EndedAt.UnixMilli(),
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBodyBytes))
	if err := dec.Decode(v); err != nil {
		return wire.ErrBadRequest
	}
	return nil
}

var statusByCode = map[string]int{
	wire.CodeAuthentication:    http.StatusUnauthorized,
	wire.CodeBadRequest:        http.StatusBadRequest,
	wire.CodeInvalidMove:       http.StatusUnprocessableEntity,
	wire.CodeRoomNotFound:      http.StatusNotFound,
	wire.CodeTargetUnavailable: http.StatusConflict,
	wire.CodeConflict:          http.StatusConflict,
	wire.CodeInternal:          http.StatusInternalServerError,
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	dto := wire.ErrorDTO(s.cfg.Catalog, err)
	status, ok := statusByCode[dto.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, dto)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
