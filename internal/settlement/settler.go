// Package settlement carries out the side effects of a finished match:
// payout, archive and rating updates.
package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/dame-server/internal/backend"
	"github.com/park285/dame-server/internal/domain"
	"github.com/park285/dame-server/internal/draughts"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/internal/obslog"
	"github.com/park285/dame-server/internal/repository"
	"go.uber.org/zap"
)

// Backend is the subset of the backend API used here.
type Backend interface {
	Payout(ctx context.Context, req backend.PayoutRequest) error
	SaveGame(ctx context.Context, req backend.SaveGameRequest) error
	UpdateRating(ctx context.Context, playerID string, rating int) error
}

type Settler struct {
	api  Backend
	repo repository.Repository
}

var _ match.Settler = (*Settler)(nil)

// New accepts nil for either collaborator.
func New(api Backend, repo repository.Repository) *Settler {
	return &Settler{api: api, repo: repo}
}

// Settle runs every step even when an earlier one fails and returns the
// joined failures. A disabled backend is not a failure.
func (s *Settler) Settle(ctx context.Context, final *match.State) error {
	if final == nil || final.Outcome == nil || final.Settlement == nil {
		return errors.New("settle: match not finished")
	}
	log := obslog.L().With(zap.String("room_id", final.ID))
	var errs []error
	step := func(event string, err error) {
		if err == nil || errors.Is(err, backend.ErrDisabled) {
			return
		}
		log.Error(event, zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", event, err))
	}

	if p := final.Settlement.Payout; p != nil && s.api != nil {
		err := s.api.Payout(ctx, backend.PayoutRequest{
			PlayerID: p.PlayerID, Amount: p.Amount, Currency: p.Currency, GameID: final.ID,
		})
		if err == nil {
			log.Info("settle_payout", zap.String("player_id", p.PlayerID), zap.Float64("amount", p.Amount))
		}
		step("settle_payout_failed", err)
	}

	rec := Record(final)
	if s.api != nil {
		step("settle_save_game_failed", s.api.SaveGame(ctx, saveRequest(final, rec)))
	}
	if s.repo != nil {
		err := s.repo.SaveGame(ctx, rec)
		if errors.Is(err, repository.ErrDuplicateGame) {
			err = nil
		}
		step("settle_archive_failed", err)
	}

	for i, rc := range final.Settlement.Ratings {
		if s.api != nil {
			step("settle_rating_failed", s.api.UpdateRating(ctx, rc.PlayerID, rc.After))
		}
		if s.repo != nil {
			step("settle_profile_failed", s.updateProfile(ctx, final, i, rc))
		}
	}
	return errors.Join(errs...)
}

func (s *Settler) updateProfile(ctx context.Context, final *match.State, seat int, rc match.RatingChange) error {
	prof, err := s.repo.GetProfile(ctx, rc.PlayerID)
	if err != nil {
		return err
	}
	if prof == nil {
		prof = &domain.PlayerProfile{PlayerID: rc.PlayerID}
	}
	prof.DisplayName = final.Players[seat].DisplayName
	prof.Rating = rc.After
	prof.GamesPlayed++
	seatColor := draughts.Light
	if seat == 1 {
		seatColor = draughts.Dark
	}
	switch final.Outcome.Winner {
	case draughts.NoColor:
		prof.Draws++
	case seatColor:
		prof.Wins++
	default:
		prof.Losses++
	}
	prof.UpdatedAt = final.EndedAt
	return s.repo.UpsertProfile(ctx, prof)
}

// Record flattens a finished state into an archive row.
func Record(st *match.State) *domain.GameRecord {
	rec := &domain.GameRecord{
		ID:        st.ID,
		LightID:   st.Players[0].ID,
		LightName: st.Players[0].DisplayName,
		DarkID:    st.Players[1].ID,
		DarkName:  st.Players[1].DisplayName,
		StartedAt: st.StartedAt,
		EndedAt:   st.EndedAt,
		Moves:     make([]string, 0, len(st.History)),
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = st.CreatedAt
	}
	rec.Duration = rec.EndedAt.Sub(rec.StartedAt)
	if rec.Duration < 0 {
		rec.Duration = 0
	}
	for _, h := range st.History {
		rec.Moves = append(rec.Moves, h.Move.String())
	}
	if st.Outcome != nil {
		rec.Result = string(st.Outcome.Reason)
		rec.Winner = st.Outcome.Winner.String()
		if st.Outcome.Winner != draughts.NoColor {
			rec.WinnerID = st.PlayerOf(st.Outcome.Winner).ID
		}
	}
	if st.Stake != nil {
		rec.StakeAmount = st.Stake.Amount
		rec.Currency = st.Stake.Currency
	}
	if st.Settlement != nil && st.Settlement.Payout != nil {
		rec.Payout = st.Settlement.Payout.Amount
	}
	return rec
}

func saveRequest(st *match.State, rec *domain.GameRecord) backend.SaveGameRequest {
	req := backend.SaveGameRequest{
		ID: rec.ID,
		Players: []backend.GamePlayer{
			{ID: rec.LightID, Username: rec.LightName, Color: "white"},
			{ID: rec.DarkID, Username: rec.DarkName, Color: "black"},
		},
		Result:      backend.GameResult{Reason: rec.Result, Winner: rec.WinnerID},
		MoveHistory: rec.Moves,
		StartTime:   rec.StartedAt,
		EndTime:     rec.EndedAt,
	}
	if st.Stake != nil {
		req.BetAmount = st.Stake.Amount
		req.BetCurrency = st.Stake.Currency
	}
	return req
}
