package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/park285/dame-server/internal/backend"
	"github.com/park285/dame-server/internal/draughts"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/internal/obslog"
	"github.com/park285/dame-server/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeBackend struct {
	mu        sync.Mutex
	payouts   []backend.PayoutRequest
	games     []backend.SaveGameRequest
	ratings   map[string]int
	payoutErr error
}

func (f *fakeBackend) Payout(_ context.Context, req backend.PayoutRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payouts = append(f.payouts, req)
	return f.payoutErr
}

func (f *fakeBackend) SaveGame(_ context.Context, req backend.SaveGameRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games = append(f.games, req)
	return nil
}

func (f *fakeBackend) UpdateRating(_ context.Context, id string, rating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ratings == nil {
		f.ratings = map[string]int{}
	}
	f.ratings[id] = rating
	return nil
}

func finishedByResign(t *testing.T, stake *match.Stake) *match.State {
	t.Helper()
	t0 := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	b, err := draughts.NewInitialBoard(draughts.DefaultSize)
	require.NoError(t, err)
	st, err := match.NewState("room-1", [2]match.Player{{ID: "tg_1", DisplayName: "alice"}, {ID: "tg_2", DisplayName: "bob"}}, b, stake, match.Rules{}, t0)
	require.NoError(t, err)
	for _, cmd := range []match.Command{
		match.Join{PlayerID: "tg_1"},
		match.Join{PlayerID: "tg_2"},
		match.PlayMove{PlayerID: "tg_1", Move: draughts.Move{From: draughts.Position{Row: 3, Col: 2}, To: draughts.Position{Row: 4, Col: 3}}},
		match.Resign{PlayerID: "tg_2"},
	} {
		_, err := st.Apply(cmd, t0.Add(time.Minute))
		require.NoError(t, err)
	}
	require.Equal(t, match.StatusFinished, st.Status)
	return st
}

func TestSettleFansOut(t *testing.T) {
	api := &fakeBackend{}
	repo := repository.NewMemory()
	s := New(api, repo)
	ctx := context.Background()
	final := finishedByResign(t, &match.Stake{Amount: 10, Currency: "STARS"})

	logs := observeLogs(t)
	require.NoError(t, s.Settle(ctx, final))

	require.Len(t, api.payouts, 1)
	assert.Equal(t, 1, logs.FilterMessage("settle_payout").Len())
	assert.Equal(t, backend.PayoutRequest{PlayerID: "tg_1", Amount: 19, Currency: "STARS", GameID: "room-1"}, api.payouts[0])
	require.Len(t, api.games, 1)
	assert.Equal(t, []string{"(3,2)-(4,3)"}, api.games[0].MoveHistory)
	assert.Equal(t, "tg_1", api.games[0].Result.Winner)
	assert.Equal(t, map[string]int{"tg_1": 1216, "tg_2": 1184}, api.ratings)

	games, err := repo.RecentGames(ctx, "tg_2", 5)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "resignation", games[0].Result)
	assert.Equal(t, 19.0, games[0].Payout)

	winner, err := repo.GetProfile(ctx, "tg_1")
	require.NoError(t, err)
	assert.Equal(t, 1216, winner.Rating)
	assert.Equal(t, 1, winner.Wins)
	loser, err := repo.GetProfile(ctx, "tg_2")
	require.NoError(t, err)
	assert.Equal(t, 1, loser.Losses)
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zap.InfoLevel)
	prev := obslog.L()
	obslog.Set(zap.New(core))
	t.Cleanup(func() { obslog.Set(prev) })
	return logs
}

func TestSettleContinuesAfterPayoutFailure(t *testing.T) {
	logs := observeLogs(t)
	api := &fakeBackend{payoutErr: errors.New("balance service down")}
	repo := repository.NewMemory()
	err := New(api, repo).Settle(context.Background(), finishedByResign(t, &match.Stake{Amount: 1}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "settle_payout_failed")
	assert.Zero(t, logs.FilterMessage("settle_payout").Len(), "failed payout must not log success")
	assert.Equal(t, 1, logs.FilterMessage("settle_payout_failed").Len())
	assert.Len(t, api.games, 1)
	assert.Len(t, api.ratings, 2)
}

func TestSettleWithoutCollaborators(t *testing.T) {
	assert.NoError(t, New(nil, nil).Settle(context.Background(), finishedByResign(t, nil)))
	assert.Error(t, New(nil, nil).Settle(context.Background(), &match.State{}))
}

func TestDisabledBackendIsNotAFailure(t *testing.T) {
	s := New(backend.NewClient(""), repository.NewMemory())
	assert.NoError(t, s.Settle(context.Background(), finishedByResign(t, &match.Stake{Amount: 3})))
}
