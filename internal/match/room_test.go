package match

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	room string
	to   []string
	ev   Event
}

type recorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recorder) Publish(roomID string, to []string, ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{room: roomID, to: to, ev: ev})
}

func (r *recorder) count(match func(Event) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if match(e.ev) {
			n++
		}
	}
	return n
}

func isEnded(ev Event) bool { _, ok := ev.(Ended); return ok }

type countingSettler struct {
	mu    sync.Mutex
	calls []*State
}

func (s *countingSettler) Settle(ctx context.Context, final *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, final)
	return nil
}

func (s *countingSettler) n() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

type failingStore struct{}

func (failingStore) Save(context.Context, *State) error           { return errors.New("redis down") }
func (failingStore) Delete(context.Context, string) error         { return nil }
func (failingStore) LoadActive(context.Context) ([]*State, error) { return nil, nil }

// memStore keeps the last snapshot saved per room.
type memStore struct {
	mu    sync.Mutex
	saved map[string]*State
}

func (s *memStore) Save(_ context.Context, st *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = map[string]*State{}
	}
	s.saved[st.ID] = st.Clone()
	return nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	return nil
}

func (s *memStore) LoadActive(context.Context) ([]*State, error) { return nil, nil }

func (s *memStore) get(id string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[id]
}

func newTestManager(t *testing.T, opts Options) (*Manager, *recorder, *countingSettler) {
	t.Helper()
	rec := &recorder{}
	set := &countingSettler{}
	opts.Publisher = rec
	opts.Settler = set
	if opts.Tick == 0 {
		opts.Tick = 10 * time.Millisecond
	}
	if opts.Coin == nil {
		opts.Coin = func() bool { return true }
	}
	m := NewManager(opts)
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m, rec, set
}

func startRoom(t *testing.T, m *Manager) *Room {
	t.Helper()
	ctx := context.Background()
	p := testPlayers()
	r, err := m.Create(ctx, p[0], p[1], &Stake{Amount: 10, Currency: "STARS"})
	require.NoError(t, err)
	require.NoError(t, r.Submit(ctx, Join{PlayerID: "tg_1"}))
	require.NoError(t, r.Submit(ctx, Join{PlayerID: "tg_2"}))
	return r
}

func TestCreateAssignsColorsWithOneFlip(t *testing.T) {
	flips := 0
	m, _, _ := newTestManager(t, Options{Coin: func() bool { flips++; return false }})
	p := testPlayers()
	r, err := m.Create(context.Background(), p[0], p[1], nil)
	require.NoError(t, err)
	assert.Equal(t, 1, flips)
	snap, err := r.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tg_2", snap.Players[0].ID, "losing the flip gives light to the second player")
	assert.Equal(t, StatusWaiting, snap.Status)
}

func TestRoomBroadcastsAndRejectsLocally(t *testing.T) {
	m, rec, _ := newTestManager(t, Options{})
	r := startRoom(t, m)
	ctx := context.Background()

	err := m.Submit(ctx, r.ID(), PlayMove{PlayerID: "tg_2", Move: mv(6, 1, 5, 0)})
	assert.ErrorIs(t, err, ErrNotYourTurn)
	require.NoError(t, m.Submit(ctx, r.ID(), PlayMove{PlayerID: "tg_1", Move: mv(3, 2, 4, 3)}))

	assert.Equal(t, 1, rec.count(func(ev Event) bool { _, ok := ev.(Started); return ok }))
	assert.Equal(t, 1, rec.count(func(ev Event) bool { _, ok := ev.(MoveMade); return ok }))

	require.NoError(t, m.Submit(ctx, r.ID(), OfferDraw{PlayerID: "tg_1"}))
	rec.mu.Lock()
	last := rec.events[len(rec.events)-1]
	rec.mu.Unlock()
	assert.Equal(t, []string{"tg_2"}, last.to)
}

func TestResignSettlesOnceAndEvicts(t *testing.T) {
	m, rec, set := newTestManager(t, Options{})
	r := startRoom(t, m)
	ctx := context.Background()

	require.NoError(t, m.Submit(ctx, r.ID(), Resign{PlayerID: "tg_2"}))
	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatalf("room did not finish")
	}
	require.Eventually(t, func() bool { return set.n() == 1 }, time.Second, 5*time.Millisecond)

	assert.ErrorIs(t, m.Submit(ctx, r.ID(), Resign{PlayerID: "tg_1"}), ErrRoomNotFound)
	assert.ErrorIs(t, r.Submit(ctx, Tick{}), ErrRoomNotFound)
	assert.Equal(t, 0, m.Count())
	assert.Equal(t, 1, rec.count(isEnded))

	final := set.calls[0]
	require.NotNil(t, final.Settlement)
	require.NotNil(t, final.Settlement.Payout)
	assert.Equal(t, "tg_1", final.Settlement.Payout.PlayerID)
	assert.Equal(t, 19.0, final.Settlement.Payout.Amount)
}

func TestClockExpiryEndsRoom(t *testing.T) {
	m, rec, set := newTestManager(t, Options{TimeControlMS: 50, Tick: 10 * time.Millisecond})
	r := startRoom(t, m)
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("clock never expired")
	}
	require.Eventually(t, func() bool { return set.n() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonTimeout, set.calls[0].Outcome.Reason)
	assert.Equal(t, "dark", set.calls[0].Outcome.Winner.String())
	assert.Equal(t, 1, rec.count(isEnded))
}

func TestReconnectWithinGraceKeepsRoom(t *testing.T) {
	m, _, set := newTestManager(t, Options{Grace: 80 * time.Millisecond, Tick: time.Hour})
	r := startRoom(t, m)
	ctx := context.Background()

	require.NoError(t, r.Submit(ctx, Disconnect{PlayerID: "tg_2"}))
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.Submit(ctx, Reconnect{PlayerID: "tg_2"}))
	time.Sleep(150 * time.Millisecond)

	snap, err := r.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, snap.Status)
	assert.Equal(t, 0, set.n())
}

func TestGraceExpiryForfeits(t *testing.T) {
	m, _, set := newTestManager(t, Options{Grace: 30 * time.Millisecond, Tick: time.Hour})
	r := startRoom(t, m)
	require.NoError(t, r.Submit(context.Background(), Disconnect{PlayerID: "tg_1"}))
	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("grace never expired")
	}
	require.Eventually(t, func() bool { return set.n() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ReasonDisconnect, set.calls[0].Outcome.Reason)
	assert.Equal(t, "tg_2", set.calls[0].Settlement.Payout.PlayerID)
}

func TestCreateLeavesNoRoomWhenStoreFails(t *testing.T) {
	m, _, _ := newTestManager(t, Options{Store: failingStore{}})
	p := testPlayers()
	_, err := m.Create(context.Background(), p[0], p[1], nil)
	require.Error(t, err)
	assert.Equal(t, 0, m.Count())
}

func TestCloseStopsRooms(t *testing.T) {
	m, _, set := newTestManager(t, Options{Tick: time.Hour})
	r := startRoom(t, m)
	require.NoError(t, m.Close(context.Background()))
	assert.ErrorIs(t, r.Submit(context.Background(), Tick{}), ErrRoomNotFound)
	assert.Equal(t, 0, set.n())
	_, err := m.Create(context.Background(), Player{ID: "a"}, Player{ID: "b"}, nil)
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestShutdownSavesChargedClock(t *testing.T) {
	var mu sync.Mutex
	now := t0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	store := &memStore{}
	m, _, _ := newTestManager(t, Options{Store: store, Tick: time.Hour, Now: clock})
	r := startRoom(t, m)
	require.NotNil(t, store.get(r.ID()))
	assert.Equal(t, int64(DefaultTimeControlMS), store.get(r.ID()).Clocks.Light)

	mu.Lock()
	now = now.Add(5 * time.Second)
	mu.Unlock()
	require.NoError(t, m.Close(context.Background()))

	saved := store.get(r.ID())
	require.NotNil(t, saved)
	assert.Equal(t, StatusActive, saved.Status)
	assert.Equal(t, int64(DefaultTimeControlMS-5000), saved.Clocks.Light)
	assert.Equal(t, int64(DefaultTimeControlMS), saved.Clocks.Dark)
}
