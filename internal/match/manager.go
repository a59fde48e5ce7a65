package match

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/dame-server/internal/draughts"
	"github.com/park285/dame-server/internal/obslog"
	"go.uber.org/zap"
)

type Options struct {
	BoardSize     int
	TimeControlMS int64
	Grace         time.Duration
	Tick          time.Duration

	Publisher Publisher
	Settler   Settler
	Store     SnapshotStore

	// Now and Coin are replaced in tests. Coin reports whether the first
	// player passed to Create takes light.
	Now  func() time.Time
	Coin func() bool
	// NewID defaults to uuid.NewString.
	NewID func() string
}

// Manager is the live room registry. Finished rooms remove themselves.
type Manager struct {
	opts Options

	mu     sync.RWMutex
	rooms  map[string]*Room
	closed bool

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewManager(opts Options) *Manager {
	if opts.BoardSize == 0 {
		opts.BoardSize = draughts.DefaultSize
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Coin == nil {
		opts.Coin = secureCoin
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Manager{
		opts:  opts,
		rooms: make(map[string]*Room),
		stop:  make(chan struct{}),
	}
}

// secureCoin flips once using crypto/rand.
func secureCoin() bool {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil || n == nil {
		return true
	}
	return n.Int64() == 0
}

func (m *Manager) rules() Rules {
	return Rules{TimeControlMS: m.opts.TimeControlMS, Grace: m.opts.Grace}.withDefaults()
}

// Create builds a waiting room for two players. A single coin flip decides
// who plays light. Nothing is registered if the snapshot cannot be stored.
func (m *Manager) Create(ctx context.Context, a, b Player, stake *Stake) (*Room, error) {
	players := [2]Player{a, b}
	if !m.opts.Coin() {
		players = [2]Player{b, a}
	}
	board, err := draughts.NewInitialBoard(m.opts.BoardSize)
	if err != nil {
		return nil, err
	}
	st, err := NewState(m.opts.NewID(), players, board, stake, m.rules(), m.opts.Now())
	if err != nil {
		return nil, err
	}
	if m.opts.Store != nil {
		if err := m.opts.Store.Save(ctx, st); err != nil {
			return nil, fmt.Errorf("save room snapshot: %w", err)
		}
	}
	r, err := m.start(st)
	if err != nil {
		if m.opts.Store != nil {
			_ = m.opts.Store.Delete(context.Background(), st.ID)
		}
		return nil, err
	}
	obslog.L().Info("room_create",
		zap.String("room_id", st.ID),
		zap.String("light_id", st.Players[0].ID),
		zap.String("dark_id", st.Players[1].ID),
		zap.Bool("staked", st.Stake != nil),
	)
	return r, nil
}

func (m *Manager) start(st *State) (*Room, error) {
	r := &Room{
		id:      st.ID,
		state:   st,
		inbox:   make(chan request),
		done:    make(chan struct{}),
		pub:     m.opts.Publisher,
		settler: m.opts.Settler,
		store:   m.opts.Store,
		now:     m.opts.Now,
		tick:    m.opts.Tick,
		timers:  make(map[string]*time.Timer),
		onClose: m.evict,
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	if _, dup := m.rooms[st.ID]; dup {
		m.mu.Unlock()
		return nil, fmt.Errorf("room %s already live", st.ID)
	}
	m.rooms[st.ID] = r
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		r.run(m.stop)
	}()
	return r, nil
}

func (m *Manager) evict(r *Room) {
	m.mu.Lock()
	if cur, ok := m.rooms[r.id]; ok && cur == r {
		delete(m.rooms, r.id)
	}
	m.mu.Unlock()
}

func (m *Manager) Get(id string) (*Room, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// Submit routes cmd to the room. Evicted or unknown rooms yield ErrRoomNotFound.
func (m *Manager) Submit(ctx context.Context, roomID string, cmd Command) error {
	r, ok := m.Get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return r.Submit(ctx, cmd)
}

func (m *Manager) Snapshot(ctx context.Context, roomID string) (*State, error) {
	r, ok := m.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r.Snapshot(ctx)
}

// IDs lists live room ids in sorted order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	out := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// Restore revives rooms from the snapshot store. Players start disconnected
// and receive a fresh grace window; clocks resume from now.
func (m *Manager) Restore(ctx context.Context) ([]*State, error) {
	if m.opts.Store == nil {
		return nil, nil
	}
	states, err := m.opts.Store.LoadActive(ctx)
	if err != nil {
		return nil, err
	}
	var restored []*State
	now := m.opts.Now()
	for _, st := range states {
		if st == nil || st.Status == StatusFinished || st.Board == nil {
			continue
		}
		if _, live := m.Get(st.ID); live {
			continue
		}
		st.Rules = st.Rules.withDefaults()
		st.Connected = [2]bool{}
		st.ClockSince = now
		r, err := m.start(st)
		if err != nil {
			obslog.L().Warn("room_restore_failed", zap.String("room_id", st.ID), zap.Error(err))
			continue
		}
		for _, p := range st.Players {
			_ = r.Submit(ctx, Disconnect{PlayerID: p.ID})
		}
		if snap, err := r.Snapshot(ctx); err == nil {
			restored = append(restored, snap)
		}
		obslog.L().Info("room_restore", zap.String("room_id", st.ID), zap.String("status", string(st.Status)))
	}
	return restored, nil
}

// Close stops every room without settling and waits for their goroutines.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	close(m.stop)
	m.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
