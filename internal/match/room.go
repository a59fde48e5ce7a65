package match

import (
	"context"
	"sync"
	"time"

	"github.com/park285/dame-server/internal/obslog"
	"go.uber.org/zap"
)

// Publisher delivers room events to players. to lists recipient player IDs.
type Publisher interface {
	Publish(roomID string, to []string, ev Event)
}

// Settler performs the external side effects of a finished match. It is
// called exactly once per room with the final state.
type Settler interface {
	Settle(ctx context.Context, final *State) error
}

// SnapshotStore keeps room snapshots for reconnection after a restart.
type SnapshotStore interface {
	Save(ctx context.Context, st *State) error
	Delete(ctx context.Context, id string) error
	LoadActive(ctx context.Context) ([]*State, error)
}

type request struct {
	cmd   Command
	view  func(*State)
	reply chan error
}

// Room owns one State and serializes every mutation through its goroutine.
type Room struct {
	id    string
	state *State

	inbox chan request
	done  chan struct{}

	pub     Publisher
	settler Settler
	store   SnapshotStore
	now     func() time.Time
	tick    time.Duration

	timersMu sync.Mutex
	timers   map[string]*time.Timer

	onClose func(r *Room)
}

func (r *Room) ID() string { return r.id }

// Done is closed once the room has finished and left the registry.
func (r *Room) Done() <-chan struct{} { return r.done }

// Submit hands cmd to the room and waits for the transition result.
func (r *Room) Submit(ctx context.Context, cmd Command) error {
	return r.send(ctx, request{cmd: cmd, reply: make(chan error, 1)})
}

// View runs fn against the live state inside the room goroutine. fn must not
// retain the pointer.
func (r *Room) View(ctx context.Context, fn func(*State)) error {
	return r.send(ctx, request{view: fn, reply: make(chan error, 1)})
}

// Snapshot returns a copy of the current state.
func (r *Room) Snapshot(ctx context.Context) (*State, error) {
	var out *State
	err := r.View(ctx, func(s *State) { out = s.Clone() })
	return out, err
}

func (r *Room) send(ctx context.Context, req request) error {
	select {
	case r.inbox <- req:
	case <-r.done:
		return ErrRoomNotFound
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.reply:
		return err
	case <-r.done:
		// the request may have been the one that finished the room
		select {
		case err := <-req.reply:
			return err
		default:
			return ErrRoomNotFound
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) run(stop <-chan struct{}) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()
	for {
		select {
		case req := <-r.inbox:
			if req.view != nil {
				req.view(r.state)
				req.reply <- nil
				continue
			}
			req.reply <- r.handle(req.cmd)
		case <-ticker.C:
			_ = r.handle(Tick{})
		case <-stop:
			r.stopTimers()
			r.saveFinal()
			close(r.done)
			return
		}
		if r.state.Status == StatusFinished {
			r.close()
			return
		}
	}
}

func (r *Room) handle(cmd Command) error {
	events, err := r.state.Apply(cmd, r.now())
	if err != nil {
		return err
	}
	persist := false
	for _, ev := range events {
		switch e := ev.(type) {
		case PlayerDisconnected:
			r.scheduleGrace(e)
		case PlayerReconnected:
			r.cancelGrace(e.PlayerID)
		case Started, MoveMade:
			persist = true
		case Ended:
			obslog.L().Info("room_end",
				zap.String("room_id", r.id),
				zap.String("reason", string(e.Outcome.Reason)),
				zap.String("winner", e.Outcome.Winner.String()),
				zap.Int("moves", len(e.History)),
			)
		}
		if r.pub != nil {
			r.pub.Publish(r.id, r.recipients(ev), ev)
		}
	}
	if persist && r.store != nil && r.state.Status == StatusActive {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := r.store.Save(ctx, r.state); err != nil {
			obslog.L().Warn("room_snapshot_failed", zap.String("room_id", r.id), zap.Error(err))
		}
		cancel()
	}
	return nil
}

func (r *Room) recipients(ev Event) []string {
	if d, ok := ev.(DrawOffered); ok {
		return []string{d.To}
	}
	return []string{r.state.Players[0].ID, r.state.Players[1].ID}
}

func (r *Room) scheduleGrace(e PlayerDisconnected) {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	if t, ok := r.timers[e.PlayerID]; ok {
		t.Stop()
	}
	cmd := GraceExpired{PlayerID: e.PlayerID, Seq: e.Seq}
	r.timers[e.PlayerID] = time.AfterFunc(e.Grace, func() {
		// stale or late expiries are ignored by the state machine
		_ = r.Submit(context.Background(), cmd)
	})
}

func (r *Room) cancelGrace(playerID string) {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	if t, ok := r.timers[playerID]; ok {
		t.Stop()
		delete(r.timers, playerID)
	}
}

func (r *Room) stopTimers() {
	r.timersMu.Lock()
	defer r.timersMu.Unlock()
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
}

// close evicts the room and runs settlement once.
// saveFinal charges the running clock and writes one last snapshot so a
// restart does not hand the side to move the time spent since its last move.
func (r *Room) saveFinal() {
	if r.store == nil || r.state.Status != StatusActive {
		return
	}
	r.state.debit(r.now())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.store.Save(ctx, r.state.Clone()); err != nil {
		obslog.L().Warn("room_snapshot_failed", zap.String("room_id", r.id), zap.Error(err))
	}
}

func (r *Room) close() {
	r.stopTimers()
	final := r.state.Clone()
	if r.onClose != nil {
		r.onClose(r)
	}
	close(r.done)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if r.settler != nil && final.Outcome != nil && final.Outcome.Reason != ReasonAborted {
		if err := r.settler.Settle(ctx, final); err != nil {
			obslog.L().Error("room_settle_failed", zap.String("room_id", r.id), zap.Error(err))
		}
	}
	if r.store != nil {
		if err := r.store.Delete(ctx, r.id); err != nil {
			obslog.L().Warn("room_snapshot_delete_failed", zap.String("room_id", r.id), zap.Error(err))
		}
	}
}
