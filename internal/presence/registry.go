// Package presence tracks connected players, the player to room index and
// pending invitations. It never decides room lifecycle.
package presence

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrPeerUnavailable    = errors.New("peer unavailable")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrSelfInvite         = errors.New("cannot invite yourself")
	ErrNotRegistered      = errors.New("player not connected")
)

// DefaultInvitationTTL bounds how long an unanswered invitation stays valid.
const DefaultInvitationTTL = 5 * time.Minute

// Sink is the outbound side of one connection. Send must not block.
type Sink interface {
	Send(event string, payload any) bool
}

// Session is one authenticated connection. ConnID changes on every reconnect.
type Session struct {
	Player match.Player
	ConnID string
	Since  time.Time

	sink Sink
}

func NewSession(p match.Player, sink Sink) *Session {
	return &Session{Player: p, ConnID: uuid.NewString(), sink: sink}
}

// Deliver forwards one event to the connection. It reports false when the
// outbound queue is full or the session has no sink.
func (s *Session) Deliver(event string, payload any) bool {
	if s == nil || s.sink == nil {
		return false
	}
	return s.sink.Send(event, payload)
}

func (s *Session) Sink() Sink { return s.sink }

type Invitation struct {
	ID        string       `json:"id"`
	From      match.Player `json:"from"`
	ToID      string       `json:"to"`
	Stake     *match.Stake `json:"stake,omitempty"`
	CreatedAt time.Time    `json:"timestamp"`
}

type Options struct {
	InvitationTTL time.Duration
	Now           func() time.Time
}

// Registry is safe for concurrent use by many connections.
type Registry struct {
	ttl time.Duration
	now func() time.Time

	mu          sync.RWMutex
	sessions    map[string]*Session
	roomOf      map[string]string
	invitations map[string]*Invitation
}

func NewRegistry(opts Options) *Registry {
	if opts.InvitationTTL <= 0 {
		opts.InvitationTTL = DefaultInvitationTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		ttl:         opts.InvitationTTL,
		now:         opts.Now,
		sessions:    make(map[string]*Session),
		roomOf:      make(map[string]string),
		invitations: make(map[string]*Invitation),
	}
}

// Register makes s the live session for its player and returns the session it
// replaced, if any. The last registration wins.
func (r *Registry) Register(s *Session) *Session {
	s.Since = r.now()
	r.mu.Lock()
	prev := r.sessions[s.Player.ID]
	r.sessions[s.Player.ID] = s
	r.mu.Unlock()
	obslog.L().Info("presence_register",
		zap.String("player_id", s.Player.ID),
		zap.String("conn_id", s.ConnID),
		zap.Bool("replaced", prev != nil),
	)
	return prev
}

// Unregister removes the player only while connID still owns the slot. A
// stale connection closing after a reconnect is a no-op.
func (r *Registry) Unregister(playerID, connID string) bool {
	r.mu.Lock()
	cur, ok := r.sessions[playerID]
	if !ok || cur.ConnID != connID {
		r.mu.Unlock()
		return false
	}
	delete(r.sessions, playerID)
	r.mu.Unlock()
	obslog.L().Info("presence_unregister", zap.String("player_id", playerID), zap.String("conn_id", connID))
	return true
}

func (r *Registry) Get(playerID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[playerID]
	return s, ok
}

func (r *Registry) Online() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Send delivers to the player's current session. Offline players are skipped.
func (r *Registry) Send(playerID, event string, payload any) bool {
	s, ok := r.Get(playerID)
	if !ok {
		return false
	}
	return s.Deliver(event, payload)
}

// Broadcast delivers to every session except the excluded player.
func (r *Registry) Broadcast(excluding, event string, payload any) {
	r.mu.RLock()
	targets := make([]*Session, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id != excluding {
			targets = append(targets, s)
		}
	}
	r.mu.RUnlock()
	for _, s := range targets {
		s.Deliver(event, payload)
	}
}

// ListOnlinePeers returns connected players other than excluding, ordered by
// display name.
func (r *Registry) ListOnlinePeers(excluding string) []match.Player {
	r.mu.RLock()
	out := make([]match.Player, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == excluding {
			continue
		}
		out = append(out, s.Player)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Invite records an invitation from an online player to an online peer.
// Offline targets fail immediately; nothing is queued.
func (r *Registry) Invite(fromID, toID string, stake *match.Stake) (*Invitation, error) {
	if fromID == toID {
		return nil, ErrSelfInvite
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	from, ok := r.sessions[fromID]
	if !ok {
		return nil, ErrNotRegistered
	}
	if _, ok := r.sessions[toID]; !ok {
		return nil, ErrPeerUnavailable
	}
	if stake != nil && stake.Amount <= 0 {
		stake = nil
	}
	now := r.now()
	r.pruneLocked(now)
	inv := &Invitation{
		ID:        uuid.NewString(),
		From:      from.Player,
		ToID:      toID,
		Stake:     stake,
		CreatedAt: now,
	}
	r.invitations[inv.ID] = inv
	obslog.L().Info("invite_sent",
		zap.String("invitation_id", inv.ID),
		zap.String("from_id", fromID),
		zap.String("to_id", toID),
		zap.Bool("staked", stake != nil),
	)
	return inv, nil
}

// TakeInvitation consumes an invitation addressed to acceptorID. It succeeds
// at most once per invitation.
func (r *Registry) TakeInvitation(id, acceptorID string) (*Invitation, error) {
	return r.take(id, acceptorID)
}

// Decline consumes the invitation without starting a match.
func (r *Registry) Decline(id, by string) (*Invitation, error) {
	inv, err := r.take(id, by)
	if err == nil {
		obslog.L().Info("invite_declined", zap.String("invitation_id", id), zap.String("by", by))
	}
	return inv, err
}

func (r *Registry) take(id, playerID string) (*Invitation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(r.now())
	inv, ok := r.invitations[id]
	if !ok || inv.ToID != playerID {
		return nil, ErrInvitationNotFound
	}
	delete(r.invitations, id)
	return inv, nil
}

func (r *Registry) pruneLocked(now time.Time) {
	for id, inv := range r.invitations {
		if now.Sub(inv.CreatedAt) > r.ttl {
			delete(r.invitations, id)
		}
	}
}

// BindRoom points each player at roomID.
func (r *Registry) BindRoom(roomID string, playerIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range playerIDs {
		r.roomOf[id] = roomID
	}
}

// UnbindRoom drops every player entry that still points at roomID.
func (r *Registry) UnbindRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, room := range r.roomOf {
		if room == roomID {
			delete(r.roomOf, id)
		}
	}
}

func (r *Registry) RoomOf(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.roomOf[playerID]
	return id, ok
}
