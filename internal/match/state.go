package match

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/park285/dame-server/internal/draughts"
)

// Rules are the per-room constants the transition function needs.
type Rules struct {
	TimeControlMS int64         `json:"timeControlMs"`
	Grace         time.Duration `json:"grace"`
}

func (r Rules) withDefaults() Rules {
	if r.TimeControlMS <= 0 {
		r.TimeControlMS = DefaultTimeControlMS
	}
	if r.Grace <= 0 {
		r.Grace = DefaultGrace
	}
	return r
}

// State is one room's authoritative match state. It is not safe for
// concurrent use; Room serializes access.
type State struct {
	ID      string          `json:"id"`
	Players [2]Player       `json:"players"`
	Board   *draughts.Board `json:"board"`
	Turn    draughts.Color  `json:"turn"`
	Status  Status          `json:"status"`
	Stake   *Stake          `json:"stake,omitempty"`
	Clocks  Clocks          `json:"clocks"`
	Rules   Rules           `json:"rules"`

	CreatedAt  time.Time `json:"createdAt"`
	StartedAt  time.Time `json:"startedAt,omitempty"`
	LastMoveAt time.Time `json:"lastMoveAt,omitempty"`
	EndedAt    time.Time `json:"endedAt,omitempty"`
	// ClockSince is when the side to move was last debited.
	ClockSince time.Time `json:"clockSince,omitempty"`

	History []HistoryEntry `json:"moveHistory"`
	Chat    []ChatMessage  `json:"chat"`

	Joined      [2]bool        `json:"joined"`
	Connected   [2]bool        `json:"connected"`
	GraceSeq    [2]uint64      `json:"graceSeq"`
	// ConnIDs name the connection that last joined each seat.
	ConnIDs [2]string `json:"-"`
	DrawOfferBy draughts.Color `json:"drawOfferBy,omitempty"`

	Outcome    *Outcome    `json:"outcome,omitempty"`
	Settlement *Settlement `json:"settlement,omitempty"`
}

// NewState builds a waiting room. players[0] plays light.
func NewState(id string, players [2]Player, board *draughts.Board, stake *Stake, rules Rules, now time.Time) (*State, error) {
	if strings.TrimSpace(players[0].ID) == "" || strings.TrimSpace(players[1].ID) == "" || players[0].ID == players[1].ID {
		return nil, ErrInvalidPlayers
	}
	if board == nil {
		return nil, fmt.Errorf("nil board")
	}
	rules = rules.withDefaults()
	for i := range players {
		if players[i].Rating <= 0 {
			players[i].Rating = DefaultRating
		}
	}
	if stake != nil && stake.Amount <= 0 {
		stake = nil
	}
	return &State{
		ID:        id,
		Players:   players,
		Board:     board,
		Turn:      draughts.Light,
		Status:    StatusWaiting,
		Stake:     stake,
		Rules:     rules,
		Clocks:    Clocks{Light: rules.TimeControlMS, Dark: rules.TimeControlMS},
		CreatedAt: now,
		History:   []HistoryEntry{},
		Chat:      []ChatMessage{},
	}, nil
}

// Seat returns the index of playerID in Players, or -1.
func (s *State) Seat(playerID string) int {
	for i, p := range s.Players {
		if p.ID == playerID {
			return i
		}
	}
	return -1
}

// ColorOf maps a player to a color. Seat 0 is light.
func (s *State) ColorOf(playerID string) draughts.Color {
	switch s.Seat(playerID) {
	case 0:
		return draughts.Light
	case 1:
		return draughts.Dark
	default:
		return draughts.NoColor
	}
}

// PlayerOf returns the player holding color.
func (s *State) PlayerOf(color draughts.Color) Player {
	if color == draughts.Dark {
		return s.Players[1]
	}
	return s.Players[0]
}

// Clone returns a copy that shares no mutable data with s.
func (s *State) Clone() *State {
	c := *s
	if s.Board != nil {
		c.Board = s.Board.Clone()
	}
	if s.Stake != nil {
		st := *s.Stake
		c.Stake = &st
	}
	c.History = append([]HistoryEntry(nil), s.History...)
	c.Chat = append([]ChatMessage(nil), s.Chat...)
	if s.Outcome != nil {
		o := *s.Outcome
		c.Outcome = &o
	}
	if s.Settlement != nil {
		st := *s.Settlement
		if s.Settlement.Payout != nil {
			p := *s.Settlement.Payout
			st.Payout = &p
		}
		c.Settlement = &st
	}
	return &c
}

// Apply runs one transition. On error the state is unchanged.
func (s *State) Apply(cmd Command, now time.Time) ([]Event, error) {
	if s.Status == StatusFinished {
		return nil, ErrGameNotActive
	}
	switch c := cmd.(type) {
	case Join:
		return s.join(c, now)
	case PlayMove:
		return s.move(c, now)
	case OfferDraw:
		return s.offerDraw(c.PlayerID)
	case AcceptDraw:
		return s.acceptDraw(c.PlayerID, now)
	case Resign:
		return s.resign(c.PlayerID, now)
	case SendChat:
		return s.chat(c, now)
	case SendEmoji:
		return s.emoji(c, now)
	case Tick:
		return s.tick(now), nil
	case Disconnect:
		return s.disconnect(c)
	case Reconnect:
		return s.reconnect(c.PlayerID, c.ConnID)
	case GraceExpired:
		return s.graceExpired(c, now), nil
	default:
		return nil, fmt.Errorf("unknown command %T", cmd)
	}
}

func (s *State) join(c Join, now time.Time) ([]Event, error) {
	seat := s.Seat(c.PlayerID)
	if seat < 0 {
		return nil, ErrNotInRoom
	}
	if s.Status == StatusActive {
		return s.reconnect(c.PlayerID, c.ConnID)
	}
	if c.ConnID != "" {
		s.ConnIDs[seat] = c.ConnID
	}
	s.Joined[seat] = true
	s.Connected[seat] = true
	if !s.Joined[0] || !s.Joined[1] {
		return nil, nil
	}
	s.Status = StatusActive
	s.Turn = draughts.Light
	s.Clocks = Clocks{Light: s.Rules.TimeControlMS, Dark: s.Rules.TimeControlMS}
	s.StartedAt = now
	s.LastMoveAt = now
	s.ClockSince = now
	return []Event{Started{
		Players: s.Players,
		Board:   s.Board.Clone(),
		Turn:    s.Turn,
		Stake:   s.Stake,
		Clocks:  s.Clocks,
	}}, nil
}

func (s *State) requireActive(playerID string) (draughts.Color, error) {
	color := s.ColorOf(playerID)
	if color == draughts.NoColor {
		return color, ErrNotInRoom
	}
	if s.Status != StatusActive {
		return color, ErrGameNotActive
	}
	return color, nil
}

func (s *State) move(c PlayMove, now time.Time) ([]Event, error) {
	color, err := s.requireActive(c.PlayerID)
	if err != nil {
		return nil, err
	}
	if color != s.Turn {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMove, ErrNotYourTurn)
	}
	if pc := s.Board.At(c.Move.From); pc.Empty() || pc.Owner != color {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMove, ErrNotYourPiece)
	}
	legal, ok := draughts.FindLegal(s.Board, color, c.Move)
	if !ok {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMove, ErrIllegalMove)
	}
	next, err := s.Board.Apply(legal)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMove, err)
	}

	// A flag that fell before the move arrived wins over the move.
	if remaining := *s.Clocks.of(color) - elapsedMS(s.ClockSince, now); remaining <= 0 {
		*s.Clocks.of(color) = 0
		s.ClockSince = now
		return s.finish(Outcome{Reason: ReasonTimeout, Winner: color.Opponent()}, now), nil
	}
	s.debit(now)

	s.Board = next
	s.History = append(s.History, HistoryEntry{Move: legal, Mover: color, At: now})
	s.Turn = color.Opponent()
	s.LastMoveAt = now
	s.DrawOfferBy = draughts.NoColor

	events := []Event{MoveMade{
		Move:    legal,
		Mover:   color,
		Board:   s.Board.Clone(),
		Turn:    s.Turn,
		History: append([]HistoryEntry(nil), s.History...),
	}}
	if res := draughts.IsGameOver(s.Board, s.Turn); res.Over {
		events = append(events, s.finish(Outcome{Reason: ReasonCheckmate, Winner: res.Winner}, now)...)
	}
	return events, nil
}

func (s *State) offerDraw(playerID string) ([]Event, error) {
	color, err := s.requireActive(playerID)
	if err != nil {
		return nil, err
	}
	if s.DrawOfferBy == color {
		return nil, nil
	}
	s.DrawOfferBy = color
	return []Event{DrawOffered{By: s.PlayerOf(color), To: s.PlayerOf(color.Opponent()).ID}}, nil
}

func (s *State) acceptDraw(playerID string, now time.Time) ([]Event, error) {
	color, err := s.requireActive(playerID)
	if err != nil {
		return nil, err
	}
	if s.DrawOfferBy != color.Opponent() {
		return nil, ErrNoDrawOffer
	}
	s.debit(now)
	return s.finish(Outcome{Reason: ReasonDraw}, now), nil
}

func (s *State) resign(playerID string, now time.Time) ([]Event, error) {
	color, err := s.requireActive(playerID)
	if err != nil {
		return nil, err
	}
	s.debit(now)
	return s.finish(Outcome{Reason: ReasonResignation, Winner: color.Opponent()}, now), nil
}

func (s *State) chat(c SendChat, now time.Time) ([]Event, error) {
	seat := s.Seat(c.PlayerID)
	if seat < 0 {
		return nil, ErrNotInRoom
	}
	text := strings.TrimSpace(c.Text)
	if text == "" || utf8.RuneCountInString(text) > MaxChatRunes {
		return nil, ErrInvalidChat
	}
	msg := ChatMessage{
		SenderID:    c.PlayerID,
		DisplayName: s.Players[seat].DisplayName,
		Text:        text,
		At:          now,
	}
	s.Chat = append(s.Chat, msg)
	return []Event{ChatPosted{Message: msg}}, nil
}

func (s *State) emoji(c SendEmoji, now time.Time) ([]Event, error) {
	if s.Seat(c.PlayerID) < 0 {
		return nil, ErrNotInRoom
	}
	e := strings.TrimSpace(c.Emoji)
	if e == "" || utf8.RuneCountInString(e) > 8 {
		return nil, ErrInvalidChat
	}
	return []Event{EmojiPosted{PlayerID: c.PlayerID, Emoji: e, At: now}}, nil
}

func (s *State) tick(now time.Time) []Event {
	if s.Status != StatusActive {
		return nil
	}
	s.debit(now)
	if *s.Clocks.of(s.Turn) <= 0 {
		*s.Clocks.of(s.Turn) = 0
		return s.finish(Outcome{Reason: ReasonTimeout, Winner: s.Turn.Opponent()}, now)
	}
	return []Event{TimerUpdate{Clocks: s.Clocks}}
}

func (s *State) disconnect(c Disconnect) ([]Event, error) {
	seat := s.Seat(c.PlayerID)
	if seat < 0 {
		return nil, ErrNotInRoom
	}
	// a connection that was already replaced cannot drop the seat
	if c.ConnID != "" && s.ConnIDs[seat] != "" && s.ConnIDs[seat] != c.ConnID {
		return nil, nil
	}
	s.Connected[seat] = false
	s.GraceSeq[seat]++
	return []Event{PlayerDisconnected{PlayerID: c.PlayerID, Seq: s.GraceSeq[seat], Grace: s.Rules.Grace}}, nil
}

func (s *State) reconnect(playerID, connID string) ([]Event, error) {
	seat := s.Seat(playerID)
	if seat < 0 {
		return nil, ErrNotInRoom
	}
	if connID != "" {
		s.ConnIDs[seat] = connID
	}
	wasConnected := s.Connected[seat]
	s.Connected[seat] = true
	s.GraceSeq[seat]++
	if wasConnected {
		return nil, nil
	}
	return []Event{PlayerReconnected{PlayerID: playerID}}, nil
}

func (s *State) graceExpired(c GraceExpired, now time.Time) []Event {
	seat := s.Seat(c.PlayerID)
	if seat < 0 || s.Connected[seat] || s.GraceSeq[seat] != c.Seq {
		return nil
	}
	if s.Status == StatusWaiting {
		return s.finish(Outcome{Reason: ReasonAborted}, now)
	}
	s.debit(now)
	// nobody stayed connected, so nobody wins
	if !s.Connected[1-seat] {
		return s.finish(Outcome{Reason: ReasonAborted}, now)
	}
	loser := s.ColorOf(c.PlayerID)
	return s.finish(Outcome{Reason: ReasonDisconnect, Winner: loser.Opponent()}, now)
}

// debit charges the side to move for the time since the last debit.
func (s *State) debit(now time.Time) {
	if s.Status != StatusActive {
		return
	}
	*s.Clocks.of(s.Turn) -= elapsedMS(s.ClockSince, now)
	if *s.Clocks.of(s.Turn) < 0 {
		*s.Clocks.of(s.Turn) = 0
	}
	s.ClockSince = now
}

func (s *State) finish(o Outcome, now time.Time) []Event {
	s.Status = StatusFinished
	s.EndedAt = now
	s.DrawOfferBy = draughts.NoColor
	out := o
	s.Outcome = &out
	if o.Reason != ReasonAborted {
		s.Settlement = Settle(s.Players, s.Stake, o)
	}
	return []Event{Ended{
		Players:    s.Players,
		Outcome:    out,
		Settlement: s.Settlement,
		Board:      s.Board.Clone(),
		History:    append([]HistoryEntry(nil), s.History...),
	}}
}

func elapsedMS(since, now time.Time) int64 {
	if since.IsZero() || now.Before(since) {
		return 0
	}
	return now.Sub(since).Milliseconds()
}
