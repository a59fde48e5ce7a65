package match

import (
	"errors"
	"time"

	"github.com/park285/dame-server/internal/draughts"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrInvalidMove    = errors.New("invalid move")
	ErrNotYourTurn    = errors.New("not your turn")
	ErrNotYourPiece   = errors.New("not your piece")
	ErrIllegalMove    = errors.New("illegal move")
	ErrNotInRoom      = errors.New("player not in room")
	ErrGameNotActive  = errors.New("game not active")
	ErrNoDrawOffer    = errors.New("no pending draw offer")
	ErrInvalidChat    = errors.New("chat message empty or too long")
	ErrInvalidPlayers = errors.New("room needs two distinct players")
	ErrManagerClosed  = errors.New("match manager closed")
)

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

type Reason string

const (
	ReasonCheckmate   Reason = "checkmate"
	ReasonTimeout     Reason = "timeout"
	ReasonResignation Reason = "resignation"
	ReasonDraw        Reason = "draw"
	ReasonDisconnect  Reason = "disconnect"
	// ReasonAborted ends a room that never started. No settlement.
	ReasonAborted Reason = "aborted"
)

const (
	DefaultTimeControlMS = 600_000
	DefaultGrace         = 60 * time.Second
	DefaultTick          = time.Second
	PayoutMultiplier     = 1.9
	EloK                 = 32
	DefaultRating        = 1200
	MaxChatRunes         = 500
)

type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"username"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	Rating      int    `json:"rating"`
}

type Stake struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

type HistoryEntry struct {
	Move  draughts.Move  `json:"move"`
	Mover draughts.Color `json:"mover"`
	At    time.Time      `json:"at"`
}

type ChatMessage struct {
	SenderID    string    `json:"senderId"`
	DisplayName string    `json:"displayName"`
	Text        string    `json:"text"`
	At          time.Time `json:"at"`
}

// Clocks hold remaining milliseconds per side.
type Clocks struct {
	Light int64 `json:"light"`
	Dark  int64 `json:"dark"`
}

func (c *Clocks) of(color draughts.Color) *int64 {
	if color == draughts.Dark {
		return &c.Dark
	}
	return &c.Light
}

type Outcome struct {
	Reason Reason         `json:"reason"`
	Winner draughts.Color `json:"winner"`
}

type Payout struct {
	PlayerID string  `json:"playerId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency,omitempty"`
}

type RatingChange struct {
	PlayerID string `json:"playerId"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
}

type Settlement struct {
	Payout  *Payout         `json:"payout,omitempty"`
	Ratings [2]RatingChange `json:"ratings"`
}
