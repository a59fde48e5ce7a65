package match

import (
	"time"

	"github.com/park285/dame-server/internal/draughts"
)

// Command is an inbound request consumed by State.Apply.
type Command interface{ isCommand() }

// Join seats a player. ConnID identifies the connection so a late
// Disconnect from a replaced connection can be ignored.
type Join struct {
	PlayerID string
	ConnID   string
}

type PlayMove struct {
	PlayerID string
	Move     draughts.Move
}

type OfferDraw struct{ PlayerID string }

type AcceptDraw struct{ PlayerID string }

type Resign struct{ PlayerID string }

type SendChat struct {
	PlayerID string
	Text     string
}

type SendEmoji struct {
	PlayerID string
	Emoji    string
}

type Tick struct{}

type Disconnect struct {
	PlayerID string
	ConnID   string
}

type Reconnect struct {
	PlayerID string
	ConnID   string
}

// GraceExpired fires when a disconnect window closes. Seq must match the
// player's current grace sequence or the command is stale.
type GraceExpired struct {
	PlayerID string
	Seq      uint64
}

func (Join) isCommand()         {}
func (PlayMove) isCommand()     {}
func (OfferDraw) isCommand()    {}
func (AcceptDraw) isCommand()   {}
func (Resign) isCommand()       {}
func (SendChat) isCommand()     {}
func (SendEmoji) isCommand()    {}
func (Tick) isCommand()         {}
func (Disconnect) isCommand()   {}
func (Reconnect) isCommand()    {}
func (GraceExpired) isCommand() {}

// Event is an outbound notification produced by State.Apply.
type Event interface{ isEvent() }

type Started struct {
	Players [2]Player
	Board   *draughts.Board
	Turn    draughts.Color
	Stake   *Stake
	Clocks  Clocks
}

type MoveMade struct {
	Move    draughts.Move
	Mover   draughts.Color
	Board   *draughts.Board
	Turn    draughts.Color
	History []HistoryEntry
}

// DrawOffered goes to the opponent only.
type DrawOffered struct {
	By Player
	To string
}

type ChatPosted struct{ Message ChatMessage }

type EmojiPosted struct {
	PlayerID string
	Emoji    string
	At       time.Time
}

type TimerUpdate struct{ Clocks Clocks }

type PlayerDisconnected struct {
	PlayerID string
	Seq      uint64
	Grace    time.Duration
}

type PlayerReconnected struct{ PlayerID string }

type Ended struct {
	Players    [2]Player
	Outcome    Outcome
	Settlement *Settlement
	Board      *draughts.Board
	History    []HistoryEntry
}

func (Started) isEvent()            {}
func (MoveMade) isEvent()           {}
func (DrawOffered) isEvent()        {}
func (ChatPosted) isEvent()         {}
func (EmojiPosted) isEvent()        {}
func (TimerUpdate) isEvent()        {}
func (PlayerDisconnected) isEvent() {}
func (PlayerReconnected) isEvent()  {}
func (Ended) isEvent()              {}
