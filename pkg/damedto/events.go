// Package damedto holds the JSON shapes exchanged with clients over the
// socket and the REST endpoints. Colors use the client naming white/black.
package damedto

import "encoding/json"

// Inbound event names.
const (
	EventInvite      = "game:invite"
	EventAccept      = "game:accept"
	EventDecline     = "game:decline"
	EventMove        = "game:move"
	EventOfferDraw   = "game:offer-draw"
	EventAcceptDraw  = "game:accept-draw"
	EventResign      = "game:resign"
	EventChatMessage = "chat:message"
	EventChatEmoji   = "chat:emoji"
)

// Outbound event names.
const (
	EventInvitation         = "game:invitation"
	EventInvitationSent     = "game:invitation-sent"
	EventInvitationDeclined = "game:invitation-declined"
	EventStarted            = "game:started"
	// EventGameState resyncs a client that reconnects to a live room.
	EventGameState          = "game:state"
	EventMoveMade           = "game:move-made"
	EventDrawOffered        = "game:draw-offered"
	EventEnded              = "game:ended"
	EventTimerUpdate        = "game:timer-update"
	EventChatNew            = "chat:new-message"
	EventPlayerDisconnected = "player:disconnected"
	EventPlayerReconnected  = "player:reconnected"
	EventFriendsOnline      = "friends:online"
	EventFriendStatus       = "friend:status-changed"
	EventSoundPlay          = "sound:play"
	EventError              = "error"
)

// Envelope frames every socket message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

type Move struct {
	From     Position   `json:"from"`
	To       Position   `json:"to"`
	Captures []Position `json:"captures,omitempty"`
}

type Piece struct {
	Type   string `json:"type"`
	Player string `json:"player"`
}

// Board is row-major; empty squares are null.
type Board [][]*Piece

type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	PhotoURL string `json:"photoUrl,omitempty"`
	Rating   int    `json:"rating"`
	Color    string `json:"color,omitempty"`
}

type HistoryEntry struct {
	Move      Move   `json:"move"`
	Player    string `json:"player"`
	Timestamp int64  `json:"timestamp"`
}

type Timer struct {
	White int64 `json:"white"`
	Black int64 `json:"black"`
}

type InvitePayload struct {
	FriendID    string   `json:"friendId"`
	BetAmount   *float64 `json:"betAmount,omitempty"`
	BetCurrency string   `json:"betCurrency,omitempty"`
}

type InvitationReply struct {
	InvitationID string `json:"invitationId"`
	FromUserID   string `json:"fromUserId,omitempty"`
}

type MovePayload struct {
	GameID string `json:"gameId"`
	Move   Move   `json:"move"`
}

type GamePayload struct {
	GameID string `json:"gameId"`
}

type ChatPayload struct {
	GameID  string `json:"gameId"`
	Message string `json:"message"`
}

type EmojiPayload struct {
	GameID string `json:"gameId"`
	Emoji  string `json:"emoji"`
}

type Invitation struct {
	ID          string   `json:"id"`
	From        Player   `json:"from"`
	To          string   `json:"to"`
	BetAmount   *float64 `json:"betAmount,omitempty"`
	BetCurrency string   `json:"betCurrency,omitempty"`
	Timestamp   int64    `json:"timestamp"`
}

type InvitationSent struct {
	InvitationID string `json:"invitationId"`
	To           string `json:"to"`
}

type InvitationDeclined struct {
	By string `json:"by"`
}

type Started struct {
	GameID      string   `json:"gameId"`
	Players     []Player `json:"players"`
	Board       Board    `json:"board"`
	CurrentTurn string   `json:"currentTurn"`
	BetAmount   *float64 `json:"betAmount,omitempty"`
	BetCurrency string   `json:"betCurrency,omitempty"`
	Timer       Timer    `json:"timer"`
}

type MoveMade struct {
	GameID      string         `json:"gameId"`
	Move        Move           `json:"move"`
	Board       Board          `json:"board"`
	CurrentTurn string         `json:"currentTurn"`
	MoveHistory []HistoryEntry `json:"moveHistory"`
}

type DrawOffered struct {
	GameID string `json:"gameId"`
	By     string `json:"by"`
}

type RatingChange struct {
	PlayerID string `json:"playerId"`
	Before   int    `json:"before"`
	After    int    `json:"after"`
}

type Ended struct {
	GameID      string         `json:"gameId"`
	Result      string         `json:"result"`
	Winner      string         `json:"winner,omitempty"`
	WinnerID    string         `json:"winnerId,omitempty"`
	Winnings    *float64       `json:"winnings,omitempty"`
	Currency    string         `json:"currency,omitempty"`
	Ratings     []RatingChange `json:"ratings,omitempty"`
	FinalBoard  Board          `json:"finalBoard"`
	MoveHistory []HistoryEntry `json:"moveHistory"`
}

type ChatMessage struct {
	GameID    string `json:"gameId"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type Emoji struct {
	GameID    string `json:"gameId"`
	UserID    string `json:"userId"`
	Emoji     string `json:"emoji"`
	Timestamp int64  `json:"timestamp"`
}

type TimerUpdate struct {
	GameID string `json:"gameId"`
	White  int64  `json:"white"`
	Black  int64  `json:"black"`
}

type PlayerDisconnected struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
	// ReconnectTime is the grace window in seconds.
	ReconnectTime int64 `json:"reconnectTime"`
}

type PlayerReconnected struct {
	GameID   string `json:"gameId"`
	PlayerID string `json:"playerId"`
}

type FriendStatus struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	IsOnline bool   `json:"isOnline"`
}

type Sound struct {
	Sound string `json:"sound"`
}
