package damedto

// SessionRequest exchanges Telegram initData for a session token.
type SessionRequest struct {
	InitData string `json:"initData"`
}

type SessionResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
	Player    Player `json:"player"`
}

type AIMoveRequest struct {
	Board      Board  `json:"board"`
	Player     string `json:"player"`
	Difficulty int    `json:"difficulty"`
}

type AIMoveResponse struct {
	Move Move `json:"move"`
}

// GameSnapshot is the read model of a live room.
type GameSnapshot struct {
	GameID      string         `json:"gameId"`
	Status      string         `json:"status"`
	Players     []Player       `json:"players"`
	Board       Board          `json:"board"`
	CurrentTurn string         `json:"currentTurn"`
	Timer       Timer          `json:"timer"`
	BetAmount   *float64       `json:"betAmount,omitempty"`
	BetCurrency string         `json:"betCurrency,omitempty"`
	MoveHistory []HistoryEntry `json:"moveHistory"`
}

type GameSummary struct {
	GameID    string   `json:"gameId"`
	White     Player   `json:"white"`
	Black     Player   `json:"black"`
	Result    string   `json:"result"`
	Winner    string   `json:"winner,omitempty"`
	Moves     []string `json:"moves"`
	BetAmount float64  `json:"betAmount,omitempty"`
	Payout    float64  `json:"payout,omitempty"`
	StartedAt int64    `json:"startedAt"`
	EndedAt   int64    `json:"endedAt"`
}
