package domain

import "time"

// GameRecord is one archived finished match.
type GameRecord struct {
	ID          string
	LightID     string
	LightName   string
	DarkID      string
	DarkName    string
	Result      string
	Winner      string
	WinnerID    string
	Moves       []string
	StakeAmount float64
	Currency    string
	Payout      float64
	StartedAt   time.Time
	EndedAt     time.Time
	Duration    time.Duration
}

// Involves reports whether playerID sat at either side.
func (g *GameRecord) Involves(playerID string) bool {
	return g.LightID == playerID || g.DarkID == playerID
}

type PlayerProfile struct {
	PlayerID    string
	DisplayName string
	Rating      int
	GamesPlayed int
	Wins        int
	Losses      int
	Draws       int
	UpdatedAt   time.Time
}
