package match

import (
	"math"

	"github.com/park285/dame-server/internal/draughts"
)

// Settle computes the payout and rating changes for a finished match.
// players[0] is light.
func Settle(players [2]Player, stake *Stake, o Outcome) *Settlement {
	st := &Settlement{}
	if stake != nil && stake.Amount > 0 && o.Winner != draughts.NoColor {
		winner := players[0]
		if o.Winner == draughts.Dark {
			winner = players[1]
		}
		st.Payout = &Payout{
			PlayerID: winner.ID,
			Amount:   PayoutAmount(stake.Amount),
			Currency: stake.Currency,
		}
	}

	var scoreLight float64
	switch o.Winner {
	case draughts.Light:
		scoreLight = 1
	case draughts.Dark:
		scoreLight = 0
	default:
		scoreLight = 0.5
	}
	a, b := Elo(players[0].Rating, players[1].Rating, scoreLight)
	st.Ratings[0] = RatingChange{PlayerID: players[0].ID, Before: players[0].Rating, After: a}
	st.Ratings[1] = RatingChange{PlayerID: players[1].ID, Before: players[1].Rating, After: b}
	return st
}

// PayoutAmount returns stake × 1.9 rounded to 1e-9.
func PayoutAmount(stake float64) float64 {
	return math.Round(stake*PayoutMultiplier*1e9) / 1e9
}

// Elo returns the new ratings of A and B given A's score (1, 0.5 or 0).
func Elo(ratingA, ratingB int, scoreA float64) (int, int) {
	expectedA := 1 / (1 + math.Pow(10, float64(ratingB-ratingA)/400))
	expectedB := 1 - expectedA
	scoreB := 1 - scoreA
	newA := int(math.Round(float64(ratingA) + EloK*(scoreA-expectedA)))
	newB := int(math.Round(float64(ratingB) + EloK*(scoreB-expectedB)))
	return newA, newB
}
