package ai

import "github.com/park285/dame-server/internal/draughts"

const (
	pawnValue         = 100
	kingValue         = 300
	centerBonus       = 10
	edgePenalty       = -5
	backRowBonus      = 15
	promotionBonus    = 50
	kingMobilityScore = 5
	captureScore      = 50
	centerControl     = 20
)

// Evaluate returns a static score of b from light's point of view.
func Evaluate(b *draughts.Board) int {
	n := b.Size()
	center := float64(n-1) / 2
	score := 0

	for _, color := range [2]draughts.Color{draughts.Light, draughts.Dark} {
		sign := 1
		if color == draughts.Dark {
			sign = -1
		}
		promo := b.PromotionRow(color)
		back := b.BackRow(color)
		for _, pos := range b.Pieces(color) {
			pc := b.At(pos)
			v := pawnValue
			if pc.Type == draughts.King {
				v = kingValue + kingMobilityScore*len(draughts.MovesFor(b, pos))
			} else {
				if absf(float64(pos.Row)-center)+absf(float64(pos.Col)-center) < float64(n)/2 {
					v += centerBonus
				}
				if pos.Col == 0 || pos.Col == n-1 {
					v += edgePenalty
				}
				if pos.Row == back {
					v += backRowBonus
				}
				if d := abs(promo - pos.Row); d == 1 {
					v += promotionBonus
				}
			}
			score += sign * v
		}
	}

	score += captureScore * (captureCount(b, draughts.Light) - captureCount(b, draughts.Dark))

	c := n/2 - 1
	for _, p := range [4]draughts.Position{{Row: c, Col: c}, {Row: c, Col: c + 1}, {Row: c + 1, Col: c}, {Row: c + 1, Col: c + 1}} {
		switch b.At(p).Owner {
		case draughts.Light:
			score += centerControl
		case draughts.Dark:
			score -= centerControl
		}
	}
	return score
}

func captureCount(b *draughts.Board, color draughts.Color) int {
	if !draughts.HasMandatoryCapture(b, color) {
		return 0
	}
	return len(draughts.LegalMoves(b, color))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
