package draughts

import (
	"fmt"
	"strings"
)

// Color identifies a side. Light moves first.
type Color uint8

const (
	NoColor Color = iota
	Light
	Dark
)

func (c Color) Opponent() Color {
	switch c {
	case Light:
		return Dark
	case Dark:
		return Light
	default:
		return NoColor
	}
}

func (c Color) String() string {
	switch c {
	case Light:
		return "light"
	case Dark:
		return "dark"
	default:
		return "none"
	}
}

func (c Color) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Color) UnmarshalText(b []byte) error {
	v, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// ParseColor accepts light/dark and the white/black aliases.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "light", "white":
		return Light, nil
	case "dark", "black":
		return Dark, nil
	case "", "none":
		return NoColor, nil
	default:
		return NoColor, fmt.Errorf("unknown color %q", s)
	}
}

// Forward is the row delta of a pawn step for the color.
func (c Color) Forward() int {
	if c == Dark {
		return -1
	}
	return 1
}

type PieceType uint8

const (
	Pawn PieceType = iota + 1
	King
)

func (t PieceType) String() string {
	switch t {
	case Pawn:
		return "pawn"
	case King:
		return "king"
	default:
		return "none"
	}
}

// Piece is a cell occupant. The zero value is an empty cell.
type Piece struct {
	Type  PieceType
	Owner Color
}

func (p Piece) Empty() bool { return p.Owner == NoColor }

type Position struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (p Position) String() string { return fmt.Sprintf("(%d,%d)", p.Row, p.Col) }

func (p Position) add(d direction, n int) Position {
	return Position{Row: p.Row + d.dr*n, Col: p.Col + d.dc*n}
}

// Move is one atomic turn. A capture chain is a single Move from the chain's
// first square to its final landing square, carrying every captured square in order.
type Move struct {
	From     Position   `json:"from"`
	To       Position   `json:"to"`
	Captures []Position `json:"captures,omitempty"`
}

func (m Move) IsCapture() bool { return len(m.Captures) > 0 }

// SameCaptures reports whether both moves capture the same set of squares.
func (m Move) SameCaptures(o Move) bool {
	if len(m.Captures) != len(o.Captures) {
		return false
	}
	seen := make(map[Position]int, len(m.Captures))
	for _, p := range m.Captures {
		seen[p]++
	}
	for _, p := range o.Captures {
		if seen[p] == 0 {
			return false
		}
		seen[p]--
	}
	return true
}

func (m Move) String() string {
	if len(m.Captures) == 0 {
		return fmt.Sprintf("%s-%s", m.From, m.To)
	}
	return fmt.Sprintf("%sx%s%v", m.From, m.To, m.Captures)
}

// Result is the outcome of a game-over check.
type Result struct {
	Over   bool
	Winner Color
}

type direction struct{ dr, dc int }

var diagonals = [4]direction{{1, -1}, {1, 1}, {-1, -1}, {-1, 1}}
