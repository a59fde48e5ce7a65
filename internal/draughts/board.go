package draughts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	DefaultSize = 10
	SmallSize   = 8
)

var (
	ErrUnsupportedSize = errors.New("board size must be 8 or 10")
	ErrOffBoard        = errors.New("position off board")
	ErrLightSquare     = errors.New("pieces may only occupy dark squares")
	ErrEmptySquare     = errors.New("no piece on square")
	ErrOccupied        = errors.New("destination occupied")
	ErrBadKey          = errors.New("malformed board key")
)

// Board is a square grid snapshot. Boards are treated as immutable by the
// rule engine; mutators return copies.
type Board struct {
	size  int
	cells []Piece
}

// NewBoard returns an empty board of side n.
func NewBoard(n int) (*Board, error) {
	if n != DefaultSize && n != SmallSize {
		return nil, ErrUnsupportedSize
	}
	return &Board{size: n, cells: make([]Piece, n*n)}, nil
}

// NewInitialBoard returns the starting position: (n-2)/2 rows of pawns per side,
// light on the low rows and dark on the high rows.
func NewInitialBoard(n int) (*Board, error) {
	b, err := NewBoard(n)
	if err != nil {
		return nil, err
	}
	rows := (n - 2) / 2
	for r := 0; r < n; r++ {
		for c := 0; c < n; c++ {
			if !IsDarkSquare(Position{r, c}) {
				continue
			}
			switch {
			case r < rows:
				b.cells[r*n+c] = Piece{Type: Pawn, Owner: Light}
			case r >= n-rows:
				b.cells[r*n+c] = Piece{Type: Pawn, Owner: Dark}
			}
		}
	}
	return b, nil
}

// IsDarkSquare reports whether pieces may stand on p.
func IsDarkSquare(p Position) bool { return (p.Row+p.Col)%2 == 1 }

func (b *Board) Size() int { return b.size }

func (b *Board) InBounds(p Position) bool {
	return p.Row >= 0 && p.Row < b.size && p.Col >= 0 && p.Col < b.size
}

// At returns the piece on p, or the zero Piece for empty or off-board squares.
func (b *Board) At(p Position) Piece {
	if !b.InBounds(p) {
		return Piece{}
	}
	return b.cells[p.Row*b.size+p.Col]
}

// Set places pc on p. Passing the zero Piece clears the square.
func (b *Board) Set(p Position, pc Piece) error {
	if !b.InBounds(p) {
		return fmt.Errorf("%w: %s", ErrOffBoard, p)
	}
	if !pc.Empty() && !IsDarkSquare(p) {
		return fmt.Errorf("%w: %s", ErrLightSquare, p)
	}
	b.cells[p.Row*b.size+p.Col] = pc
	return nil
}

func (b *Board) clear(p Position) { b.cells[p.Row*b.size+p.Col] = Piece{} }

func (b *Board) put(p Position, pc Piece) { b.cells[p.Row*b.size+p.Col] = pc }

func (b *Board) Clone() *Board {
	cells := make([]Piece, len(b.cells))
	copy(cells, b.cells)
	return &Board{size: b.size, cells: cells}
}

// Pieces returns the squares occupied by color in row-major order.
func (b *Board) Pieces(color Color) []Position {
	var out []Position
	for i, pc := range b.cells {
		if pc.Owner == color {
			out = append(out, Position{Row: i / b.size, Col: i % b.size})
		}
	}
	return out
}

func (b *Board) Count(color Color) int {
	n := 0
	for _, pc := range b.cells {
		if pc.Owner == color {
			n++
		}
	}
	return n
}

// PromotionRow is the row on which a pawn of color becomes a king.
func (b *Board) PromotionRow(color Color) int {
	if color == Dark {
		return 0
	}
	return b.size - 1
}

// BackRow is the row a color starts from.
func (b *Board) BackRow(color Color) int {
	if color == Dark {
		return b.size - 1
	}
	return 0
}

// Apply returns a new board with m played: the piece relocates, every captured
// square is cleared, and a pawn whose final square is its promotion row becomes
// a king. Legality is not checked beyond basic occupancy.
func (b *Board) Apply(m Move) (*Board, error) {
	if !b.InBounds(m.From) || !b.InBounds(m.To) {
		return nil, ErrOffBoard
	}
	pc := b.At(m.From)
	if pc.Empty() {
		return nil, fmt.Errorf("%w: %s", ErrEmptySquare, m.From)
	}
	if m.From != m.To && !b.At(m.To).Empty() {
		return nil, fmt.Errorf("%w: %s", ErrOccupied, m.To)
	}
	next := b.Clone()
	next.clear(m.From)
	for _, c := range m.Captures {
		if !next.InBounds(c) {
			return nil, fmt.Errorf("%w: capture %s", ErrOffBoard, c)
		}
		next.clear(c)
	}
	if pc.Type == Pawn && m.To.Row == b.PromotionRow(pc.Owner) {
		pc.Type = King
	}
	next.put(m.To, pc)
	return next, nil
}

// Key is a canonical encoding of the position, one token per cell and rows
// separated by '|'.
func (b *Board) Key() string {
	var sb strings.Builder
	sb.Grow(len(b.cells)*2 + b.size)
	for i, pc := range b.cells {
		if i > 0 && i%b.size == 0 {
			sb.WriteByte('|')
		}
		switch {
		case pc.Empty():
			sb.WriteByte('0')
		default:
			if pc.Owner == Light {
				sb.WriteByte('l')
			} else {
				sb.WriteByte('d')
			}
			if pc.Type == King {
				sb.WriteByte('k')
			} else {
				sb.WriteByte('p')
			}
		}
	}
	return sb.String()
}

// Equal reports whether both boards hold the same pieces on the same squares.
func (b *Board) Equal(o *Board) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.size != o.size {
		return false
	}
	for i := range b.cells {
		if b.cells[i] != o.cells[i] {
			return false
		}
	}
	return true
}

// ParseKey rebuilds a board from Key output.
func ParseKey(key string) (*Board, error) {
	rows := strings.Split(key, "|")
	b, err := NewBoard(len(rows))
	if err != nil {
		return nil, fmt.Errorf("%w: %d rows", ErrBadKey, len(rows))
	}
	for r, row := range rows {
		c := 0
		for i := 0; i < len(row); {
			if c >= b.size {
				return nil, fmt.Errorf("%w: row %d too long", ErrBadKey, r)
			}
			if row[i] == '0' {
				i++
				c++
				continue
			}
			if i+1 >= len(row) {
				return nil, fmt.Errorf("%w: truncated token in row %d", ErrBadKey, r)
			}
			var pc Piece
			switch row[i] {
			case 'l':
				pc.Owner = Light
			case 'd':
				pc.Owner = Dark
			default:
				return nil, fmt.Errorf("%w: owner %q", ErrBadKey, row[i])
			}
			switch row[i+1] {
			case 'p':
				pc.Type = Pawn
			case 'k':
				pc.Type = King
			default:
				return nil, fmt.Errorf("%w: type %q", ErrBadKey, row[i+1])
			}
			if err := b.Set(Position{r, c}, pc); err != nil {
				return nil, err
			}
			i += 2
			c++
		}
		if c != b.size {
			return nil, fmt.Errorf("%w: row %d has %d cells", ErrBadKey, r, c)
		}
	}
	return b, nil
}

func (b *Board) MarshalJSON() ([]byte, error) { return json.Marshal(b.Key()) }

func (b *Board) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err != nil {
		return err
	}
	parsed, err := ParseKey(key)
	if err != nil {
		return err
	}
	*b = *parsed
	return nil
}
