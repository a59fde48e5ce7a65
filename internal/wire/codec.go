// Package wire is the one seam between internal types and the client
// protocol. Light is sent as "white" and dark as "black".
package wire

import (
	"errors"
	"fmt"

	"github.com/park285/dame-server/internal/draughts"
	"github.com/park285/dame-server/internal/match"
	"github.com/park285/dame-server/pkg/damedto"
)

var ErrBadBoard = errors.New("malformed board")

func ColorName(c draughts.Color) string {
	switch c {
	case draughts.Light:
		return "white"
	case draughts.Dark:
		return "black"
	default:
		return ""
	}
}

// ParseColor accepts both namings.
func ParseColor(s string) (draughts.Color, error) {
	c, err := draughts.ParseColor(s)
	if err != nil {
		return draughts.NoColor, err
	}
	if c == draughts.NoColor {
		return c, fmt.Errorf("color required")
	}
	return c, nil
}

func PositionDTO(p draughts.Position) damedto.Position {
	return damedto.Position{Row: p.Row, Col: p.Col}
}

func MoveDTO(m draughts.Move) damedto.Move {
	out := damedto.Move{From: PositionDTO(m.From), To: PositionDTO(m.To)}
	for _, c := range m.Captures {
		out.Captures = append(out.Captures, PositionDTO(c))
	}
	return out
}

func MoveFromDTO(m damedto.Move) draughts.Move {
	out := draughts.Move{
		From: draughts.Position{Row: m.From.Row, Col: m.From.Col},
		To:   draughts.Position{Row: m.To.Row, Col: m.To.Col},
	}
	for _, c := range m.Captures {
		out.Captures = append(out.Captures, draughts.Position{Row: c.Row, Col: c.Col})
	}
	return out
}

func BoardDTO(b *draughts.Board) damedto.Board {
	if b == nil {
		return nil
	}
	n := b.Size()
	out := make(damedto.Board, n)
	for r := 0; r < n; r++ {
		out[r] = make([]*damedto.Piece, n)
		for c := 0; c < n; c++ {
			pc := b.At(draughts.Position{Row: r, Col: c})
			if pc.Empty() {
				continue
			}
			out[r][c] = &damedto.Piece{Type: pc.Type.String(), Player: ColorName(pc.Owner)}
		}
	}
	return out
}

// BoardFromDTO rebuilds a board. Pieces on light squares are rejected.
func BoardFromDTO(in damedto.Board) (*draughts.Board, error) {
	b, err := draughts.NewBoard(len(in))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadBoard, err)
	}
	for r, row := range in {
		if len(row) != len(in) {
			return nil, fmt.Errorf("%w: row %d has %d cells", ErrBadBoard, r, len(row))
		}
		for c, cell := range row {
			if cell == nil {
				continue
			}
			owner, err := ParseColor(cell.Player)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrBadBoard, err)
			}
			typ := draughts.Pawn
			switch cell.Type {
			case "pawn", "man", "":
			case "king":
				typ = draughts.King
			default:
				return nil, fmt.Errorf("%w: piece type %q", ErrBadBoard, cell.Type)
			}
			if err := b.Set(draughts.Position{Row: r, Col: c}, draughts.Piece{Type: typ, Owner: owner}); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrBadBoard, err)
			}
		}
	}
	return b, nil
}

func PlayerDTO(p match.Player, c draughts.Color) damedto.Player {
	return damedto.Player{ID: p.ID, Username: p.DisplayName, PhotoURL: p.AvatarURL, Rating: p.Rating, Color: ColorName(c)}
}

func PlayersDTO(ps [2]match.Player) []damedto.Player {
	return []damedto.Player{PlayerDTO(ps[0], draughts.Light), PlayerDTO(ps[1], draughts.Dark)}
}

func HistoryDTO(h []match.HistoryEntry) []damedto.HistoryEntry {
	out := make([]damedto.HistoryEntry, 0, len(h))
	for _, e := range h {
		out = append(out, damedto.HistoryEntry{Move: MoveDTO(e.Move), Player: ColorName(e.Mover), Timestamp: e.At.UnixMilli()})
	}
	return out
}

func TimerDTO(c match.Clocks) damedto.Timer {
	return damedto.Timer{White: c.Light, Black: c.Dark}
}

func stakeDTO(s *match.Stake) (*float64, string) {
	if s == nil {
		return nil, ""
	}
	amt := s.Amount
	return &amt, s.Currency
}

// Snapshot renders a live state for the read endpoint.
func Snapshot(st *match.State) damedto.GameSnapshot {
	amt, cur := stakeDTO(st.Stake)
	return damedto.GameSnapshot{
		GameID:      st.ID,
		Status:      string(st.Status),
		Players:     PlayersDTO(st.Players),
		Board:       BoardDTO(st.Board),
		CurrentTurn: ColorName(st.Turn),
		Timer:       TimerDTO(st.Clocks),
		BetAmount:   amt,
		BetCurrency: cur,
		MoveHistory: HistoryDTO(st.History),
	}
}
