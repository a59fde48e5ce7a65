package draughts

import (
	"sort"
	"strconv"
	"strings"
)

// MovesFor returns the moves available to the piece on pos. When the piece can
// capture, only its maximal capture chains are returned; otherwise its simple
// moves. Board-wide mandatory capture is applied by LegalMoves.
func MovesFor(b *Board, pos Position) []Move {
	pc := b.At(pos)
	if pc.Empty() {
		return nil
	}
	if caps := captureChains(b, pos, pc); len(caps) > 0 {
		return caps
	}
	return simpleMoves(b, pos, pc)
}

// LegalMoves returns every legal move for color. If any piece of color can
// capture, the result holds captures only.
func LegalMoves(b *Board, color Color) []Move {
	var captures, simple []Move
	for _, pos := range b.Pieces(color) {
		pc := b.At(pos)
		if caps := captureChains(b, pos, pc); len(caps) > 0 {
			captures = append(captures, caps...)
			continue
		}
		if len(captures) == 0 {
			simple = append(simple, simpleMoves(b, pos, pc)...)
		}
	}
	if len(captures) > 0 {
		return captures
	}
	return simple
}

// HasMandatoryCapture reports whether color has at least one capture anywhere.
func HasMandatoryCapture(b *Board, color Color) bool {
	for _, pos := range b.Pieces(color) {
		if hasAnyCapture(b, pos, b.At(pos)) {
			return true
		}
	}
	return false
}

// HasLegalMove is a cheaper form of len(LegalMoves(b, color)) > 0.
func HasLegalMove(b *Board, color Color) bool {
	for _, pos := range b.Pieces(color) {
		pc := b.At(pos)
		if hasAnyCapture(b, pos, pc) || len(simpleMoves(b, pos, pc)) > 0 {
			return true
		}
	}
	return false
}

// IsGameOver checks whether the side to move has lost: no pieces or no legal
// moves. Rule play never produces a draw.
func IsGameOver(b *Board, toMove Color) Result {
	if b.Count(Light) == 0 {
		return Result{Over: true, Winner: Dark}
	}
	if b.Count(Dark) == 0 {
		return Result{Over: true, Winner: Light}
	}
	if !HasLegalMove(b, toMove) {
		return Result{Over: true, Winner: toMove.Opponent()}
	}
	return Result{}
}

// FindLegal matches a requested move against the legal set for color. Captures
// in the request are optional; when given they must equal a legal chain's
// captured set. A request that matches several chains without naming captures
// is ambiguous and rejected.
func FindLegal(b *Board, color Color, req Move) (Move, bool) {
	var found []Move
	for _, m := range LegalMoves(b, color) {
		if m.From != req.From || m.To != req.To {
			continue
		}
		if len(req.Captures) > 0 && !m.SameCaptures(req) {
			continue
		}
		found = append(found, m)
	}
	if len(found) != 1 {
		return Move{}, false
	}
	return found[0], true
}

func simpleMoves(b *Board, pos Position, pc Piece) []Move {
	var out []Move
	if pc.Type == Pawn {
		for _, dc := range [2]int{-1, 1} {
			to := Position{Row: pos.Row + pc.Owner.Forward(), Col: pos.Col + dc}
			if b.InBounds(to) && b.At(to).Empty() {
				out = append(out, Move{From: pos, To: to})
			}
		}
		return out
	}
	for _, d := range diagonals {
		for n := 1; ; n++ {
			to := pos.add(d, n)
			if !b.InBounds(to) || !b.At(to).Empty() {
				break
			}
			out = append(out, Move{From: pos, To: to})
		}
	}
	return out
}

type jump struct {
	victim  Position
	landing Position
}

// jumps lists single captures available to pc standing on pos, skipping
// victims already taken in the current chain.
func jumps(b *Board, pos Position, pc Piece, taken []Position) []jump {
	var out []jump
	for _, d := range diagonals {
		if pc.Type == Pawn {
			victim := pos.add(d, 1)
			landing := pos.add(d, 2)
			if !b.InBounds(landing) {
				continue
			}
			v := b.At(victim)
			if v.Empty() || v.Owner == pc.Owner || contains(taken, victim) {
				continue
			}
			if b.At(landing).Empty() {
				out = append(out, jump{victim: victim, landing: landing})
			}
			continue
		}

		n := 1
		for b.InBounds(pos.add(d, n)) && b.At(pos.add(d, n)).Empty() {
			n++
		}
		victim := pos.add(d, n)
		if !b.InBounds(victim) {
			continue
		}
		v := b.At(victim)
		if v.Owner == pc.Owner || contains(taken, victim) {
			continue
		}
		for k := n + 1; ; k++ {
			landing := pos.add(d, k)
			if !b.InBounds(landing) || !b.At(landing).Empty() {
				break
			}
			out = append(out, jump{victim: victim, landing: landing})
		}
	}
	return out
}

func hasAnyCapture(b *Board, pos Position, pc Piece) bool {
	if pc.Empty() {
		return false
	}
	return len(jumps(b, pos, pc, nil)) > 0
}

// captureChains returns the maximal capture chains starting at start. Each hop
// recurses on a copy with the mover relocated and the victim removed; the pawn
// keeps its type for the whole chain.
func captureChains(b *Board, start Position, pc Piece) []Move {
	if pc.Empty() {
		return nil
	}
	var out []Move
	seen := make(map[string]struct{})
	var walk func(cur *Board, at Position, taken []Position)
	walk = func(cur *Board, at Position, taken []Position) {
		for _, j := range jumps(cur, at, pc, taken) {
			next := cur.Clone()
			next.clear(at)
			next.clear(j.victim)
			next.put(j.landing, pc)
			chain := append(append([]Position(nil), taken...), j.victim)
			if len(jumps(next, j.landing, pc, chain)) == 0 {
				m := Move{From: start, To: j.landing, Captures: chain}
				key := chainKey(m)
				if _, dup := seen[key]; !dup {
					seen[key] = struct{}{}
					out = append(out, m)
				}
				continue
			}
			walk(next, j.landing, chain)
		}
	}
	walk(b, start, nil)
	return out
}

func chainKey(m Move) string {
	caps := make([]string, len(m.Captures))
	for i, c := range m.Captures {
		caps[i] = strconv.Itoa(c.Row) + ":" + strconv.Itoa(c.Col)
	}
	sort.Strings(caps)
	return m.To.String() + "/" + strings.Join(caps, ",")
}

func contains(ps []Position, p Position) bool {
	for _, q := range ps {
		if q == p {
			return true
		}
	}
	return false
}
