package ai

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/park285/dame-server/internal/draughts"
)

var ErrInvalidDifficulty = errors.New("difficulty must be between 1 and 5")

const (
	winScore       = 1_000_000
	cancelCheckMod = 256
)

var depthByDifficulty = map[int]int{
	1: 1,
	2: 2,
	3: 4,
	4: 6,
	5: 8,
}

// Depth returns the search depth in plies for a difficulty level.
func Depth(difficulty int) (int, error) {
	d, ok := depthByDifficulty[difficulty]
	if !ok {
		return 0, ErrInvalidDifficulty
	}
	return d, nil
}

type Searcher struct {
	mu  sync.Mutex
	rng *rand.Rand
}

type Option func(*Searcher)

// WithRand fixes the source used for difficulty-1 play.
func WithRand(r *rand.Rand) Option {
	return func(s *Searcher) { s.rng = r }
}

func NewSearcher(opts ...Option) *Searcher {
	s := &Searcher{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BestMove picks a move for color. ok is false only when color has no legal
// move. Difficulty 1 plays a random legal move; higher levels run alpha-beta
// with iterative deepening up to the level's depth. If ctx ends mid-search the
// best move of the last finished iteration is returned.
func (s *Searcher) BestMove(ctx context.Context, b *draughts.Board, color draughts.Color, difficulty int) (draughts.Move, bool, error) {
	depth, err := Depth(difficulty)
	if err != nil {
		return draughts.Move{}, false, err
	}
	moves := draughts.LegalMoves(b, color)
	if len(moves) == 0 {
		return draughts.Move{}, false, nil
	}
	if difficulty == 1 {
		s.mu.Lock()
		idx := s.rng.Intn(len(moves))
		s.mu.Unlock()
		return moves[idx], true, nil
	}
	if len(moves) == 1 {
		return moves[0], true, nil
	}
	orderMoves(moves)

	sr := &search{ctx: ctx, memo: make(map[string]int)}
	best := moves[0]
	for d := 1; d <= depth; d++ {
		mv, ok := sr.root(b, color, moves, d)
		if !ok {
			break
		}
		best = mv
	}
	return best, true, nil
}

// search holds per-call state. The memo is dropped with it.
type search struct {
	ctx     context.Context
	memo    map[string]int
	nodes   int
	stopped bool
}

func (sr *search) root(b *draughts.Board, color draughts.Color, moves []draughts.Move, depth int) (draughts.Move, bool) {
	alpha, beta := -winScore*2, winScore*2
	best := moves[0]
	bestScore := -winScore * 2
	for _, m := range moves {
		next, err := b.Apply(m)
		if err != nil {
			continue
		}
		score := -sr.negamax(next, color.Opponent(), depth-1, -beta, -alpha, 1)
		if sr.stopped {
			return draughts.Move{}, false
		}
		if score > bestScore {
			bestScore = score
			best = m
		}
		if score > alpha {
			alpha = score
		}
	}
	return best, true
}

func (sr *search) negamax(b *draughts.Board, toMove draughts.Color, depth, alpha, beta, ply int) int {
	sr.nodes++
	if sr.nodes%cancelCheckMod == 0 && sr.ctx.Err() != nil {
		sr.stopped = true
	}
	if sr.stopped {
		return 0
	}

	moves := draughts.LegalMoves(b, toMove)
	if len(moves) == 0 {
		return -winScore + ply
	}
	if depth <= 0 {
		return sr.evaluate(b, toMove)
	}
	orderMoves(moves)

	best := -winScore * 2
	for _, m := range moves {
		next, err := b.Apply(m)
		if err != nil {
			continue
		}
		score := -sr.negamax(next, toMove.Opponent(), depth-1, -beta, -alpha, ply+1)
		if score > best {
			best = score
		}
		if score > alpha {
			alpha = score
		}
		if alpha >= beta {
			break
		}
	}
	return best
}

// evaluate scores b for the side to move, caching the light-relative value.
func (sr *search) evaluate(b *draughts.Board, toMove draughts.Color) int {
	key := b.Key()
	v, ok := sr.memo[key]
	if !ok {
		v = Evaluate(b)
		sr.memo[key] = v
	}
	if toMove == draughts.Dark {
		return -v
	}
	return v
}

// orderMoves puts longer capture chains first.
func orderMoves(moves []draughts.Move) {
	sort.SliceStable(moves, func(i, j int) bool {
		return len(moves[i].Captures) > len(moves[j].Captures)
	})
}
