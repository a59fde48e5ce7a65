package ai

import (
	"context"
	"runtime"
	"time"

	"github.com/park285/dame-server/internal/draughts"
	"github.com/park285/dame-server/internal/obslog"
	"go.uber.org/zap"
)

type PoolConfig struct {
	MaxConcurrent int
	Timeout       time.Duration
	Searcher      *Searcher
}

// Pool bounds the number of searches running at once. Each search runs under
// the pool timeout so a deep level cannot hold a slot indefinitely.
type Pool struct {
	searcher *Searcher
	slots    chan struct{}
	timeout  time.Duration
}

func NewPool(cfg PoolConfig) *Pool {
	capacity := cfg.MaxConcurrent
	if capacity <= 0 {
		capacity = defaultCapacity()
	}
	s := cfg.Searcher
	if s == nil {
		s = NewSearcher()
	}
	return &Pool{
		searcher: s,
		slots:    make(chan struct{}, capacity),
		timeout:  cfg.Timeout,
	}
}

func (p *Pool) Capacity() int { return cap(p.slots) }

func (p *Pool) acquire(ctx context.Context) error {
	select {
	case p.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pool) release() { <-p.slots }

// BestMove waits for a free slot, then searches.
func (p *Pool) BestMove(ctx context.Context, b *draughts.Board, color draughts.Color, difficulty int) (draughts.Move, bool, error) {
	if _, err := Depth(difficulty); err != nil {
		return draughts.Move{}, false, err
	}
	if err := p.acquire(ctx); err != nil {
		return draughts.Move{}, false, err
	}
	defer p.release()

	sctx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	start := time.Now()
	mv, ok, err := p.searcher.BestMove(sctx, b, color, difficulty)
	obslog.L().Debug("ai_search",
		zap.String("color", color.String()),
		zap.Int("difficulty", difficulty),
		zap.Bool("found", ok),
		zap.Duration("took", time.Since(start)),
	)
	return mv, ok, err
}

func defaultCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
