package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/dame-server/internal/domain"
)

// memrepo is used when no database is configured.
type memrepo struct {
	mu       sync.RWMutex
	games    map[string]*domain.GameRecord
	profiles map[string]*domain.PlayerProfile
}

func NewMemory() Repository {
	return &memrepo{
		games:    make(map[string]*domain.GameRecord),
		profiles: make(map[string]*domain.PlayerProfile),
	}
}

func (m *memrepo) SaveGame(ctx context.Context, g *domain.GameRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[g.ID]; ok {
		return ErrDuplicateGame
	}
	cp := *g
	cp.Moves = append([]string(nil), g.Moves...)
	m.games[g.ID] = &cp
	return nil
}

func (m *memrepo) RecentGames(ctx context.Context, playerID string, limit int) ([]*domain.GameRecord, error) {
	m.mu.RLock()
	var out []*domain.GameRecord
	for _, g := range m.games {
		if g.Involves(playerID) {
			cp := *g
			out = append(out, &cp)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EndedAt.Equal(out[j].EndedAt) {
			return out[i].EndedAt.After(out[j].EndedAt)
		}
		return out[i].ID < out[j].ID
	})
	if n := clampLimit(limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func (m *memrepo) GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[playerID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *memrepo) UpsertProfile(ctx context.Context, p *domain.PlayerProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.profiles[p.PlayerID] = &cp
	return nil
}

func (m *memrepo) Close() error { return nil }
