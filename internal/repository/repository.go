// Package repository archives finished games and player ratings.
package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/park285/dame-server/internal/domain"
)

var ErrDuplicateGame = errors.New("game already archived")

type Repository interface {
	SaveGame(ctx context.Context, game *domain.GameRecord) error
	RecentGames(ctx context.Context, playerID string, limit int) ([]*domain.GameRecord, error)
	GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error)
	UpsertProfile(ctx context.Context, profile *domain.PlayerProfile) error
	Close() error
}

const (
	defaultRecentLimit = 20
	maxRecentLimit     = 100
)

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}

// Open picks a backend from databaseURL: postgres:// URLs use lib/pq, any
// other non-empty value is a sqlite path, empty keeps everything in memory.
func Open(ctx context.Context, databaseURL string) (Repository, error) {
	dsn := strings.TrimSpace(databaseURL)
	switch {
	case dsn == "":
		return NewMemory(), nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return OpenPostgres(ctx, dsn)
	default:
		return OpenSQLite(ctx, strings.TrimPrefix(dsn, "sqlite://"))
	}
}
