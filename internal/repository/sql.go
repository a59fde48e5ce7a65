package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/dame-server/internal/domain"
	_ "modernc.org/sqlite"
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// sqlRepo serves both backends. Queries are written with ? placeholders and
// rebound for postgres.
type sqlRepo struct {
	db      *sql.DB
	dialect dialect
}

const schema = `
CREATE TABLE IF NOT EXISTS dame_games (
	game_id      TEXT PRIMARY KEY,
	light_id     TEXT NOT NULL,
	light_name   TEXT NOT NULL,
	dark_id      TEXT NOT NULL,
	dark_name    TEXT NOT NULL,
	result       TEXT NOT NULL,
	winner       TEXT NOT NULL,
	winner_id    TEXT NOT NULL,
	moves        TEXT NOT NULL,
	stake_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
	currency     TEXT NOT NULL DEFAULT '',
	payout       DOUBLE PRECISION NOT NULL DEFAULT 0,
	started_at   BIGINT NOT NULL,
	ended_at     BIGINT NOT NULL,
	duration_ms  BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS dame_games_light_idx ON dame_games (light_id, ended_at);
CREATE INDEX IF NOT EXISTS dame_games_dark_idx ON dame_games (dark_id, ended_at);
CREATE TABLE IF NOT EXISTS dame_profiles (
	player_id    TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	rating       INTEGER NOT NULL,
	games_played INTEGER NOT NULL DEFAULT 0,
	wins         INTEGER NOT NULL DEFAULT 0,
	losses       INTEGER NOT NULL DEFAULT 0,
	draws        INTEGER NOT NULL DEFAULT 0,
	updated_at   BIGINT NOT NULL
);`

func OpenPostgres(ctx context.Context, databaseURL string) (Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	r, err := newSQLRepo(ctx, db, dialectPostgres)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// OpenSQLite opens a file path or ":memory:".
func OpenSQLite(ctx context.Context, path string) (Repository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps a :memory: database alive across calls
	db.SetMaxOpenConns(1)
	r, err := newSQLRepo(ctx, db, dialectSQLite)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newSQLRepo(ctx context.Context, db *sql.DB, d dialect) (*sqlRepo, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	r := &sqlRepo{db: db, dialect: d}
	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *sqlRepo) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (r *sqlRepo) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// rebind turns ? placeholders into $n for postgres.
func (r *sqlRepo) rebind(q string) string {
	if r.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, ch := range q {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func (r *sqlRepo) SaveGame(ctx context.Context, g *domain.GameRecord) error {
	if g == nil {
		return fmt.Errorf("nil game record")
	}
	moves, err := json.Marshal(g.Moves)
	if err != nil {
		return fmt.Errorf("marshal moves: %w", err)
	}
	const q = `INSERT INTO dame_games (
		game_id, light_id, light_name, dark_id, dark_name,
		result, winner, winner_id, moves,
		stake_amount, currency, payout,
		started_at, ended_at, duration_ms
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	ON CONFLICT (game_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, r.rebind(q),
		g.ID, g.LightID, g.LightName, g.DarkID, g.DarkName,
		g.Result, g.Winner, g.WinnerID, string(moves),
		g.StakeAmount, g.Currency, g.Payout,
		g.StartedAt.UnixMilli(), g.EndedAt.UnixMilli(), g.Duration.Milliseconds(),
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateGame
	}
	return nil
}

func (r *sqlRepo) RecentGames(ctx context.Context, playerID string, limit int) ([]*domain.GameRecord, error) {
	const q = `SELECT game_id, light_id, light_name, dark_id, dark_name,
		result, winner, winner_id, moves, stake_amount, currency, payout,
		started_at, ended_at, duration_ms
	FROM dame_games
	WHERE light_id = ? OR dark_id = ?
	ORDER BY ended_at DESC, game_id
	LIMIT ?`
	rows, err := r.db.QueryContext(ctx, r.rebind(q), playerID, playerID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.GameRecord
	for rows.Next() {
		var (
			g                     domain.GameRecord
			moves                 string
			started, ended, durMS int64
		)
		if err := rows.Scan(&g.ID, &g.LightID, &g.LightName, &g.DarkID, &g.DarkName,
			&g.Result, &g.Winner, &g.WinnerID, &moves, &g.StakeAmount, &g.Currency, &g.Payout,
			&started, &ended, &durMS); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(moves), &g.Moves); err != nil {
			return nil, fmt.Errorf("decode moves for %s: %w", g.ID, err)
		}
		g.StartedAt = time.UnixMilli(started).UTC()
		g.EndedAt = time.UnixMilli(ended).UTC()
		g.Duration = time.Duration(durMS) * time.Millisecond
		out = append(out, &g)
	}
	return out, rows.Err()
}

func (r *sqlRepo) GetProfile(ctx context.Context, playerID string) (*domain.PlayerProfile, error) {
	const q = `SELECT player_id, display_name, rating, games_played, wins, losses, draws, updated_at
	FROM dame_profiles WHERE player_id = ?`
	var (
		p       domain.PlayerProfile
		updated int64
	)
	err := r.db.QueryRowContext(ctx, r.rebind(q), playerID).Scan(
		&p.PlayerID, &p.DisplayName, &p.Rating, &p.GamesPlayed, &p.Wins, &p.Losses, &p.Draws, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return &p, nil
}

func (r *sqlRepo) UpsertProfile(ctx context.Context, p *domain.PlayerProfile) error {
	if p == nil {
		return fmt.Errorf("nil profile")
	}
	updated := p.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	const q = `INSERT INTO dame_profiles (
		player_id, display_name, rating, games_played, wins, losses, draws, updated_at
	) VALUES (?,?,?,?,?,?,?,?)
	ON CONFLICT (player_id) DO UPDATE SET
		display_name = excluded.display_name,
		rating = excluded.rating,
		games_played = excluded.games_played,
		wins = excluded.wins,
		losses = excluded.losses,
		draws = excluded.draws,
		updated_at = excluded.updated_at`
	_, err := r.db.ExecContext(ctx, r.rebind(q),
		p.PlayerID, p.DisplayName, p.Rating, p.GamesPlayed, p.Wins, p.Losses, p.Draws, updated.UnixMilli())
	return err
}
