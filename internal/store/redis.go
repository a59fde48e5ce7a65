// Package store keeps live room snapshots in Redis so rooms survive a restart.
package store

import (
    "context"
    "encoding/json"
    "fmt"
    "net/url"
    "strconv"
    "strings"
    "time"

    "github.com/park285/dame-server/internal/match"
    "github.com/park285/dame-server/internal/obslog"
    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"
)

const (
    ttlSnapshot = 24 * time.Hour
    keyActive   = "games:active"
)

type Store struct{ rdb *redis.Client }

var _ match.SnapshotStore = (*Store)(nil)

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Dial connects using a redis:// or rediss:// URL and pings once.
func Dial(ctx context.Context, redisURL string) (*Store, error) {
    opts, err := ParseRedisURL(redisURL)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
    if s == nil || s.rdb == nil { return nil }
    return s.rdb.Close()
}

func keyGame(id string) string { return "game:" + strings.TrimSpace(id) }

// Save writes game:{id} with a 24h expiry and indexes it as active.
func (s *Store) Save(ctx context.Context, st *match.State) error {
    raw, err := json.Marshal(st)
    if err != nil { return err }
    pipe := s.rdb.TxPipeline()
    pipe.Set(ctx, keyGame(st.ID), raw, ttlSnapshot)
    pipe.SAdd(ctx, keyActive, st.ID)
    _, err = pipe.Exec(ctx)
    return err
}

func (s *Store) Delete(ctx context.Context, id string) error {
    pipe := s.rdb.TxPipeline()
    pipe.Del(ctx, keyGame(id))
    pipe.SRem(ctx, keyActive, id)
    _, err := pipe.Exec(ctx)
    return err
}

func (s *Store) Load(ctx context.Context, id string) (*match.State, error) {
    raw, err := s.rdb.Get(ctx, keyGame(id)).Bytes()
    if err == redis.Nil { return nil, nil }
    if err != nil { return nil, err }
    var st match.State
    if err := json.Unmarshal(raw, &st); err != nil { return nil, err }
    return &st, nil
}

// LoadActive returns every indexed snapshot that has not expired. Expired or
// unreadable entries are dropped from the index.
func (s *Store) LoadActive(ctx context.Context) ([]*match.State, error) {
    ids, err := s.rdb.SMembers(ctx, keyActive).Result()
    if err != nil { return nil, err }
    var out []*match.State
    for _, id := range ids {
        st, lerr := s.Load(ctx, id)
        if lerr != nil {
            obslog.L().Warn("snapshot_load_failed", zap.String("room_id", id), zap.Error(lerr))
        }
        if st == nil || st.Status == match.StatusFinished {
            _ = s.rdb.SRem(ctx, keyActive, id).Err()
            continue
        }
        out = append(out, st)
    }
    return out, nil
}

// ParseRedisURL accepts redis://[:password@]host:port[/db].
func ParseRedisURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(strings.TrimSpace(raw))
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" { return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme) }
    if u.Host == "" { return nil, fmt.Errorf("redis url missing host") }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" {
        n, err := strconv.Atoi(p)
        if err != nil { return nil, fmt.Errorf("redis db %q: %w", p, err) }
        db = n
    }
    pass, _ := u.User.Password()
    return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
