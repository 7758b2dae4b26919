package storage

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"emittr/connectfour/internal/game"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// SnapshotCache keeps the latest state of each live game so a client can
// resume it after the server restarts.
type SnapshotCache interface {
	Save(ctx context.Context, snap game.Snapshot) error
	Load(ctx context.Context, id string) (game.Snapshot, error)
	Delete(ctx context.Context, id string) error
}

type RedisSnapshots struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.SugaredLogger
}

// NewRedisSnapshots connects to addr, which is either host:port or a
// redis:// URL, and checks the connection.
func NewRedisSnapshots(ctx context.Context, addr, password string, ttl time.Duration, log *zap.SugaredLogger) (*RedisSnapshots, error) {
	opts := &redis.Options{Addr: addr, Password: password, DB: 0}
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis url")
		}
		if password != "" {
			parsed.Password = password
		}
		opts = parsed
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connect redis")
	}
	log.Infow("connected to redis", "addr", opts.Addr)
	return &RedisSnapshots{client: client, ttl: ttl, log: log}, nil
}

func snapshotKey(id string) string {
	return "game:" + id
}

func (r *RedisSnapshots) Save(ctx context.Context, snap game.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return errors.Wrap(err, "encode snapshot")
	}
	if err := r.client.Set(ctx, snapshotKey(snap.ID), data, r.ttl).Err(); err != nil {
		return errors.Wrapf(err, "save snapshot %s", snap.ID)
	}
	return nil
}

func (r *RedisSnapshots) Load(ctx context.Context, id string) (game.Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return game.Snapshot{}, ErrSnapshotNotFound
	}
	if err != nil {
		return game.Snapshot{}, errors.Wrapf(err, "load snapshot %s", id)
	}
	var snap game.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return game.Snapshot{}, errors.Wrapf(err, "decode snapshot %s", id)
	}
	return snap, nil
}

func (r *RedisSnapshots) Delete(ctx context.Context, id string) error {
	return errors.Wrapf(r.client.Del(ctx, snapshotKey(id)).Err(), "delete snapshot %s", id)
}

func (r *RedisSnapshots) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// MemorySnapshots is an in-process SnapshotCache without expiry.
type MemorySnapshots struct {
	mu    sync.Mutex
	snaps map[string]game.Snapshot
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{snaps: make(map[string]game.Snapshot)}
}

func (m *MemorySnapshots) Save(_ context.Context, snap game.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[snap.ID] = snap
	return nil
}

func (m *MemorySnapshots) Load(_ context.Context, id string) (game.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	if !ok {
		return game.Snapshot{}, ErrSnapshotNotFound
	}
	return snap, nil
}

func (m *MemorySnapshots) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, id)
	return nil
}
