package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"emittr/connectfour/internal/game"
)

type CompletedGame struct {
	ID         string
	Difficulty string
	Outcome    string
	Moves      int
	StartedAt  time.Time
	EndedAt    time.Time
}

// CompletedFromSnapshot flattens a finished session for storage.
func CompletedFromSnapshot(s game.Snapshot) CompletedGame {
	outcome := "none"
	if s.Outcome != nil {
		outcome = s.Outcome.String()
	}
	return CompletedGame{
		ID:         s.ID,
		Difficulty: s.Difficulty.String(),
		Outcome:    outcome,
		Moves:      len(s.Moves),
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
	}
}

type DifficultyStats struct {
	Difficulty    string `json:"difficulty"`
	Games         int    `json:"games"`
	PlayerOneWins int    `json:"playerOneWins"`
	PlayerTwoWins int    `json:"playerTwoWins"`
	Draws         int    `json:"draws"`
}

type Store interface {
	SaveGame(ctx context.Context, g CompletedGame) error
	Stats(ctx context.Context) ([]DifficultyStats, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.SugaredLogger
}

func NewPostgresStore(ctx context.Context, url string, log *zap.SugaredLogger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "connect postgres")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	return &PostgresStore{pool: pool, log: log}, nil
}

func (p *PostgresStore) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

func (p *PostgresStore) EnsureTables(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS games (
	id TEXT PRIMARY KEY,
	difficulty TEXT NOT NULL,
	outcome TEXT NOT NULL,
	moves INTEGER NOT NULL,
	started_at TIMESTAMP,
	ended_at TIMESTAMP
);
`)
	return errors.Wrap(err, "ensure games table")
}

func (p *PostgresStore) SaveGame(ctx context.Context, g CompletedGame) error {
	if p == nil || p.pool == nil {
		return nil
	}
	_, err := p.pool.Exec(ctx, `INSERT INTO games (id, difficulty, outcome, moves, started_at, ended_at)
VALUES ($1,$2,$3,$4,$5,$6) ON CONFLICT (id) DO NOTHING`, g.ID, g.Difficulty, g.Outcome, g.Moves, g.StartedAt, g.EndedAt)
	if err != nil {
		p.log.Errorw("failed to save game", "gameId", g.ID, "error", err)
		return errors.Wrapf(err, "save game %s", g.ID)
	}
	return nil
}

func (p *PostgresStore) Stats(ctx context.Context) ([]DifficultyStats, error) {
	rows, err := p.pool.Query(ctx, `
SELECT difficulty,
	COUNT(*),
	COUNT(*) FILTER (WHERE outcome = 'player_one'),
	COUNT(*) FILTER (WHERE outcome = 'player_two'),
	COUNT(*) FILTER (WHERE outcome = 'draw')
FROM games
GROUP BY difficulty`)
	if err != nil {
		return nil, errors.Wrap(err, "query stats")
	}
	defer rows.Close()
	var res []DifficultyStats
	for rows.Next() {
		var row DifficultyStats
		if err := rows.Scan(&row.Difficulty, &row.Games, &row.PlayerOneWins, &row.PlayerTwoWins, &row.Draws); err != nil {
			return nil, errors.Wrap(err, "scan stats")
		}
		res = append(res, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "read stats")
	}
	sortStats(res)
	return res, nil
}

// MemoryStore keeps totals in process. The server falls back to it when no
// database is configured.
type MemoryStore struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	stats map[string]*DifficultyStats
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		seen:  make(map[string]struct{}),
		stats: make(map[string]*DifficultyStats),
	}
}

func (m *MemoryStore) SaveGame(_ context.Context, g CompletedGame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[g.ID]; ok {
		return nil
	}
	m.seen[g.ID] = struct{}{}

	row, ok := m.stats[g.Difficulty]
	if !ok {
		row = &DifficultyStats{Difficulty: g.Difficulty}
		m.stats[g.Difficulty] = row
	}
	row.Games++
	switch g.Outcome {
	case game.PlayerOne.String():
		row.PlayerOneWins++
	case game.PlayerTwo.String():
		row.PlayerTwoWins++
	case "draw":
		row.Draws++
	}
	return nil
}

func (m *MemoryStore) Stats(_ context.Context) ([]DifficultyStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]DifficultyStats, 0, len(m.stats))
	for _, row := range m.stats {
		res = append(res, *row)
	}
	sortStats(res)
	return res, nil
}

// sortStats orders rows from Off to Expert.
func sortStats(rows []DifficultyStats) {
	rank := func(name string) int {
		d, err := game.ParseDifficulty(name)
		if err != nil {
			return int(game.Expert) + 1
		}
		return int(d)
	}
	slices.SortFunc(rows, func(a, b DifficultyStats) int {
		return rank(a.Difficulty) - rank(b.Difficulty)
	})
}
