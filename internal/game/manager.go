package game

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	StatusActive    = "active"
	StatusFinished  = "finished"
	StatusAbandoned = "abandoned"
)

var (
	ErrGameNotFound    = errors.New("game not found")
	ErrGameFinished    = errors.New("game already finished")
	ErrInvalidSnapshot = errors.New("invalid snapshot")
)

// Session is one game. Its fields are guarded by mu, which a bot search
// holds for the whole search; the Manager lock only guards the session map.
type Session struct {
	mu         sync.Mutex
	ID         string
	Board      Board
	Turn       Cell
	Difficulty Difficulty
	Status     string
	Outcome    *Outcome
	Moves      []int
	LastMove   int
	BotMove    int
	StartedAt  time.Time
	EndedAt    time.Time
	LastMoveAt time.Time
}

// Snapshot is what a session looks like to a renderer or a cache.
type Snapshot struct {
	ID          string     `json:"gameId"`
	Columns     int        `json:"columns"`
	Rows        int        `json:"rows"`
	Cells       []Cell     `json:"board"`
	Turn        Cell       `json:"turn"`
	Difficulty  Difficulty `json:"difficulty"`
	Status      string     `json:"status"`
	Outcome     *Outcome   `json:"outcome,omitempty"`
	WinningLine []int      `json:"winningLine,omitempty"`
	LastMove    int        `json:"lastMove"`
	BotMove     int        `json:"botMove"`
	Moves       []int      `json:"moves"`
	StartedAt   time.Time  `json:"startedAt"`
	EndedAt     time.Time  `json:"endedAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type ManagerConfig struct {
	Columns     int
	Rows        int
	IdleTimeout time.Duration
	Bot         *Bot
	// OnFinish runs once each time a game ends in a win or a draw.
	OnFinish func(Snapshot)
	Logger   *zap.SugaredLogger
	Clock    func() time.Time
}

// Manager owns the live sessions and runs their turn loop. Games are
// independent: a move in one never waits on a search in another.
type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	bot       *Bot
	columns   int
	rows      int
	idleAfter time.Duration
	onFinish  func(Snapshot)
	log       *zap.SugaredLogger
	now       func() time.Time
}

func NewManager(cfg ManagerConfig) *Manager {
	m := &Manager{
		sessions:  make(map[string]*Session),
		bot:       cfg.Bot,
		columns:   cfg.Columns,
		rows:      cfg.Rows,
		idleAfter: cfg.IdleTimeout,
		onFinish:  cfg.OnFinish,
		log:       cfg.Logger,
		now:       cfg.Clock,
	}
	if m.columns <= 0 {
		m.columns = DefaultColumns
	}
	if m.rows <= 0 {
		m.rows = DefaultRows
	}
	if m.bot == nil {
		m.bot = NewBot(nil)
	}
	if m.log == nil {
		m.log = zap.NewNop().Sugar()
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

func (m *Manager) Create(difficulty Difficulty) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	s := &Session{
		ID:         uuid.NewString(),
		Board:      NewBoard(m.columns, m.rows),
		Turn:       PlayerOne,
		Difficulty: difficulty,
		Status:     StatusActive,
		LastMove:   -1,
		BotMove:    -1,
		StartedAt:  now,
		LastMoveAt: now,
	}
	m.sessions[s.ID] = s
	m.log.Debugw("game created", "gameId", s.ID, "difficulty", difficulty)
	return s.snapshot()
}

func (m *Manager) Get(id string) (Snapshot, error) {
	s, ok := m.session(id)
	if !ok {
		return Snapshot{}, ErrGameNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status == StatusAbandoned {
		return Snapshot{}, ErrGameNotFound
	}
	return s.snapshot(), nil
}

func (m *Manager) session(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Apply runs one command against the session id. Drop errors leave the
// board as it was.
func (m *Manager) Apply(id string, cmd Command) (Snapshot, error) {
	s, ok := m.session(id)
	if !ok {
		return Snapshot{}, ErrGameNotFound
	}
	s.mu.Lock()
	if s.Status == StatusAbandoned {
		s.mu.Unlock()
		return Snapshot{}, ErrGameNotFound
	}

	wasActive := s.Status == StatusActive
	var err error
	switch cmd.Kind {
	case CommandQuit:
		s.Status = StatusAbandoned
		s.EndedAt = m.now()
	case CommandToggleBot:
		s.Difficulty = s.Difficulty.Next()
		if s.Difficulty != Off && s.Status == StatusActive && s.Turn == PlayerTwo {
			m.botTurn(s)
		}
	case CommandReset:
		m.reset(s)
		wasActive = true
	case CommandDrop:
		err = m.drop(s, cmd.Column)
	default:
		err = ErrUnknownCommand
	}
	snap := s.snapshot()
	s.mu.Unlock()

	if cmd.Kind == CommandQuit {
		m.forget(s)
	}
	if err != nil {
		return snap, err
	}
	if wasActive && snap.Status == StatusFinished && m.onFinish != nil {
		m.onFinish(snap)
	}
	return snap, nil
}

// forget removes s from the map unless another session has since taken
// its id.
func (m *Manager) forget(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions[s.ID] == s {
		delete(m.sessions, s.ID)
	}
}

func (m *Manager) drop(s *Session, col int) error {
	if s.Status != StatusActive {
		return ErrGameFinished
	}
	i, err := s.Board.Drop(col, s.Turn)
	if err != nil {
		return err
	}
	s.Moves = append(s.Moves, i)
	s.LastMove, s.BotMove = i, -1
	s.LastMoveAt = m.now()
	if m.settle(s, s.Turn, i) {
		return nil
	}
	if s.Difficulty != Off {
		m.botTurn(s)
		return nil
	}
	s.Turn = s.Turn.Opponent()
	return nil
}

// botTurn plays PlayerTwo's move and hands the turn back to PlayerOne.
func (m *Manager) botTurn(s *Session) {
	s.Turn = PlayerTwo
	col := m.bot.ChooseColumn(s.Board, s.Difficulty)
	i, err := s.Board.Drop(col, PlayerTwo)
	if err != nil {
		m.log.Errorw("bot chose an unplayable column", "gameId", s.ID, "column", col, "error", err)
		return
	}
	s.Moves = append(s.Moves, i)
	s.BotMove = i
	s.LastMoveAt = m.now()
	if !m.settle(s, PlayerTwo, i) {
		s.Turn = PlayerOne
	}
}

// settle records the outcome of mover's piece at index, if any.
func (m *Manager) settle(s *Session, mover Cell, index int) bool {
	outcome, over := Detect(s.Board, mover, index)
	if !over {
		return false
	}
	s.Outcome = &outcome
	s.Status = StatusFinished
	s.EndedAt = m.now()
	m.log.Infow("game finished", "gameId", s.ID, "outcome", outcome.String(), "moves", len(s.Moves))
	return true
}

func (m *Manager) reset(s *Session) {
	now := m.now()
	s.Board.Reset()
	s.Turn = PlayerOne
	s.Status = StatusActive
	s.Outcome = nil
	s.Moves = nil
	s.LastMove, s.BotMove = -1, -1
	s.StartedAt = now
	s.EndedAt = time.Time{}
	s.LastMoveAt = now
}

// Restore reinstates a session from a snapshot, typically one read back from
// the snapshot cache after a restart. A session already live under the same
// id wins.
func (m *Manager) Restore(snap Snapshot) (Snapshot, error) {
	if snap.Status == StatusAbandoned {
		return Snapshot{}, ErrGameNotFound
	}
	if err := validateSnapshot(snap); err != nil {
		return Snapshot{}, err
	}
	board, err := BoardFromCells(snap.Columns, snap.Rows, snap.Cells)
	if err != nil {
		return Snapshot{}, errors.Wrap(ErrInvalidSnapshot, err.Error())
	}

	fresh := &Session{
		ID:         snap.ID,
		Board:      board,
		Turn:       snap.Turn,
		Difficulty: snap.Difficulty,
		Status:     snap.Status,
		Outcome:    snap.Outcome,
		Moves:      append([]int(nil), snap.Moves...),
		LastMove:   snap.LastMove,
		BotMove:    snap.BotMove,
		StartedAt:  snap.StartedAt,
		EndedAt:    snap.EndedAt,
		LastMoveAt: m.now(),
	}

	m.mu.Lock()
	s, live := m.sessions[snap.ID]
	if !live {
		m.sessions[fresh.ID] = fresh
		s = fresh
	}
	m.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status == StatusAbandoned {
		return Snapshot{}, ErrGameNotFound
	}
	if !live {
		m.log.Infow("game restored", "gameId", s.ID, "moves", len(s.Moves))
	}
	return s.snapshot(), nil
}

// validateSnapshot rejects snapshots a session could not have produced.
func validateSnapshot(snap Snapshot) error {
	if snap.ID == "" {
		return errors.Wrap(ErrInvalidSnapshot, "missing id")
	}
	if snap.Turn != PlayerOne && snap.Turn != PlayerTwo {
		return errors.Wrapf(ErrInvalidSnapshot, "turn %d", snap.Turn)
	}
	if snap.Status != StatusActive && snap.Status != StatusFinished {
		return errors.Wrapf(ErrInvalidSnapshot, "status %q", snap.Status)
	}
	if snap.Difficulty > Expert {
		return errors.Wrapf(ErrInvalidSnapshot, "difficulty %d", snap.Difficulty)
	}
	for i, c := range snap.Cells {
		if c != Empty && c != PlayerOne && c != PlayerTwo {
			return errors.Wrapf(ErrInvalidSnapshot, "cell %d holds %d", i, c)
		}
	}
	if snap.Status == StatusFinished && snap.Outcome == nil {
		return errors.Wrap(ErrInvalidSnapshot, "finished without an outcome")
	}
	return nil
}

// SweepIdle drops sessions nobody has touched within the idle timeout and
// returns how many went. A session busy with a move is not idle.
func (m *Manager) SweepIdle() int {
	if m.idleAfter <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	removed := 0
	for id, s := range m.sessions {
		if !s.mu.TryLock() {
			continue
		}
		idle := now.Sub(s.LastMoveAt)
		s.mu.Unlock()
		if idle > m.idleAfter {
			delete(m.sessions, id)
			removed++
			m.log.Infow("game expired", "gameId", id, "idle", idle)
		}
	}
	return removed
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		ID:         s.ID,
		Columns:    s.Board.Columns(),
		Rows:       s.Board.Rows(),
		Cells:      s.Board.Cells(),
		Turn:       s.Turn,
		Difficulty: s.Difficulty,
		Status:     s.Status,
		LastMove:   s.LastMove,
		BotMove:    s.BotMove,
		Moves:      append([]int{}, s.Moves...),
		StartedAt:  s.StartedAt,
		EndedAt:    s.EndedAt,
		UpdatedAt:  s.LastMoveAt,
	}
	if s.Outcome != nil {
		o := *s.Outcome
		snap.Outcome = &o
		if o.Kind == OutcomeWinner && len(s.Moves) > 0 {
			snap.WinningLine = WinningLine(s.Board, s.Moves[len(s.Moves)-1])
		}
	}
	return snap
}
