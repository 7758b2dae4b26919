package server

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"emittr/connectfour/internal/analytics"
	"emittr/connectfour/internal/game"
	"emittr/connectfour/internal/storage"
)

type Server struct {
	router     *gin.Engine
	manager    *game.Manager
	store      storage.Store
	snapshots  storage.SnapshotCache
	analytics  *analytics.Producer
	log        *zap.SugaredLogger
	sweepEvery time.Duration
	connMu     sync.RWMutex
	watchers   map[string]map[*wsClient]struct{}
}

type Config struct {
	Columns       int
	Rows          int
	IdleTimeout   time.Duration
	SweepInterval time.Duration
	Bot           *game.Bot
	// Store defaults to an in-memory store when nil.
	Store     storage.Store
	Snapshots storage.SnapshotCache
	Analytics *analytics.Producer
	Logger    *zap.SugaredLogger
}

func New(cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		router:     gin.New(),
		store:      cfg.Store,
		snapshots:  cfg.Snapshots,
		analytics:  cfg.Analytics,
		log:        log,
		sweepEvery: cfg.SweepInterval,
		watchers:   make(map[string]map[*wsClient]struct{}),
	}
	if s.store == nil {
		s.store = storage.NewMemoryStore()
	}
	s.manager = game.NewManager(game.ManagerConfig{
		Columns:     cfg.Columns,
		Rows:        cfg.Rows,
		IdleTimeout: cfg.IdleTimeout,
		Bot:         cfg.Bot,
		OnFinish:    s.onFinish,
		Logger:      log,
	})

	s.router.Use(gin.Recovery(), requestLogger(log))
	s.router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.router.GET("/stats", s.handleStats)
	s.router.POST("/games", s.handleCreate)
	s.router.GET("/games/:id", s.handleGet)
	s.router.POST("/games/:id/commands", s.handleCommand)
	s.router.GET("/ws", s.handleWS)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.router, ReadHeaderTimeout: 10 * time.Second}
	go s.sweeper(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.closeWatchers()
	return errors.Wrap(srv.Shutdown(shutdownCtx), "shutdown")
}

func (s *Server) sweeper(ctx context.Context) {
	if s.sweepEvery <= 0 {
		return
	}
	ticker := time.NewTicker(s.sweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.manager.SweepIdle(); n > 0 {
				s.log.Infow("swept idle games", "count", n)
			}
		}
	}
}

type createRequest struct {
	Difficulty game.Difficulty `json:"difficulty"`
}

type commandRequest struct {
	Type    string `json:"type,omitempty"`
	Command string `json:"command"`
	Column  *int   `json:"column"`
	Key     string `json:"key"`
}

// decode accepts either a single keystroke or a named command. A drop
// must name its column.
func (r commandRequest) decode() (game.Command, error) {
	if r.Key != "" {
		if len(r.Key) == 1 {
			if cmd, ok := game.ParseKey(r.Key[0]); ok {
				return cmd, nil
			}
		}
		return game.Command{}, errors.Wrapf(game.ErrUnknownCommand, "key %q", r.Key)
	}
	col := -1
	if r.Column != nil {
		col = *r.Column
	}
	cmd, err := game.ParseCommand(r.Command, col)
	if err != nil {
		return cmd, err
	}
	if cmd.Kind == game.CommandDrop && r.Column == nil {
		return game.Command{}, errors.Wrap(game.ErrInvalidColumn, "missing column")
	}
	return cmd, nil
}

func (s *Server) handleCreate(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap := s.manager.Create(req.Difficulty)
	s.afterApply(c.Request.Context(), snap)
	c.JSON(http.StatusCreated, snap)
}

func (s *Server) handleGet(c *gin.Context) {
	snap, err := s.lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleCommand(c *gin.Context) {
	var req commandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd, err := req.decode()
	if err != nil {
		s.writeError(c, err)
		return
	}
	snap, err := s.apply(c.Request.Context(), c.Param("id"), cmd)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleStats(c *gin.Context) {
	rows, err := s.store.Stats(c.Request.Context())
	if err != nil {
		s.log.Errorw("stats query failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}
	if rows == nil {
		rows = []storage.DifficultyStats{}
	}
	c.JSON(http.StatusOK, rows)
}

// lookup finds a live game, reviving it from the snapshot cache when the
// manager no longer has it.
func (s *Server) lookup(ctx context.Context, id string) (game.Snapshot, error) {
	snap, err := s.manager.Get(id)
	if !errors.Is(err, game.ErrGameNotFound) || s.snapshots == nil {
		return snap, err
	}
	cached, cerr := s.snapshots.Load(ctx, id)
	if cerr != nil {
		if !errors.Is(cerr, storage.ErrSnapshotNotFound) {
			s.log.Warnw("snapshot load failed", "gameId", id, "error", cerr)
		}
		return game.Snapshot{}, game.ErrGameNotFound
	}
	restored, err := s.manager.Restore(cached)
	if err != nil {
		s.log.Warnw("discarding unusable snapshot", "gameId", id, "error", err)
		return game.Snapshot{}, game.ErrGameNotFound
	}
	return restored, nil
}

func (s *Server) apply(ctx context.Context, id string, cmd game.Command) (game.Snapshot, error) {
	if _, err := s.lookup(ctx, id); err != nil {
		return game.Snapshot{}, err
	}
	snap, err := s.manager.Apply(id, cmd)
	if err != nil {
		return snap, err
	}
	s.afterApply(ctx, snap)
	s.broadcast(snap)
	return snap, nil
}

func (s *Server) afterApply(ctx context.Context, snap game.Snapshot) {
	if s.snapshots != nil {
		var err error
		if snap.Status == game.StatusAbandoned {
			err = s.snapshots.Delete(ctx, snap.ID)
		} else {
			err = s.snapshots.Save(ctx, snap)
		}
		if err != nil {
			s.log.Warnw("snapshot cache write failed", "gameId", snap.ID, "error", err)
		}
	}
	s.analytics.Publish(ctx, analytics.EventMovePlayed, map[string]any{
		"gameId":     snap.ID,
		"status":     snap.Status,
		"difficulty": snap.Difficulty.String(),
		"lastMove":   snap.LastMove,
		"botMove":    snap.BotMove,
		"moves":      len(snap.Moves),
	})
}

func (s *Server) onFinish(snap game.Snapshot) {
	ctx := context.Background()
	completed := storage.CompletedFromSnapshot(snap)
	if err := s.store.SaveGame(ctx, completed); err != nil {
		s.log.Errorw("save finished game", "gameId", snap.ID, "error", err)
	}
	s.analytics.Publish(ctx, analytics.EventGameFinished, map[string]any{
		"gameId":     snap.ID,
		"difficulty": completed.Difficulty,
		"outcome":    completed.Outcome,
		"moves":      completed.Moves,
		"duration":   snap.EndedAt.Sub(snap.StartedAt).Seconds(),
		"startedAt":  snap.StartedAt,
		"endedAt":    snap.EndedAt,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, game.ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrInvalidColumn), errors.Is(err, game.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, game.ErrColumnFull), errors.Is(err, game.ErrGameFinished):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Errorw("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}

func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}
