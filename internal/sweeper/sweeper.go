// Package sweeper keeps the room directory in step with the rooms that are actually
// in use. Rows of live rooms are refreshed; rows nobody has touched for a while are
// removed.
package sweeper

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Vandu-Shre/synapse/internal/db"
)

// LiveRooms reports the rooms currently held in memory.
type LiveRooms interface {
	GetActiveRooms() map[string]int
}

type Config struct {
	Interval   time.Duration
	StaleAfter time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:   10 * time.Minute,
		StaleAfter: 24 * time.Hour,
	}
}

type Service struct {
	database *db.Database
	live     LiveRooms
	config   Config
	logger   *slog.Logger
	now      func() time.Time
	stop     chan struct{}
	wg       sync.WaitGroup
}

func New(database *db.Database, live LiveRooms, config Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = d.Interval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = d.StaleAfter
	}
	return &Service{
		database: database,
		live:     live,
		config:   config,
		logger:   logger,
		now:      time.Now,
		stop:     make(chan struct{}),
	}
}

func (s *Service) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info("directory sweeper started",
		slog.Duration("interval", s.config.Interval),
		slog.Duration("staleAfter", s.config.StaleAfter))
}

func (s *Service) Stop() {
	close(s.stop)
	s.wg.Wait()
	s.logger.Info("directory sweeper stopped")
}

func (s *Service) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.SweepNow()
		}
	}
}

// SweepNow refreshes every live room and deletes stale rows. It returns how many
// rows were deleted.
func (s *Service) SweepNow() int64 {
	now := s.now()
	touched := 0
	for roomID := range s.live.GetActiveRooms() {
		if err := s.database.TouchRoom(roomID, now); err != nil {
			s.logger.Warn("sweeper: touch failed", slog.String("room", roomID), slog.Any("error", err))
			continue
		}
		touched++
	}

	deleted, err := s.database.DeleteRoomsIdleSince(now.Add(-s.config.StaleAfter))
	if err != nil {
		s.logger.Error("sweeper: delete stale rooms failed", slog.Any("error", err))
		return 0
	}

	if deleted > 0 {
		s.logger.Info("swept stale rooms", slog.Int64("deleted", deleted), slog.Int("live", touched))
	}
	return deleted
}
