package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	redis "github.com/redis/go-redis/v9"

	"github.com/Vandu-Shre/synapse/internal/api"
	"github.com/Vandu-Shre/synapse/internal/config"
	"github.com/Vandu-Shre/synapse/internal/db"
	"github.com/Vandu-Shre/synapse/internal/events"
	"github.com/Vandu-Shre/synapse/internal/logging"
	"github.com/Vandu-Shre/synapse/internal/presence"
	"github.com/Vandu-Shre/synapse/internal/ratelimit"
	"github.com/Vandu-Shre/synapse/internal/room"
	"github.com/Vandu-Shre/synapse/internal/sweeper"
	"github.com/Vandu-Shre/synapse/internal/ws"
)

func main() {
	configFile := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	if cfg.File != "" {
		logger.Info("Configuration loaded", slog.String("file", cfg.File))
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Server shut down")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	database, err := db.New(cfg.Directory.Path)
	if err != nil {
		return err
	}
	defer database.Close()

	var observers []room.Observer

	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			return err
		}

		tracker := presence.NewTracker(rdb, cfg.Redis.KeyPrefix, 0, logger)
		defer tracker.Close()
		observers = append(observers, tracker)
		logger.Info("Presence mirror enabled", slog.Any("addrs", cfg.Redis.Addrs))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			return err
		}

		dispatcher := events.NewDispatcher(producer, cfg.Kafka.Topic, events.Options{
			QueueSize: cfg.Kafka.QueueSize,
			Workers:   cfg.Kafka.Workers,
			MaxRetry:  cfg.Kafka.MaxRetry,
		}, logger)
		defer dispatcher.Close()
		observers = append(observers, dispatcher)
		logger.Info("Event stream enabled", slog.String("topic", cfg.Kafka.Topic))
	}

	hub := ws.NewHub(ws.Config{
		GracePeriod:    cfg.Room.GracePeriod,
		HistoryLimit:   cfg.Room.HistoryLimit,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		SendBuffer:     cfg.WS.SendBuffer,
		PongWait:       cfg.WS.PongWait,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, logger, observers...)
	go hub.Run()
	defer hub.Stop()

	var limiter *ratelimit.ClientLimiters
	if cfg.API.RequestsPerSecond > 0 {
		limiter = ratelimit.NewClientLimiters(cfg.API.RequestsPerSecond, cfg.API.Burst)
		defer limiter.Stop()
	}

	sweep := sweeper.New(database, hub, sweeper.Config{
		Interval:   cfg.Directory.SweepInterval,
		StaleAfter: cfg.Directory.StaleAfter,
	}, logger)
	sweep.Start()
	defer sweep.Stop()

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.New(hub, database, limiter, logger).Router(cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Synapse server starting",
			slog.String("addr", cfg.Server.Address),
			slog.String("directory", cfg.Directory.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
