package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"go-roomrelay/internal/chat"
	"go-roomrelay/internal/config"
	"go-roomrelay/internal/db"
	"go-roomrelay/internal/poll"
	"go-roomrelay/internal/relay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config & Logger
	cfg, err := config.Load(flag.CommandLine, os.Args[1:])
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	// 2. Database
	database, err := db.NewDatabase(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() {
		log.Info("Closing database")
		_ = database.Close()
	}()
	log.Info("Connected to database", "driver", cfg.DBDriver)

	if err := database.AutoMigrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]relay.HealthCheck{"database": database.Ping}

	// 3. Redis, only when several relay processes share the rooms
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
		log.Info("Connected to Redis", "addr", cfg.RedisAddr, "channel", cfg.RedisChannel)
	} else {
		log.Info("REDIS_ADDR not set, fan-out stays in this process")
	}

	// 4. Rooms
	messages := chat.NewLog(chat.NewRepository(database), cfg.HistoryLimit)
	polls := poll.NewCoordinator(poll.NewRepository(database), log, cfg.VoteAttempts)
	hub := relay.NewHub(log, redisClient, cfg.RedisChannel)

	g, gctx := errgroup.WithContext(ctx)

	rooms := relay.New(log, messages, polls, hub, cfg.DefaultRoom, cfg.EventTimeout)
	handler := relay.NewHandler(gctx, log, hub, rooms, relay.HandlerOptions{
		MaxMessageBytes: cfg.MaxMessageBytes,
		SendBuffer:      cfg.SendBuffer,
		Checks:          checks,
	})
	srv := &http.Server{Addr: cfg.Addr, Handler: handler.Routes()}

	// 5. Run until a signal or the first failure
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return hub.SubscribeToRedis(gctx)
	})
	g.Go(func() error {
		log.Info("Server starting", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped cleanly")
	return nil
}
