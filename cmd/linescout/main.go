package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/favron1/linescout/internal/config"
	"github.com/favron1/linescout/internal/consumer"
	"github.com/favron1/linescout/internal/dedup"
	"github.com/favron1/linescout/internal/logger"
	"github.com/favron1/linescout/internal/metrics"
	"github.com/favron1/linescout/internal/publisher"
	"github.com/favron1/linescout/internal/scanner"
	"github.com/favron1/linescout/internal/server"
	"github.com/favron1/linescout/internal/store"
	"github.com/favron1/linescout/sports"
	"github.com/favron1/linescout/sports/nba"
	"github.com/favron1/linescout/sports/nfl"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "linescout: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	mainLog := logger.Component(log, "main")
	mainLog.Info("linescout starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	mainLog.WithFields(logger.Fields{"addr": cfg.Redis.Addr}).Info("connected to redis")

	st, err := store.Open(ctx, cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer st.Close()
	mainLog.Info("connected to postgres")

	registry := sports.NewRegistry()
	for _, pack := range []sports.Pack{nba.New(), nfl.New()} {
		if err := registry.Register(pack); err != nil {
			return fmt.Errorf("register sport pack: %w", err)
		}
	}

	sm := metrics.NewScannerMetrics()
	cons := consumer.NewStreamConsumer(redisClient, cfg.Redis.ConsumerID, cfg.Redis.GroupName)
	pub := publisher.NewStreamPublisher(redisClient)
	dd := dedup.NewDeduplicator(redisClient, cfg.Alerts.DedupTTLMinutes)
	bucket := dedup.NewTokenBucket(redisClient, cfg.Alerts.RateLimitPerMin)

	engine := scanner.New(cfg, log, cons, pub, st, dd, bucket, sm, registry)

	handler := server.NewHandler(engine, st, log)
	srv := server.New(cfg.Server, handler, sm, log)

	errCh := make(chan error, 2)
	go func() {
		errCh <- engine.Run(ctx)
	}()
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		mainLog.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			stop()
			return err
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		mainLog.WithError(err).Warn("graceful shutdown failed")
	}

	mainLog.Info("shutdown complete")
	return nil
}
