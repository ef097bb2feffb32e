// Package main runs the background worker: invite emails and outbound
// message delivery off the Redis job queue.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kronos-crm/backend/config"
	"github.com/kronos-crm/backend/internal/inbox"
	"github.com/kronos-crm/backend/internal/realtime"
	"github.com/kronos-crm/backend/internal/whatsapp"
	"github.com/kronos-crm/backend/internal/worker"
	"github.com/kronos-crm/backend/pkg/cache"
	"github.com/kronos-crm/backend/pkg/database"
	"github.com/kronos-crm/backend/pkg/queue"
	"github.com/kronos-crm/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue := queue.NewQueue(rdb.Client, logger)
	tagCache := cache.New(rdb.Client, cache.DefaultTTL, logger)
	inboxRepo := inbox.NewRepository(pool)
	events := realtime.NewRedisPubSub(rdb.Client, logger)

	email := worker.NewSMTPSender(worker.SMTPConfig{
		Host: cfg.Email.SMTPHost,
		Port: cfg.Email.SMTPPort,
		User: cfg.Email.SMTPUser,
		Pass: cfg.Email.SMTPPass,
		From: cfg.Email.FromAddress,
	})
	wa := whatsapp.NewClient(whatsapp.Config{
		BaseURL: cfg.WhatsApp.BaseURL,
		APIKey:  cfg.WhatsApp.APIKey,
	})

	processor := worker.NewProcessor(jobQueue, inboxRepo, tagCache, email, wa, events, logger)

	go processor.Run(ctx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("worker shutting down")
	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
