// Worker consumes account events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, ACCOUNT_EVENTS_TOPIC, KAFKA_GROUP_ID and LOKI_URL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"account-identity-core/internal/config"
	"account-identity-core/internal/events/loki"
	"account-identity-core/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog, err := logger.New(logger.Options{Level: cfg.LogLevel, Dev: cfg.LogDev})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		zlog.Fatal("worker: KAFKA_BROKERS is required")
	}
	if cfg.LokiURL == "" {
		zlog.Fatal("worker: LOKI_URL is required")
	}

	topic := cfg.AccountEventsTopic
	if topic == "" {
		topic = "account-events"
	}
	groupID := cfg.KafkaGroupID
	if groupID == "" {
		groupID = "account-events-worker"
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	client := loki.NewClient(cfg.LokiURL, "account-core", nil)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	zlog.Info("worker: consuming", zap.String("topic", topic), zap.String("group", groupID), zap.String("loki", cfg.LokiURL))

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				zlog.Info("worker: stopped")
				return
			}
			zlog.Warn("worker: kafka read error", zap.Error(err))
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := client.PushEventJSON(pushCtx, msg.Value); err != nil {
			zlog.Warn("worker: loki push failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
		cancel()
	}
}
