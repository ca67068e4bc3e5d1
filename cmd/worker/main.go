// Worker consumes queued OTP mail from Kafka and hands each message to the HTTP mail relay.
// Set KAFKA_BROKERS, NOTIFY_KAFKA_TOPIC, KAFKA_GROUP_ID, and MAIL_RELAY_URL. JWT_SECRET is required by config but unused.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"identity-core/backend/internal/config"
	"identity-core/backend/internal/notify/mailrelay"
	"identity-core/backend/internal/platform/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("").Error("config", "error", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Env)

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Error("worker: KAFKA_BROKERS is required")
		os.Exit(1)
	}
	if cfg.MailRelayURL == "" {
		log.Error("worker: MAIL_RELAY_URL is required")
		os.Exit(1)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          cfg.NotifyKafkaTopic,
		GroupID:        cfg.KafkaGroupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        1 * time.Second,
		CommitInterval: time.Second,
	})
	defer reader.Close()

	relay := mailrelay.NewClient(cfg.MailRelayURL, cfg.ServiceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("worker: consuming", "topic", cfg.NotifyKafkaTopic, "group", cfg.KafkaGroupID, "relay", cfg.MailRelayURL)

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info("worker: stopped")
				return
			}
			log.Warn("worker: kafka read failed", "error", err)
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := relay.Forward(sendCtx, msg.Value); err != nil {
			log.Warn("worker: relay send failed", "error", err, "offset", msg.Offset, "partition", msg.Partition)
		}
		cancel()
	}
}
