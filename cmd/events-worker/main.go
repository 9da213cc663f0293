package main

import (
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/zedsoft/identity-store/config"
	"github.com/zedsoft/identity-store/internal/events"
	"github.com/zedsoft/identity-store/pkg/helpers"
)

// Consumes identity change events and logs them. Downstream projections hang
// off this loop.
func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	logger := helpers.NewLogger(cfg.AppName, cfg.Env)

	if cfg.RabbitMQURL == "" || cfg.RabbitMQEventsQueue == "" {
		log.Fatal("RabbitMQ not configured")
	}

	conn, err := amqp.Dial(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("amqp dial: %v", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("amqp channel: %v", err)
	}
	defer func() { _ = ch.Close() }()

	// Prefetch for fair dispatch
	if err := ch.Qos(16, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	if _, err := ch.QueueDeclare(cfg.RabbitMQEventsQueue, true, false, false, false, nil); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitMQEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		for msg := range msgs {
			var e events.Event
			if err := json.Unmarshal(msg.Body, &e); err != nil {
				logger.WithError(err).Warn("bad message")
				_ = msg.Nack(false, false)
				continue
			}
			logger.WithFields(logrus.Fields{
				"type":      e.Type,
				"entity_id": e.EntityID,
				"name":      e.Name,
				"at":        e.At,
			}).Info("identity event")
			_ = msg.Ack(false)
		}
		close(done)
	}()

	logger.WithField("queue", cfg.RabbitMQEventsQueue).Info("events worker started")

	select {
	case <-stop:
		logger.Info("shutting down")
	case <-done:
		logger.Info("channel closed")
	}
}
