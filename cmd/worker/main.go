package main

import (
	"encoding/json"
	"estimate-backend/cmd"
	"estimate-backend/internal/messaging"
	"estimate-backend/pkg/api"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/caarlos0/env/v11"
)

type WorkerConfig struct {
	RabbitMQURL string `env:"RABBITMQ_URL,notEmpty,required"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
}

// The worker is the reference consumer of the estimate_events queue: it
// validates each event and records it in the log for bookkeeping.
func handleTask(task messaging.Task) {
	var event api.EstimateEvent
	if err := json.Unmarshal(task.Payload(), &event); err != nil {
		slog.Error("rejecting malformed estimate event", "error", err)
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting estimate event", "error", err)
		}
		return
	}

	attrs := []any{"event_id", event.EventId, "type", event.Type, "job_id", event.JobId, "name", event.OriginalName}
	if event.PriceAmount != nil {
		attrs = append(attrs, "hours", *event.PrintTimeHours, "price", *event.PriceAmount)
	} else {
		attrs = append(attrs, "reason", event.Reason)
	}
	slog.Info("estimate event received", attrs...)

	if err := task.Ack(); err != nil {
		slog.Error("error acknowledging estimate event", "event_id", event.EventId, "error", err)
	}
}

func main() {
	log.Println("Starting Estimate Event Worker...")

	cmd.LoadEnvFile()

	var cfg WorkerConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("error parsing config: %v", err)
	}

	cmd.ConfigureLogging(cfg.LogLevel)

	receiver, err := messaging.NewRabbitMQReceiver(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("Failed to connect to RabbitMQ: %v", err)
	}

	go func() {
		for task := range receiver.Tasks() {
			handleTask(task)
		}
	}()

	log.Println("Worker started. Waiting for events. Press Ctrl+C to exit.")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	receiver.Close()
	log.Println("Worker process stopped.")
}
