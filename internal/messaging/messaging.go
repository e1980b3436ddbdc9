package messaging

import (
	"context"
	"time"
)

const (
	EstimateEventsQueue = "estimate_events"
	RetryDelay          = 5 * time.Second
	MaxConnectRetry     = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// Publisher forwards serialized estimate events to downstream consumers.
type Publisher interface {
	PublishEstimateEvent(ctx context.Context, payload []byte) error

	Close()
}

type Receiver interface {
	Tasks() <-chan Task

	Close()
}
