package messaging_test

import (
	"context"
	"estimate-backend/internal/messaging"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueuePublishAndReceive(t *testing.T) {
	queue := messaging.NewInMemoryQueue()
	defer queue.Close()

	require.NoError(t, queue.PublishEstimateEvent(context.Background(), []byte(`{"Type":"estimate.completed"}`)))

	select {
	case task := <-queue.Tasks():
		assert.Equal(t, messaging.EstimateEventsQueue, task.Type())
		assert.JSONEq(t, `{"Type":"estimate.completed"}`, string(task.Payload()))
		assert.NoError(t, task.Ack())
	case <-time.After(time.Second):
		t.Fatal("no task received")
	}
}

func TestInMemoryQueueClose(t *testing.T) {
	queue := messaging.NewInMemoryQueue()
	queue.Close()
	queue.Close()

	err := queue.PublishEstimateEvent(context.Background(), []byte("{}"))
	assert.ErrorIs(t, err, messaging.ErrQueueClosed)

	_, ok := <-queue.Tasks()
	assert.False(t, ok)
}

func TestInMemoryQueuePublishHonorsContext(t *testing.T) {
	queue := messaging.NewInMemoryQueue()
	defer queue.Close()

	for i := 0; i < 100; i++ {
		require.NoError(t, queue.PublishEstimateEvent(context.Background(), []byte("{}")))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, queue.PublishEstimateEvent(ctx, []byte("{}")), context.DeadlineExceeded)
}
