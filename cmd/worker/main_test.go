package main

import (
	"encoding/json"
	"estimate-backend/internal/messaging"
	"estimate-backend/pkg/api"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTask struct {
	payload  []byte
	acked    bool
	rejected bool
}

func (t *fakeTask) Type() string    { return messaging.EstimateEventsQueue }
func (t *fakeTask) Payload() []byte { return t.payload }
func (t *fakeTask) Ack() error      { t.acked = true; return nil }
func (t *fakeTask) Nack() error     { return nil }
func (t *fakeTask) Reject() error   { t.rejected = true; return nil }

func TestHandleTaskAcksEvents(t *testing.T) {
	hours, price := 1.5, 7.5
	for _, event := range []api.EstimateEvent{
		{EventId: uuid.New(), Type: "estimate.completed", JobId: uuid.New(), OriginalName: "cube.stl", Status: "DONE", PrintTimeHours: &hours, PriceAmount: &price},
		{EventId: uuid.New(), Type: "estimate.failed", JobId: uuid.New(), OriginalName: "broken.stl", Status: "FAILED", Reason: "SLICER_CRASHED"},
	} {
		payload, err := json.Marshal(event)
		require.NoError(t, err)

		task := &fakeTask{payload: payload}
		handleTask(task)
		assert.True(t, task.acked, event.Type)
		assert.False(t, task.rejected, event.Type)
	}
}

func TestHandleTaskRejectsMalformedPayload(t *testing.T) {
	task := &fakeTask{payload: []byte("not json")}
	handleTask(task)
	assert.True(t, task.rejected)
	assert.False(t, task.acked)
}
