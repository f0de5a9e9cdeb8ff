package tasks

import (
	"context"
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/notewire/integrations/models"
	"github.com/notewire/integrations/redis"
)

// Enqueuer pushes note events onto the durable queue. It satisfies the
// dispatcher's Enqueuer contract.
type Enqueuer struct {
	client *redis.Client
}

func NewEnqueuer(client *redis.Client) *Enqueuer {
	return &Enqueuer{client: client}
}

func (e *Enqueuer) EnqueueNoteEvent(ctx context.Context, ev models.NoteEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	return e.client.Enqueue(ctx, TypeNoteEvent, payload, asynq.Queue("default"), asynq.MaxRetry(3))
}
