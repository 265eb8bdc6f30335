package nats

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// PublishJob publishes a run id to its queue subject via JetStream.
func PublishJob(ctx context.Context, js jetstream.JetStream, queue, runID string) error {
	subject := QueueJobsSubject(queue)
	_, err := js.Publish(ctx, subject, []byte(runID), jetstream.WithMsgID(runID))
	if err != nil {
		return fmt.Errorf("publish job %s to %s: %w", runID, subject, err)
	}
	return nil
}
