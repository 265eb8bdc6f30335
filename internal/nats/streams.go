package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// HeartbeatTTL is how long a worker or agent stays listed without a new
// heartbeat.
const HeartbeatTTL = 5 * time.Minute

// SetupJetStream creates the job stream and KV buckets.
func SetupJetStream(ctx context.Context, js jetstream.JetStream) error {
	// Workers consume run ids from per-queue subjects of one stream.
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{QueueAllSubject()},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    24 * time.Hour,
		Discard:   jetstream.DiscardOld,
	})
	if err != nil {
		return fmt.Errorf("creating stream %s: %w", StreamName, err)
	}

	buckets := []struct {
		name string
		ttl  time.Duration
	}{
		{BucketRuns, 0},
		{BucketScheduled, 0},
		{BucketWorkers, HeartbeatTTL},
		{BucketAgents, HeartbeatTTL},
	}

	for _, b := range buckets {
		cfg := jetstream.KeyValueConfig{
			Bucket:  b.name,
			Storage: jetstream.FileStorage,
		}
		if b.ttl > 0 {
			cfg.TTL = b.ttl
		}
		if _, err := js.CreateOrUpdateKeyValue(ctx, cfg); err != nil {
			return fmt.Errorf("creating KV bucket %s: %w", b.name, err)
		}
	}

	return nil
}
