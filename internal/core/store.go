package core

import (
	"context"
	"fmt"
	"time"
)

// Store keys shared with the executor side. These names are a wire contract.
const (
	RecurringJobsKey = "recurring-jobs"
)

// RecurringJobKey returns the hash key of a recurring job record.
func RecurringJobKey(id string) string { return "recurring-job:" + id }

// PauseKey returns the set key of a job's pause record.
func PauseKey(id string) string { return "JobPauseOf:" + id }

// RuntimeKey returns the hash key of a job's runtime signal channel.
func RuntimeKey(id string) string { return id + ".runtime" }

// Recurring record hash fields.
const (
	FieldJob           = "Job"
	FieldCron          = "Cron"
	FieldQueue         = "Queue"
	FieldTimeZone      = "TimeZone"
	FieldCreatedAt     = "CreatedAt"
	FieldNextExecution = "NextExecution"
	FieldLastExecution = "LastExecution"
)

// Runtime signal hash fields and the stop action value.
const (
	FieldData   = "Data"
	FieldAction = "Action"
	ActionStop  = "stop"
)

// NeverScore is the index score of recurring jobs that never fire.
const NeverScore = -1

// Store is a transactional key-value store with hash, set and sorted-set
// primitives. Reads of missing keys return empty results, not errors.
type Store interface {
	GetAllEntriesFromHash(ctx context.Context, key string) (map[string]string, error)
	GetAllItemsFromSet(ctx context.Context, key string) ([]string, error)
	GetSortedSetCount(ctx context.Context, key string) (int64, error)
	// GetRangeFromSortedSet returns members by rank, both bounds inclusive.
	GetRangeFromSortedSet(ctx context.Context, key string, start, stop int64) ([]string, error)
	// GetSortedSetByScore returns members scored within [minScore, maxScore].
	GetSortedSetByScore(ctx context.Context, key string, minScore, maxScore float64) ([]string, error)
	CreateWriteTransaction(ctx context.Context) Transaction
	Ping(ctx context.Context) error
}

// Transaction queues writes and applies them all or none on Commit.
// It gives no isolation for reads made before it was created.
type Transaction interface {
	SetRangeInHash(key string, fields map[string]string)
	RemoveHash(key string)
	AddToSet(key, value string)
	RemoveFromSet(key, value string)
	AddToSortedSet(key, value string, score float64)
	RemoveFromSortedSet(key, value string)
	Commit() error
	Discard()
}

// RecurringJob is the decoded form of a recurring-job hash.
type RecurringJob struct {
	ID            string
	Definition    *JobDefinition
	Cron          string
	Queue         string
	TimeZone      string
	CreatedAt     string
	NextExecution string
	LastExecution string
}

// DecodeRecurringJob builds a RecurringJob from hash fields. It returns
// (nil, nil) when the hash is empty.
func DecodeRecurringJob(id string, fields map[string]string) (*RecurringJob, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	payload, ok := fields[FieldJob]
	if !ok {
		return nil, nil
	}
	def, err := DecodeInvocation(payload)
	if err != nil {
		return nil, fmt.Errorf("fail parse recurring-job:%s: %w", id, err)
	}
	return &RecurringJob{
		ID:            id,
		Definition:    def,
		Cron:          fields[FieldCron],
		Queue:         fields[FieldQueue],
		TimeZone:      fields[FieldTimeZone],
		CreatedAt:     fields[FieldCreatedAt],
		NextExecution: fields[FieldNextExecution],
		LastExecution: fields[FieldLastExecution],
	}, nil
}

// LoadRecurringJob reads and decodes the recurring record stored under id.
func LoadRecurringJob(ctx context.Context, store Store, id string) (*RecurringJob, error) {
	fields, err := store.GetAllEntriesFromHash(ctx, RecurringJobKey(id))
	if err != nil {
		return nil, NewStorageError("read recurring-job:"+id, err)
	}
	return DecodeRecurringJob(id, fields)
}

// RecurringSpec is what the control plane hands the scheduler to create or
// replace a recurring job.
type RecurringSpec struct {
	ID         string
	Definition *JobDefinition
	Cron       string
	Queue      string
	Location   *time.Location
}
