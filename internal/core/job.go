package core

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobDefinition describes an HTTP callback and its follow-up callbacks.
// Success runs after the callback succeeds, Fail after it fails; both are
// full definitions themselves, so a definition is the root of a tree.
//
// JSON names follow the dashboard's PascalCase wire format.
type JobDefinition struct {
	Url                    string            `json:"Url"`
	Method                 string            `json:"Method,omitempty"`
	ContentType            string            `json:"ContentType"`
	JobName                string            `json:"JobName"`
	Cron                   string            `json:"Cron,omitempty"`
	QueueName              string            `json:"QueueName,omitempty"`
	TimeZone               string            `json:"TimeZone,omitempty"`
	DelayFromMinutes       int               `json:"DelayFromMinutes,omitempty"`
	RunAt                  string            `json:"RunAt,omitempty"`
	Data                   string            `json:"Data,omitempty"`
	AgentClass             string            `json:"AgentClass,omitempty"`
	RecurringJobIdentifier string            `json:"RecurringJobIdentifier,omitempty"`
	Timeout                int               `json:"Timeout,omitempty"`
	BasicUserName          string            `json:"BasicUserName,omitempty"`
	BasicPassword          string            `json:"BasicPassword,omitempty"`
	Headers                map[string]string `json:"Headers,omitempty"`
	Mail                   []string          `json:"Mail,omitempty"`
	SendSuccess            bool              `json:"SendSuccess,omitempty"`
	SendFail               bool              `json:"SendFail,omitempty"`
	EnableRetry            bool              `json:"EnableRetry,omitempty"`
	RetryTimes             int               `json:"RetryTimes,omitempty"`
	RetryDelaysInSeconds   string            `json:"RetryDelaysInSeconds,omitempty"`

	Success *JobDefinition `json:"Success,omitempty"`
	Fail    *JobDefinition `json:"Fail,omitempty"`
}

// Identifier returns the key a recurring job is stored under.
func (d *JobDefinition) Identifier() string {
	if d.RecurringJobIdentifier != "" {
		return d.RecurringJobIdentifier
	}
	return d.JobName
}

// JobRun is one dispatched execution of a definition, as tracked by the
// scheduler engine.
type JobRun struct {
	ID             string         `json:"id"`
	Queue          string         `json:"queue"`
	State          string         `json:"state"`
	Definition     *JobDefinition `json:"definition"`
	RecurringJobID string         `json:"recurring_job_id,omitempty"`
	CreatedAt      string         `json:"created_at"`
	ScheduledAt    string         `json:"scheduled_at,omitempty"`
	EnqueuedAt     string         `json:"enqueued_at,omitempty"`
	DeletedAt      string         `json:"deleted_at,omitempty"`
}

// Job run states.
const (
	StateScheduled = "scheduled"
	StateEnqueued  = "enqueued"
	StateDeleted   = "deleted"
)

// TimeFormat is the timestamp layout used in stored records.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in UTC using TimeFormat.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// NewJobID returns a time-ordered job run id.
func NewJobID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Invocation is the serialized call a recurring record carries. Args holds
// JSON documents; the first one is the JobDefinition.
type Invocation struct {
	Type   string   `json:"Type"`
	Method string   `json:"Method"`
	Args   []string `json:"Arguments"`
}

const (
	invocationType   = "HttpJob"
	invocationMethod = "Execute"
)

// EncodeInvocation serializes def into the payload stored in a recurring record.
func EncodeInvocation(def *JobDefinition) (string, error) {
	arg, err := json.Marshal(def)
	if err != nil {
		return "", fmt.Errorf("marshal job definition: %w", err)
	}
	payload, err := json.Marshal(Invocation{
		Type:   invocationType,
		Method: invocationMethod,
		Args:   []string{string(arg)},
	})
	if err != nil {
		return "", fmt.Errorf("marshal invocation: %w", err)
	}
	return string(payload), nil
}

// DecodeInvocation returns the JobDefinition held by a serialized invocation.
func DecodeInvocation(payload string) (*JobDefinition, error) {
	var inv Invocation
	if err := json.Unmarshal([]byte(payload), &inv); err != nil {
		return nil, fmt.Errorf("unmarshal invocation: %w", err)
	}
	if len(inv.Args) == 0 {
		return nil, fmt.Errorf("invocation %s.%s has no arguments", inv.Type, inv.Method)
	}
	var def JobDefinition
	if err := json.Unmarshal([]byte(inv.Args[0]), &def); err != nil {
		return nil, fmt.Errorf("unmarshal job definition: %w", err)
	}
	return &def, nil
}
