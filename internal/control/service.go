package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// Filter decides whether a submitted definition may be added. Returning
// false rejects the request.
type Filter func(def *core.JobDefinition) bool

// Options configures a Service.
type Options struct {
	// DefaultRecurringQueue applies to addrecurringjob when QueueName is empty.
	DefaultRecurringQueue string
	// Location is the time zone of definitions that name none.
	Location *time.Location
	Filter   Filter
	Logger   *slog.Logger
	Recorder Recorder
	Now      func() time.Time
}

// Service implements every management operation on top of a store and a
// scheduler.
type Service struct {
	store     core.Store
	scheduler core.Scheduler
	inspector core.AgentInspector
	agents    core.AgentRegistry

	registrar *Registrar
	pause     *PauseMachine
	signals   *SignalChannel

	opts Options
}

// NewService wires a Service. inspector and agents may be nil when agent
// jobs are not in use.
func NewService(store core.Store, scheduler core.Scheduler, inspector core.AgentInspector, agents core.AgentRegistry, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	registrar := NewRegistrar(store, scheduler, opts.Location, opts.Logger)
	return &Service{
		store:     store,
		scheduler: scheduler,
		inspector: inspector,
		agents:    agents,
		registrar: registrar,
		pause:     NewPauseMachine(store, registrar, opts.Recorder),
		signals:   NewSignalChannel(store, opts.Recorder),
		opts:      opts,
	}
}

// Registrar returns the registrar used by the service.
func (s *Service) Registrar() *Registrar { return s.registrar }

// PauseMachine returns the pause state machine used by the service.
func (s *Service) PauseMachine() *PauseMachine { return s.pause }

// Signals returns the runtime signal channel used by the service.
func (s *Service) Signals() *SignalChannel { return s.signals }

func (s *Service) admit(def *core.JobDefinition) (*core.JobDefinition, error) {
	def, err := core.ValidateJobGraph(def)
	if err != nil {
		return nil, err
	}
	if s.opts.Filter != nil && !s.opts.Filter(def) {
		return nil, core.NewValidationError("HttpJobFilter return false", nil)
	}
	return def, nil
}

// GetRecurringJob returns the stored definition of a recurring job. Its
// RecurringJobIdentifier is filled from JobName when absent.
func (s *Service) GetRecurringJob(ctx context.Context, name string) (*core.JobDefinition, error) {
	rec, err := core.LoadRecurringJob(ctx, s.store, name)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, &core.Error{Code: core.ErrCodeNotFound, Message: fmt.Sprintf("jobName:%s not found", name)}
	}
	def := rec.Definition
	if def.RecurringJobIdentifier == "" {
		def.RecurringJobIdentifier = def.JobName
	}
	return def, nil
}

// JobDetailInfo is the answer of getbackgroundjobdetail.
type JobDetailInfo struct {
	JobName string `json:"JobName"`
	Info    string `json:"Info"`
}

// JobDetail asks the agent behind a job for its live detail. Every failure
// is reported through Info; it never returns an error. A non-empty cron
// selects the recurring record named name, otherwise name is a job run id.
func (s *Service) JobDetail(ctx context.Context, name, cron string) JobDetailInfo {
	var def *core.JobDefinition
	var err error
	if cron == "" {
		def, err = s.scheduler.JobDefinition(ctx, name)
	} else {
		var rec *core.RecurringJob
		rec, err = core.LoadRecurringJob(ctx, s.store, name)
		if rec != nil {
			def = rec.Definition
		}
	}
	if err != nil {
		s.opts.Logger.Error("job detail lookup failed", "job", name, "error", err)
		return JobDetailInfo{Info: "GetJobDetail Error: " + core.Message(err)}
	}
	if def == nil {
		return JobDetailInfo{Info: "GetJobDetail Error: can not found job by id:" + name}
	}

	result := JobDetailInfo{JobName: def.JobName}
	prefix := ""
	if def.JobName != "" {
		prefix = "[" + def.JobName + "] "
	}
	if def.AgentClass == "" {
		result.Info = prefix + "Error: is not AgentJob!"
		return result
	}
	if s.inspector == nil {
		result.Info = prefix + "GetJobDetail Error: no agent inspector configured"
		return result
	}

	info, err := s.inspector.AgentJobDetail(ctx, def)
	if err != nil {
		s.opts.Logger.Error("agent job detail failed", "job", def.JobName, "agent", def.AgentClass, "error", err)
		result.Info = prefix + "GetJobDetail Error: " + core.Message(err)
		return result
	}
	if info == "" {
		result.Info = prefix + "Error: get null info!"
		return result
	}
	result.Info = strings.ReplaceAll(info, "\r\n", "<br/>")
	return result
}

// DeleteJob removes a recurring job and its pause record. With
// background set, name is a job run id and the run is deleted instead.
func (s *Service) DeleteJob(ctx context.Context, name string, background bool) error {
	if background {
		ok, err := s.scheduler.DeleteJob(ctx, name)
		if err != nil {
			return err
		}
		if !ok {
			return core.NewInternalError(fmt.Sprintf("remove:%s fail", name))
		}
		return nil
	}
	if err := s.scheduler.RemoveRecurring(ctx, name); err != nil {
		return err
	}
	return s.pause.Clear(ctx, name)
}

// PauseJob toggles the pause state of a recurring job.
func (s *Service) PauseJob(ctx context.Context, name string) error {
	return s.pause.PauseOrResume(ctx, name)
}

// RunAtLayouts are the accepted RunAt formats, tried in order.
var RunAtLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

func parseRunAt(value string, loc *time.Location) (time.Time, bool) {
	for _, layout := range RunAtLayouts {
		if t, err := time.ParseInLocation(layout, value, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// AddBackgroundJob validates def and hands it to the scheduler as a
// one-shot job. RunAt wins over DelayFromMinutes when it parses.
func (s *Service) AddBackgroundJob(ctx context.Context, def *core.JobDefinition) (string, error) {
	def, err := s.admit(def)
	if err != nil {
		return "", err
	}
	if def.DelayFromMinutes < -1 {
		return "", core.NewValidationError("DelayFromMinutes invalid", map[string]any{"delay": def.DelayFromMinutes})
	}
	if err := s.registrar.ResolveQueue(ctx, def); err != nil {
		return "", err
	}

	var id string
	if at, ok := s.runAt(def); ok {
		id, err = s.scheduler.Schedule(ctx, def, def.QueueName, at)
	} else if def.DelayFromMinutes <= 0 {
		id, err = s.scheduler.Enqueue(ctx, def, def.QueueName)
	} else {
		at := s.opts.Now().Add(time.Duration(def.DelayFromMinutes) * time.Minute)
		id, err = s.scheduler.Schedule(ctx, def, def.QueueName, at)
	}
	if err != nil {
		s.opts.Logger.Error("add background job failed", "job", def.JobName, "error", err)
		return "", err
	}
	if id == "" {
		return "", core.NewInternalError("add fail")
	}
	return id, nil
}

func (s *Service) runAt(def *core.JobDefinition) (time.Time, bool) {
	if def.RunAt == "" {
		return time.Time{}, false
	}
	loc := s.opts.Location
	if loc == nil {
		loc = time.Local
	}
	at, ok := parseRunAt(def.RunAt, loc)
	if !ok {
		s.opts.Logger.Warn("RunAt not parseable, using delay", "job", def.JobName, "run_at", def.RunAt)
	}
	return at, ok
}

// AddRecurringJob registers def only when its identifier is unused.
func (s *Service) AddRecurringJob(ctx context.Context, def *core.JobDefinition) error {
	def, err := s.admit(def)
	if err != nil {
		return err
	}
	if def.QueueName == "" {
		def.QueueName = s.opts.DefaultRecurringQueue
	}
	return s.registrar.Register(ctx, def, true)
}

// EditRecurringJob creates or replaces a recurring job. A paused job stays
// paused: it is registered with the never-firing cron and the submitted
// cron becomes the one restored on resume.
func (s *Service) EditRecurringJob(ctx context.Context, def *core.JobDefinition) error {
	def, err := s.admit(def)
	if err != nil {
		return err
	}
	id := def.Identifier()
	paused, err := s.pause.IsPaused(ctx, id)
	if err != nil {
		return err
	}

	lastCron := def.Cron
	if paused {
		def.Cron = core.CronNever
	}
	if err := s.registrar.Register(ctx, def, false); err != nil {
		return err
	}
	if paused {
		def.Cron = lastCron
		return s.pause.PauseWithDefinition(ctx, id, def)
	}
	return nil
}

// StartBackgroundJob hands def.Data to the running job. Empty data is a
// no-op.
func (s *Service) StartBackgroundJob(ctx context.Context, def *core.JobDefinition) error {
	if def.Data == "" {
		return nil
	}
	return s.signals.SendData(ctx, def.Identifier(), def.Data)
}

// StopBackgroundJob asks the running job name to stop.
func (s *Service) StopBackgroundJob(ctx context.Context, name string) error {
	return s.signals.SendStop(ctx, name)
}

// ExportJobs returns the definitions of every recurring job in index order.
func (s *Service) ExportJobs(ctx context.Context) ([]*core.JobDefinition, error) {
	return s.recurringRange(ctx, 0, -1)
}

// ImportJobs decodes a JSON array of definitions and registers each one,
// replacing existing records. Every entry is attempted; failures are joined.
func (s *Service) ImportJobs(ctx context.Context, raw string) ([]*core.JobDefinition, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, core.NewValidationError("json invalid: empty body", nil)
	}
	var defs []*core.JobDefinition
	if err := json.Unmarshal([]byte(raw), &defs); err != nil {
		return nil, core.NewValidationError("json invalid: "+err.Error(), nil)
	}

	var errs []error
	for _, def := range defs {
		if def == nil {
			continue
		}
		if err := s.registrar.Register(ctx, def, false); err != nil {
			s.opts.Logger.Warn("import job failed", "job", def.Identifier(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %s", def.Identifier(), core.Message(err)))
		}
	}
	return defs, errors.Join(errs...)
}

// PageRequest selects one page of recurring jobs.
type PageRequest struct {
	PageNo   int `json:"PageNo"`
	PageSize int `json:"PageSize"`
}

// PageResult is one page of recurring job definitions.
type PageResult struct {
	PageNo    int                   `json:"pageNo"`
	PageSize  int                   `json:"pageSize"`
	Rows      []*core.JobDefinition `json:"rows"`
	TotalPage int                   `json:"totalPage"`
	TotalRows int64                 `json:"totalRows"`
}

// Page size bounds. DefaultPageSize applies when a request has no usable
// size; larger requests are cut to MaxPageSize.
const (
	DefaultPageSize = 10
	MaxPageSize     = 1000
)

// RecurringJobsPage returns one page of recurring jobs in index order.
func (s *Service) RecurringJobsPage(ctx context.Context, req PageRequest) (*PageResult, error) {
	if req.PageNo < 1 {
		req.PageNo = 1
	}
	if req.PageSize < 1 {
		req.PageSize = DefaultPageSize
	}
	if req.PageSize > MaxPageSize {
		req.PageSize = MaxPageSize
	}

	total, err := s.store.GetSortedSetCount(ctx, core.RecurringJobsKey)
	if err != nil {
		return nil, core.NewStorageError("count recurring jobs", err)
	}
	result := &PageResult{
		PageNo:    req.PageNo,
		PageSize:  req.PageSize,
		Rows:      []*core.JobDefinition{},
		TotalPage: int(math.Ceil(float64(total) / float64(req.PageSize))),
		TotalRows: total,
	}

	// Pages past the end are empty; checked before multiplying so a huge
	// PageNo cannot wrap into a negative (tail-relative) range.
	size := int64(req.PageSize)
	if int64(req.PageNo-1) >= (total+size-1)/size {
		return result, nil
	}
	from := int64(req.PageNo-1) * size
	rows, err := s.recurringRange(ctx, from, from+size-1)
	if err != nil {
		return nil, err
	}
	result.Rows = rows
	return result, nil
}

func (s *Service) recurringRange(ctx context.Context, start, stop int64) ([]*core.JobDefinition, error) {
	ids, err := s.store.GetRangeFromSortedSet(ctx, core.RecurringJobsKey, start, stop)
	if err != nil {
		return nil, core.NewStorageError("read recurring jobs", err)
	}
	defs := make([]*core.JobDefinition, 0, len(ids))
	for _, id := range ids {
		rec, err := core.LoadRecurringJob(ctx, s.store, id)
		if err != nil {
			var cerr *core.Error
			if errors.As(err, &cerr) && cerr.Code == core.ErrCodeStorage {
				return nil, err
			}
			s.opts.Logger.Warn("skipping undecodable recurring job", "id", id, "error", err)
			continue
		}
		if rec == nil {
			continue
		}
		defs = append(defs, rec.Definition)
	}
	return defs, nil
}

// PausedJobCron returns the cron saved when name was paused, or the
// never-firing cron.
func (s *Service) PausedJobCron(ctx context.Context, name string) (string, error) {
	return s.pause.SavedCron(ctx, name)
}

// Agents lists live agent hosts.
func (s *Service) Agents(ctx context.Context) ([]core.AgentServer, error) {
	if s.agents == nil {
		return nil, nil
	}
	return s.agents.Agents(ctx)
}
