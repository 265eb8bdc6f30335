// Package api serves the management operations behind a single POST
// endpoint selected by the op query parameter.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openjobspec/ojs-httpjob/internal/control"
	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// Operations is the control plane the dispatcher drives.
type Operations interface {
	GetRecurringJob(ctx context.Context, name string) (*core.JobDefinition, error)
	JobDetail(ctx context.Context, name, cron string) control.JobDetailInfo
	DeleteJob(ctx context.Context, name string, background bool) error
	PauseJob(ctx context.Context, name string) error
	AddBackgroundJob(ctx context.Context, def *core.JobDefinition) (string, error)
	AddRecurringJob(ctx context.Context, def *core.JobDefinition) error
	EditRecurringJob(ctx context.Context, def *core.JobDefinition) error
	StartBackgroundJob(ctx context.Context, def *core.JobDefinition) error
	StopBackgroundJob(ctx context.Context, name string) error
	ExportJobs(ctx context.Context) ([]*core.JobDefinition, error)
	ImportJobs(ctx context.Context, raw string) ([]*core.JobDefinition, error)
	RecurringJobsPage(ctx context.Context, req control.PageRequest) (*control.PageResult, error)
	PausedJobCron(ctx context.Context, name string) (string, error)
	Agents(ctx context.Context) ([]core.AgentServer, error)
}

// Settings is the global setting document.
type Settings interface {
	Get() (string, error)
	Save(raw string) error
}

// OperationObserver records each dispatched operation.
type OperationObserver interface {
	ObserveOperation(op string, status int, d time.Duration)
}

type opHandler func(w http.ResponseWriter, r *http.Request)

// Dispatcher is the management endpoint.
type Dispatcher struct {
	ops      Operations
	settings Settings
	observer OperationObserver
	logger   *slog.Logger
	table    map[string]opHandler
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// WithObserver records operation counts and durations.
func WithObserver(o OperationObserver) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// NewDispatcher creates the management endpoint.
func NewDispatcher(ops Operations, settings Settings, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		ops:      ops,
		settings: settings,
		logger:   slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}
	d.table = map[string]opHandler{
		"getrecurringjob":        d.getRecurringJob,
		"getbackgroundjobdetail": d.getBackgroundJobDetail,
		"deljob":                 d.delJob,
		"pausejob":               d.pauseJob,
		"backgroundjob":          d.addBackgroundJob,
		"addrecurringjob":        d.addRecurringJob,
		"recurringjob":           d.editRecurringJob,
		"editrecurringjob":       d.editRecurringJob,
		"startbackgroundjob":     d.startBackgroundJob,
		"stopbackgroundjob":      d.stopBackgroundJob,
		"getglobalsetting":       d.getGlobalSetting,
		"saveglobalsetting":      d.saveGlobalSetting,
		"getagentserver":         d.getAgentServer,
		"exportjobs":             d.exportJobs,
		"importjobs":             d.importJobs,
		"getrecurringjobs":       d.getRecurringJobs,
		"getpasusejobcron":       d.getPauseJobCron,
	}
	return d
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	op := strings.ToLower(r.URL.Query().Get("op"))
	if op == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	handler, ok := d.table[op]
	if !ok {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("operation panicked", "op", op, "panic", rec)
			if !sw.wroteHeader {
				WriteText(sw, http.StatusInternalServerError, "internal server error")
			}
		}
		if d.observer != nil {
			d.observer.ObserveOperation(op, sw.status, time.Since(start))
		}
	}()
	handler(sw, r)
}

// readJob decodes and requires a job definition body.
func (d *Dispatcher) readJob(w http.ResponseWriter, r *http.Request) (*core.JobDefinition, bool) {
	def, msg := ReadBody[*core.JobDefinition](HTTPRequest{r})
	if def == nil {
		WriteText(w, http.StatusBadRequest, "get job data fail:"+msg)
		return nil, false
	}
	return def, true
}

// readNamed decodes a body that must carry JobName.
func (d *Dispatcher) readNamed(w http.ResponseWriter, r *http.Request) (*core.JobDefinition, bool) {
	def, msg := ReadBody[*core.JobDefinition](HTTPRequest{r})
	if def == nil || def.JobName == "" {
		WriteText(w, http.StatusBadRequest, "invalid request body:"+msg)
		return nil, false
	}
	return def, true
}

func (d *Dispatcher) getRecurringJob(w http.ResponseWriter, r *http.Request) {
	req, ok := d.readNamed(w, r)
	if !ok {
		return
	}
	def, err := d.ops.GetRecurringJob(r.Context(), req.JobName)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, def)
}

func (d *Dispatcher) getBackgroundJobDetail(w http.ResponseWriter, r *http.Request) {
	req, msg := ReadBody[*core.JobDefinition](HTTPRequest{r})
	if req == nil || req.JobName == "" {
		WriteJSON(w, http.StatusOK, control.JobDetailInfo{Info: "GetJobDetail Error: can not found job by id:" + msg})
		return
	}
	WriteJSON(w, http.StatusOK, d.ops.JobDetail(r.Context(), req.JobName, req.Cron))
}

func (d *Dispatcher) delJob(w http.ResponseWriter, r *http.Request) {
	req, ok := d.readNamed(w, r)
	if !ok {
		return
	}
	if err := d.ops.DeleteJob(r.Context(), req.JobName, req.Data == "backgroundjob"); err != nil {
		WriteError(w, err)
		return
	}
	NoContent(w)
}

func (d *Dispatcher) pauseJob(w http.ResponseWriter, r *http.Request) {
	req, ok := d.readNamed(w, r)
	if !ok {
		return
	}
	if err := d.ops.PauseJob(r.Context(), req.JobName); err != nil {
		WriteError(w, err)
		return
	}
	NoContent(w)
}

func (d *Dispatcher) addBackgroundJob(w http.ResponseWriter, r *http.Request) {
	def, ok := d.readJob(w, r)
	if !ok {
		return
	}
	id, err := d.ops.AddBackgroundJob(r.Context(), def)
	if err != nil {
		WriteError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(id))
}

func (d *Dispatcher) addRecurringJob(w http.ResponseWriter, r *http.Request) {
	def, ok := d.readJob(w, r)
	if !ok {
		return
	}
	if err := d.ops.AddRecurringJob(r.Context(), def); err != nil {
		WriteError(w, err)
		return
	}
	NoContent(w)
}

func (d *Dispatcher) editRecurringJob(w http.ResponseWriter, r *http.Request) {
	def, ok := d.readJob(w, r)
	if !ok {
		return
	}
	if err := d.ops.EditRecurringJob(r.Context(), def); err != nil {
		WriteError(w, err)
		return
	}
	NoContent(w)
}

func (d *Dispatcher) startBackgroundJob(w http.ResponseWriter, r *http.Request) {
	req, ok := d.readNamed(w, r)
	if !ok {
		return
	}
	if err := d.ops.StartBackgroundJob(r.Context(), req); err != nil {
		WriteError(w, err)
		return
	}
	NoContent(w)
}

func (d *Dispatcher) stopBackgroundJob(w http.ResponseWriter, r *http.Request) {
	req, ok := d.readNamed(w, r)
	if !ok {
		return
	}
	if err := d.ops.StopBackgroundJob(r.Context(), req.JobName); err != nil {
		WriteError(w, err)
		return
	}
	NoContent(w)
}

func (d *Dispatcher) getGlobalSetting(w http.ResponseWriter, _ *http.Request) {
	content, err := d.settings.Get()
	if err != nil {
		d.logger.Error("read global setting failed", "error", err)
		WriteText(w, http.StatusInternalServerError, "err:"+err.Error())
		return
	}
	WriteText(w, http.StatusOK, content)
}

func (d *Dispatcher) saveGlobalSetting(w http.ResponseWriter, r *http.Request) {
	raw, msg := ReadBody[string](HTTPRequest{r})
	if raw == "" {
		WriteText(w, http.StatusBadRequest, "err: json invalid:"+msg)
		return
	}
	if err := d.settings.Save(raw); err != nil {
		status := core.HTTPStatus(err)
		WriteText(w, status, "err:"+core.Message(err))
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (d *Dispatcher) getAgentServer(w http.ResponseWriter, r *http.Request) {
	agents, err := d.ops.Agents(r.Context())
	if err != nil {
		WriteText(w, http.StatusOK, "err:"+core.Message(err))
		return
	}
	html, err := renderAgentList(agents, time.Now())
	if err != nil {
		WriteText(w, http.StatusOK, "err:"+err.Error())
		return
	}
	w.Header().Set("Content-Type", contentTypeHTML)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(html))
}

func (d *Dispatcher) exportJobs(w http.ResponseWriter, r *http.Request) {
	defs, err := d.ops.ExportJobs(r.Context())
	if err != nil {
		WriteText(w, http.StatusOK, "err:"+core.Message(err))
		return
	}
	WriteJSON(w, http.StatusOK, defs)
}

func (d *Dispatcher) importJobs(w http.ResponseWriter, r *http.Request) {
	raw, msg := ReadBody[string](HTTPRequest{r})
	if raw == "" {
		WriteText(w, http.StatusOK, "err: json invalid:"+msg)
		return
	}
	defs, err := d.ops.ImportJobs(r.Context(), raw)
	if err != nil {
		WriteText(w, http.StatusOK, "err:"+core.Message(err))
		return
	}
	WriteJSON(w, http.StatusOK, defs)
}

func (d *Dispatcher) getRecurringJobs(w http.ResponseWriter, r *http.Request) {
	req, msg := ReadBody[control.PageRequest](HTTPRequest{r})
	if msg != "" {
		WriteText(w, http.StatusOK, "err:"+msg)
		return
	}
	page, err := d.ops.RecurringJobsPage(r.Context(), req)
	if err != nil {
		WriteText(w, http.StatusOK, "err:"+core.Message(err))
		return
	}
	WriteJSON(w, http.StatusOK, page)
}

func (d *Dispatcher) getPauseJobCron(w http.ResponseWriter, r *http.Request) {
	req, ok := d.readNamed(w, r)
	if !ok {
		return
	}
	cron, err := d.ops.PausedJobCron(r.Context(), req.JobName)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteText(w, http.StatusOK, cron)
}
