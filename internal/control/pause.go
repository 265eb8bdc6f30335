package control

import (
	"context"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// PauseMachine toggles recurring jobs between paused and running. A paused
// job stays registered with the never-firing cron; its real cron is kept in
// the pause record until it is resumed.
//
// Reading the record, registering and committing are separate steps, so two
// concurrent toggles of one job may interleave. The last commit wins.
type PauseMachine struct {
	store     core.Store
	registrar *Registrar
	recorder  Recorder
}

// NewPauseMachine returns a PauseMachine. recorder may be nil.
func NewPauseMachine(store core.Store, registrar *Registrar, recorder Recorder) *PauseMachine {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &PauseMachine{store: store, registrar: registrar, recorder: recorder}
}

// PauseOrResume flips the pause state of the recurring job id.
func (p *PauseMachine) PauseOrResume(ctx context.Context, id string) error {
	rec, err := core.LoadRecurringJob(ctx, p.store, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return core.NewNotFoundError("recurring-job", id)
	}
	def := rec.Definition

	tokens, err := p.tokens(ctx, id)
	if err != nil {
		return err
	}
	state := core.DecodePauseState(tokens)

	tx := p.store.CreateWriteTransaction(ctx)
	for _, t := range tokens {
		tx.RemoveFromSet(core.PauseKey(id), t)
	}

	var next core.PauseState
	if state.Paused {
		next = core.PauseState{Paused: false}
		if state.SavedCron != "" {
			def.Cron = state.SavedCron
			if err := p.registrar.Register(ctx, def, false); err != nil {
				tx.Discard()
				return err
			}
		}
	} else {
		next = core.PauseState{Paused: true, SavedCron: def.Cron, HasSavedCron: true}
		def.Cron = ""
		if err := p.registrar.Register(ctx, def, false); err != nil {
			tx.Discard()
			return err
		}
	}

	for _, t := range next.Tokens() {
		tx.AddToSet(core.PauseKey(id), t)
	}
	if err := tx.Commit(); err != nil {
		return core.NewStorageError("write JobPauseOf:"+id, err)
	}
	p.recorder.PauseToggled(next.Paused)
	return nil
}

// PauseWithDefinition rewrites the pause record of id as paused with
// def.Cron saved. It does not touch the recurring record.
func (p *PauseMachine) PauseWithDefinition(ctx context.Context, id string, def *core.JobDefinition) error {
	tokens, err := p.tokens(ctx, id)
	if err != nil {
		return err
	}
	tx := p.store.CreateWriteTransaction(ctx)
	for _, t := range tokens {
		tx.RemoveFromSet(core.PauseKey(id), t)
	}
	next := core.PauseState{Paused: true, SavedCron: def.Cron, HasSavedCron: true}
	for _, t := range next.Tokens() {
		tx.AddToSet(core.PauseKey(id), t)
	}
	if err := tx.Commit(); err != nil {
		return core.NewStorageError("write JobPauseOf:"+id, err)
	}
	return nil
}

// SavedCron returns the cron saved when id was paused, or core.CronNever
// when there is none.
func (p *PauseMachine) SavedCron(ctx context.Context, id string) (string, error) {
	tokens, err := p.tokens(ctx, id)
	if err != nil {
		return "", err
	}
	state := core.DecodePauseState(tokens)
	if state.SavedCron == "" {
		return core.CronNever, nil
	}
	return state.SavedCron, nil
}

// IsPaused reports whether the recurring job id exists and its pause
// record is marked paused. A pause record left behind by a removed or
// undecodable job does not count.
func (p *PauseMachine) IsPaused(ctx context.Context, id string) (bool, error) {
	fields, err := p.store.GetAllEntriesFromHash(ctx, core.RecurringJobKey(id))
	if err != nil {
		return false, core.NewStorageError("read recurring-job:"+id, err)
	}
	if rec, err := core.DecodeRecurringJob(id, fields); err != nil || rec == nil {
		return false, nil
	}
	tokens, err := p.tokens(ctx, id)
	if err != nil {
		return false, err
	}
	return core.DecodePauseState(tokens).Paused, nil
}

// Clear removes the pause record of id.
func (p *PauseMachine) Clear(ctx context.Context, id string) error {
	tokens, err := p.tokens(ctx, id)
	if err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	tx := p.store.CreateWriteTransaction(ctx)
	for _, t := range tokens {
		tx.RemoveFromSet(core.PauseKey(id), t)
	}
	if err := tx.Commit(); err != nil {
		return core.NewStorageError("clear JobPauseOf:"+id, err)
	}
	return nil
}

func (p *PauseMachine) tokens(ctx context.Context, id string) ([]string, error) {
	tokens, err := p.store.GetAllItemsFromSet(ctx, core.PauseKey(id))
	if err != nil {
		return nil, core.NewStorageError("read JobPauseOf:"+id, err)
	}
	return tokens, nil
}
