package control

import (
	"context"

	"github.com/openjobspec/ojs-httpjob/internal/core"
)

// Recorder receives control-plane events worth counting.
type Recorder interface {
	PauseToggled(paused bool)
	RuntimeSignal(kind string)
}

type nopRecorder struct{}

func (nopRecorder) PauseToggled(bool)    {}
func (nopRecorder) RuntimeSignal(string) {}

// SignalChannel writes signals that a running job polls from its runtime
// hash. Writes are last-wins and nobody waits for the job to react.
type SignalChannel struct {
	store    core.Store
	recorder Recorder
}

// NewSignalChannel returns a SignalChannel. recorder may be nil.
func NewSignalChannel(store core.Store, recorder Recorder) *SignalChannel {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &SignalChannel{store: store, recorder: recorder}
}

// SendStop asks the running job id to stop.
func (s *SignalChannel) SendStop(ctx context.Context, id string) error {
	if err := s.write(ctx, id, core.FieldAction, core.ActionStop); err != nil {
		return err
	}
	s.recorder.RuntimeSignal("stop")
	return nil
}

// SendData hands data to the running job id.
func (s *SignalChannel) SendData(ctx context.Context, id, data string) error {
	if err := s.write(ctx, id, core.FieldData, data); err != nil {
		return err
	}
	s.recorder.RuntimeSignal("data")
	return nil
}

func (s *SignalChannel) write(ctx context.Context, id, field, value string) error {
	tx := s.store.CreateWriteTransaction(ctx)
	tx.SetRangeInHash(core.RuntimeKey(id), map[string]string{field: value})
	if err := tx.Commit(); err != nil {
		return core.NewStorageError("write "+core.RuntimeKey(id), err)
	}
	return nil
}
