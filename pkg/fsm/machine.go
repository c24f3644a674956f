// Package fsm runs each catalog change as a durable workflow. A change moves
// through check_store, download and commit; a process restart resumes runs
// that were in flight instead of re-downloading from scratch.
package fsm

import (
	"context"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/superfly/fsm"

	"github.com/waltr/flashstation/pkg/catalog"
	"github.com/waltr/flashstation/pkg/errors"
)

// Register registers the variant sync FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[VariantRequest, VariantResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[VariantRequest, VariantResponse](manager, "variant-sync").
		Start(StateCheckStore, m.handleCheckStore).
		To(StateDownload, m.handleDownload).
		To(StateCommit, m.handleCommit).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// Workflow applies catalog changes through the FSM manager
type Workflow struct {
	manager *fsm.Manager
	start   fsm.Start[VariantRequest, VariantResponse]
}

// NewWorkflow registers the FSM and resumes any runs left over from a
// previous process
func NewWorkflow(ctx context.Context, manager *fsm.Manager, machine *Machine) (*Workflow, error) {
	start, resume, err := machine.Register(ctx, manager)
	if err != nil {
		return nil, err
	}

	if err := resume(ctx); err != nil {
		slog.Warn("fsm_resume_failed", "error", err)
	}

	return &Workflow{manager: manager, start: start}, nil
}

// Apply implements catalog.Applier
func (w *Workflow) Apply(ctx context.Context, change catalog.Change) error {
	req := newVariantRequest(change)
	runID := RunID(req.Key)

	version, err := w.start(ctx, runID, fsm.NewRequest(req, &VariantResponse{}))
	if err != nil {
		return errors.Wrap(err, "FSM start failed")
	}

	slog.Info("fsm_started", "key", req.Key, "run_id", runID, "version", version)

	if err := w.manager.Wait(ctx, version); err != nil {
		return errors.Wrap(err, "FSM execution failed for "+req.Key)
	}
	return nil
}

// RunID returns a unique, time-ordered run identifier for key
func RunID(key string) string {
	return key + "-" + ulid.Make().String()
}

func newVariantRequest(change catalog.Change) *VariantRequest {
	return &VariantRequest{
		Key:         change.Entry.Key,
		Version:     change.Entry.Version,
		URL:         change.Entry.URL,
		Path:        change.Path,
		IsIDF:       change.Flag(),
		HadExisting: change.Existing != nil,
	}
}
