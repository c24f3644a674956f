package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/superfly/fsm"
	"github.com/waltr/flashstation/pkg/catalog"
	"github.com/waltr/flashstation/pkg/db"
	"github.com/waltr/flashstation/pkg/errors"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	store      catalog.Store
	downloader catalog.Downloader
	maxRetries int
}

// NewMachine creates a new FSM machine with dependencies
func NewMachine(store catalog.Store, downloader catalog.Downloader, maxRetries int) *Machine {
	return &Machine{
		store:      store,
		downloader: downloader,
		maxRetries: maxRetries,
	}
}

// retriesExhausted reports whether the current state has already been retried
// maxRetries times
func (m *Machine) retriesExhausted(ctx context.Context, key string) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "key", key, "max_retries", m.maxRetries)
		return fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}
	return nil
}

// handleCheckStore skips the run when the store already holds the target
// version (an earlier run committed it before a restart)
func (m *Machine) handleCheckStore(ctx context.Context, req *fsm.Request[VariantRequest, VariantResponse]) (*fsm.Response[VariantResponse], error) {
	slog.Info("fsm_state_check_store", "key", req.Msg.Key, "version", req.Msg.Version)

	if err := m.retriesExhausted(ctx, req.Msg.Key); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &VariantResponse{}
	}

	current, err := m.store.Get(ctx, req.Msg.Key)
	if err != nil {
		slog.Error("store_check_failed", "key", req.Msg.Key, "error", err)
		return nil, errors.Wrap(err, "store check failed")
	}

	resp.Skipped = skipVersion(current, req.Msg.Version)
	if resp.Skipped {
		slog.Info("variant_already_current", "key", req.Msg.Key, "version", req.Msg.Version)
		resp.Status = StatusCurrent
	}

	return fsm.NewResponse(resp), nil
}

// handleDownload fetches the artifact. The downloader retries transient
// failures itself, so a failure here aborts the run.
func (m *Machine) handleDownload(ctx context.Context, req *fsm.Request[VariantRequest, VariantResponse]) (*fsm.Response[VariantResponse], error) {
	slog.Info("fsm_state_download", "key", req.Msg.Key, "url", req.Msg.URL)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Skipped {
		return fsm.NewResponse(resp), nil
	}

	result, err := m.downloader.Download(ctx, req.Msg.URL, req.Msg.Path)
	if err != nil {
		slog.Error("download_failed", "key", req.Msg.Key, "error", err)
		resp.ErrorMessage = err.Error()
		return nil, fsm.Abort(errors.Wrap(err, "failed to download artifact"))
	}

	resp.SHA256 = result.SHA256
	resp.DownloadPath = result.LocalPath
	resp.DownloadSize = result.Size

	return fsm.NewResponse(resp), nil
}

// handleCommit records the new version once the artifact is in place
func (m *Machine) handleCommit(ctx context.Context, req *fsm.Request[VariantRequest, VariantResponse]) (*fsm.Response[VariantResponse], error) {
	slog.Info("fsm_state_commit", "key", req.Msg.Key, "version", req.Msg.Version)

	if err := m.retriesExhausted(ctx, req.Msg.Key); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if resp.Skipped {
		return fsm.NewResponse(resp), nil
	}
	if resp.DownloadPath == "" {
		return nil, fsm.Abort(fmt.Errorf("no downloaded artifact to commit"))
	}

	if err := m.store.Upsert(ctx, req.Msg.Key, req.Msg.Version, resp.DownloadPath, req.Msg.IsIDF); err != nil {
		// storage errors are retried by the FSM until maxRetries
		slog.Error("commit_failed", "key", req.Msg.Key, "error", err)
		resp.ErrorMessage = err.Error()
		return nil, errors.Wrap(err, "failed to commit variant")
	}

	resp.Status = StatusCommitted
	slog.Info("fsm_complete", "key", req.Msg.Key, "version", req.Msg.Version, "status", resp.Status)

	return fsm.NewResponse(resp), nil
}

// skipVersion reports whether the stored record already carries version
func skipVersion(current *db.Variant, version string) bool {
	return current != nil && current.Version == version
}
