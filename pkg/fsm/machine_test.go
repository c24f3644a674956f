package fsm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/superfly/fsm"

	"github.com/waltr/flashstation/pkg/catalog"
	"github.com/waltr/flashstation/pkg/db"
	"github.com/waltr/flashstation/pkg/errors"
)

func newTestWorkflow(t *testing.T, store *memStore, dl *stubDownloader) *Workflow {
	t.Helper()
	ctx := context.Background()

	manager, err := fsm.New(fsm.Config{DBPath: t.TempDir()})
	if err != nil {
		t.Fatalf("fsm.New() error = %v", err)
	}
	t.Cleanup(func() { manager.Shutdown(5 * time.Second) })

	workflow, err := NewWorkflow(ctx, manager, NewMachine(store, dl, 3))
	if err != nil {
		t.Fatalf("NewWorkflow() error = %v", err)
	}
	return workflow
}

func newTestChange(existing *db.Variant) catalog.Change {
	return catalog.Change{
		Entry:    catalog.Entry{Key: "waltr_A", Version: "2.0", URL: "https://cdn.example/waltr_A.bin"},
		Existing: existing,
		Path:     "/cache/waltr_A.bin",
	}
}

func TestWorkflowApply_Commits(t *testing.T) {
	store := newMemStore()
	dl := &stubDownloader{}
	w := newTestWorkflow(t, store, dl)

	if err := w.Apply(context.Background(), newTestChange(nil)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got := store.get("waltr_A")
	if got == nil || got.Version != "2.0" || got.Path != "/cache/waltr_A.bin" {
		t.Errorf("stored variant = %+v", got)
	}
	if dl.callCount() != 1 {
		t.Errorf("downloads = %d, want 1", dl.callCount())
	}
}

func TestWorkflowApply_KeepsStoredFlag(t *testing.T) {
	store := newMemStore()
	existing := &db.Variant{Key: "waltr_A", Version: "1.0", Path: "/cache/waltr_A.bin", IsIDF: true}
	store.variants["waltr_A"] = existing
	w := newTestWorkflow(t, store, &stubDownloader{})

	if err := w.Apply(context.Background(), newTestChange(existing)); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	got := store.get("waltr_A")
	if got.Version != "2.0" || !got.IsIDF {
		t.Errorf("stored variant = %+v, want version 2.0 with IDF flag kept", got)
	}
}

func TestWorkflowApply_DownloadFailureLeavesStore(t *testing.T) {
	store := newMemStore()
	dl := &stubDownloader{err: errors.New("connection reset by peer")}
	w := newTestWorkflow(t, store, dl)

	err := w.Apply(context.Background(), newTestChange(nil))
	if err == nil {
		t.Fatal("Apply() expected error")
	}
	if !strings.Contains(err.Error(), "waltr_A") {
		t.Errorf("error %q should name the key", err)
	}
	if got := store.get("waltr_A"); got != nil {
		t.Errorf("store changed after failed download: %+v", got)
	}
	if store.upsertCount() != 0 {
		t.Errorf("upserts = %d, want 0", store.upsertCount())
	}
}

func TestWorkflowApply_CommitRetriesThenFails(t *testing.T) {
	store := newMemStore()
	store.upsertErr = errors.Mark(errors.New("database is locked"), errors.ErrStorage)
	w := newTestWorkflow(t, store, &stubDownloader{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := w.Apply(ctx, newTestChange(nil))
	if err == nil {
		t.Fatal("Apply() expected error")
	}
	if !strings.Contains(err.Error(), "max retries (3) exceeded") {
		t.Errorf("error = %v, want retry limit", err)
	}
	if store.upsertCount() != 3 {
		t.Errorf("upserts = %d, want 3", store.upsertCount())
	}
	if got := store.get("waltr_A"); got != nil {
		t.Errorf("store changed after failed commit: %+v", got)
	}
}
