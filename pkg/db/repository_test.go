package db

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "variants.db"))
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

var ignoreTimestamps = cmpopts.IgnoreFields(Variant{}, "CreatedAt", "UpdatedAt")

func TestRepository_GetMissing(t *testing.T) {
	repo := newTestRepository(t)

	v, err := repo.Get(context.Background(), "button_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != nil {
		t.Errorf("expected nil for unknown key, got %+v", v)
	}
}

func TestRepository_UpsertInsertsThenUpdates(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if err := repo.Upsert(ctx, "button_1", "1.0", "/cache/button_1.bin", false); err != nil {
		t.Fatalf("failed to insert variant: %v", err)
	}

	got, err := repo.Get(ctx, "button_1")
	if err != nil {
		t.Fatalf("failed to get variant: %v", err)
	}
	want := &Variant{Key: "button_1", Version: "1.0", Path: "/cache/button_1.bin", IsIDF: false}
	if diff := cmp.Diff(want, got, ignoreTimestamps); diff != "" {
		t.Errorf("variant mismatch (-want +got):\n%s", diff)
	}

	if err := repo.Upsert(ctx, "button_1", "1.1", "/cache/button_1.bin", false); err != nil {
		t.Fatalf("failed to update variant: %v", err)
	}

	got, _ = repo.Get(ctx, "button_1")
	if got.Version != "1.1" {
		t.Errorf("version not updated: got %s, want 1.1", got.Version)
	}
}

func TestRepository_UpsertKeepsFlagOfExistingRow(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if err := repo.Upsert(ctx, "waltr_V", "2.0", "/cache/waltr_V.bin", true); err != nil {
		t.Fatalf("failed to insert variant: %v", err)
	}
	if err := repo.Upsert(ctx, "waltr_V", "2.1", "/cache/waltr_V.bin", false); err != nil {
		t.Fatalf("failed to update variant: %v", err)
	}

	got, err := repo.Get(ctx, "waltr_V")
	if err != nil {
		t.Fatalf("failed to get variant: %v", err)
	}
	if !got.IsIDF {
		t.Errorf("flag overwritten on update: got %v, want true", got.IsIDF)
	}
	if got.Version != "2.1" {
		t.Errorf("version not updated: got %s, want 2.1", got.Version)
	}
}

func TestRepository_List(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	repo.Upsert(ctx, "waltr_A", "1.0", "/cache/waltr_A.bin", false)
	repo.Upsert(ctx, "waltr_B", "3.2", "/cache/waltr_B.bin", true)

	variants, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("failed to list variants: %v", err)
	}

	want := map[string]*Variant{
		"waltr_A": {Key: "waltr_A", Version: "1.0", Path: "/cache/waltr_A.bin"},
		"waltr_B": {Key: "waltr_B", Version: "3.2", Path: "/cache/waltr_B.bin", IsIDF: true},
	}
	if diff := cmp.Diff(want, variants, ignoreTimestamps); diff != "" {
		t.Errorf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestRepository_ConcurrentReadersSeeWholeRecords(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	if err := repo.Upsert(ctx, "waltr_A", "v0", "/cache/v0", false); err != nil {
		t.Fatalf("failed to seed variant: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, v := range []string{"v1", "v2", "v3", "v4", "v5"} {
			if err := repo.Upsert(ctx, "waltr_A", v, "/cache/"+v, false); err != nil {
				t.Errorf("upsert %s failed: %v", v, err)
			}
		}
	}()

	errs := make(chan string, 50)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			got, err := repo.Get(ctx, "waltr_A")
			if err != nil {
				errs <- err.Error()
				continue
			}
			// version and path are written together
			if !strings.HasSuffix(got.Path, got.Version) {
				errs <- "torn record: " + got.Version + " " + got.Path
			}
		}
	}()
	wg.Wait()
	close(errs)

	for e := range errs {
		t.Error(e)
	}
}

func TestRepository_FlashHistory(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)

	long := strings.Repeat("x", maxStoredOutput+100) + "Hash of data verified."
	attempts := []*FlashAttempt{
		{Key: "waltr_A", Version: "1.0", Outcome: OutcomeToolFailure, ExitCode: 2, Output: "A fatal error occurred"},
		{Key: "waltr_A", Version: "1.0", Outcome: OutcomeVerified, Output: long, DurationMS: 41000},
	}
	for _, a := range attempts {
		if err := repo.RecordFlash(ctx, a); err != nil {
			t.Fatalf("failed to record flash: %v", err)
		}
		if a.ID == 0 {
			t.Errorf("expected attempt id to be set")
		}
	}

	got, err := repo.ListFlashes(ctx, 10)
	if err != nil {
		t.Fatalf("failed to list flashes: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(got))
	}
	if got[0].Outcome != OutcomeVerified {
		t.Errorf("expected newest first, got %s", got[0].Outcome)
	}
	if len(got[0].Output) != maxStoredOutput {
		t.Errorf("expected output truncated to %d, got %d", maxStoredOutput, len(got[0].Output))
	}
	if !strings.HasSuffix(got[0].Output, "Hash of data verified.") {
		t.Errorf("expected output tail to be kept")
	}
}
