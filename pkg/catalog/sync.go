package catalog

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/waltr/flashstation/pkg/db"
	"github.com/waltr/flashstation/pkg/errors"
	"github.com/waltr/flashstation/pkg/security"
)

// Syncer reconciles the version store with the remote catalog
type Syncer struct {
	fetcher     Fetcher
	store       Store
	applier     Applier
	validator   *security.Validator
	artifactDir string
	concurrency int
}

// NewSyncer creates a new syncer. concurrency bounds parallel downloads;
// 1 keeps the refresh strictly sequential.
func NewSyncer(fetcher Fetcher, store Store, applier Applier, validator *security.Validator, artifactDir string, concurrency int) *Syncer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Syncer{
		fetcher:     fetcher,
		store:       store,
		applier:     applier,
		validator:   validator,
		artifactDir: artifactDir,
		concurrency: concurrency,
	}
}

// Refresh runs one reconciliation. It never returns an error: every failure
// degrades to using what is already cached.
func (s *Syncer) Refresh(ctx context.Context) Outcome {
	slog.Info("catalog_refresh_start")

	entries, err := s.fetcher.Fetch(ctx)
	if err != nil {
		slog.Warn("catalog_unreachable", "error", err)
		return Outcome{Kind: Unreachable, Reason: err.Error()}
	}

	local, err := s.store.List(ctx)
	if err != nil {
		slog.Error("catalog_local_list_failed", "error", err)
		return Outcome{Kind: Unchanged, Reason: errors.Wrap(err, "cache unavailable").Error()}
	}

	changes, invalid := s.diff(entries, local)

	var (
		mu      sync.Mutex
		updated []string
		failed  = invalid
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, change := range changes {
		g.Go(func() error {
			err := s.applier.Apply(gctx, change)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// one key failing never aborts the others
				slog.Error("catalog_apply_failed", "key", change.Entry.Key, "version", change.Entry.Version, "error", err)
				failed = append(failed, change.Entry.Key)
				return nil
			}
			updated = append(updated, change.Entry.Key)
			return nil
		})
	}
	g.Wait()

	sort.Strings(updated)
	sort.Strings(failed)

	outcome := Outcome{Kind: Unchanged, Updated: updated, Failed: failed}
	if len(updated) > 0 {
		outcome.Kind = Updated
	}

	slog.Info("catalog_refresh_complete",
		"outcome", outcome.Kind.String(),
		"entries", len(entries),
		"updated", updated,
		"failed", failed)
	return outcome
}

// diff returns the entries whose version differs from the cache, plus the
// keys rejected by validation
func (s *Syncer) diff(entries []Entry, local map[string]*db.Variant) ([]Change, []string) {
	var changes []Change
	var invalid []string

	for _, e := range entries {
		path, err := s.validator.ArtifactPath(s.artifactDir, e.Key)
		if err != nil {
			slog.Warn("catalog_entry_rejected", "key", e.Key, "error", err)
			invalid = append(invalid, e.Key)
			continue
		}

		existing := local[e.Key]
		if existing != nil && existing.Version == e.Version {
			slog.Debug("catalog_entry_current", "key", e.Key, "version", e.Version)
			continue
		}

		if existing != nil {
			slog.Info("catalog_entry_changed", "key", e.Key, "from", existing.Version, "to", e.Version)
		} else {
			slog.Info("catalog_entry_new", "key", e.Key, "version", e.Version)
		}
		changes = append(changes, Change{Entry: e, Existing: existing, Path: path})
	}

	return changes, invalid
}
