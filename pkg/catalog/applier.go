package catalog

import (
	"context"
	"log/slog"

	"github.com/waltr/flashstation/pkg/errors"
)

// DirectApplier downloads and commits a change in-process
type DirectApplier struct {
	downloader Downloader
	store      Store
}

// NewDirectApplier creates a new in-process applier
func NewDirectApplier(downloader Downloader, store Store) *DirectApplier {
	return &DirectApplier{downloader: downloader, store: store}
}

// Apply downloads the artifact and only then records the new version. A
// failed download leaves the store untouched.
func (a *DirectApplier) Apply(ctx context.Context, change Change) error {
	e := change.Entry

	result, err := a.downloader.Download(ctx, e.URL, change.Path)
	if err != nil {
		return errors.Wrap(err, "download "+e.Key)
	}

	if err := a.store.Upsert(ctx, e.Key, e.Version, result.LocalPath, change.Flag()); err != nil {
		return errors.Wrap(err, "commit "+e.Key)
	}

	slog.Info("catalog_variant_committed", "key", e.Key, "version", e.Version, "path", result.LocalPath, "size_kb", result.Size/1024)
	return nil
}
