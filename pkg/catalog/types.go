// Package catalog reconciles the local firmware cache with the remote catalog.
package catalog

import (
	"context"

	"github.com/waltr/flashstation/pkg/db"
	"github.com/waltr/flashstation/pkg/storage"
)

// Entry is one variant as listed by the remote catalog
type Entry struct {
	Key     string `json:"-"`
	Version string `json:"version"`
	URL     string `json:"url"`
	IsIDF   bool   `json:"is_idf"`
}

// OutcomeKind classifies a refresh
type OutcomeKind int

const (
	Unchanged OutcomeKind = iota
	Updated
	Unreachable
)

func (k OutcomeKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Updated:
		return "updated"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Outcome is the result of one refresh. Failed lists keys whose download
// or commit failed; their cached version stays authoritative.
type Outcome struct {
	Kind    OutcomeKind
	Updated []string
	Failed  []string
	Reason  string
}

// Change is a catalog entry that differs from the cache
type Change struct {
	Entry    Entry
	Existing *db.Variant // nil when the key is new
	Path     string
}

// Flag returns the flag to store: the cached one wins for known keys
func (c Change) Flag() bool {
	if c.Existing != nil {
		return c.Existing.IsIDF
	}
	return c.Entry.IsIDF
}

// Store is the subset of the version store sync needs
type Store interface {
	Get(ctx context.Context, key string) (*db.Variant, error)
	List(ctx context.Context) (map[string]*db.Variant, error)
	Upsert(ctx context.Context, key, version, path string, isIDF bool) error
}

// Downloader fetches an artifact into a local path, replacing it only
// once the transfer completed
type Downloader interface {
	Download(ctx context.Context, rawURL, localPath string) (*storage.DownloadResult, error)
}

// Fetcher retrieves the remote catalog
type Fetcher interface {
	Fetch(ctx context.Context) ([]Entry, error)
}

// Applier downloads and commits one change
type Applier interface {
	Apply(ctx context.Context, change Change) error
}
