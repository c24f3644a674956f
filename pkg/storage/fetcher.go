package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/waltr/flashstation/pkg/errors"
	"github.com/waltr/flashstation/pkg/security"
)

// PartialMarker is part of every in-progress download's file name
const PartialMarker = ".partial-"

// DownloadResult contains download metadata
type DownloadResult struct {
	LocalPath string
	SHA256    string
	Size      int64
}

// Fetcher downloads artifacts from http(s):// or s3:// URLs. The destination
// file is replaced only after the whole byte stream has been written.
type Fetcher struct {
	httpClient     *http.Client
	s3Client       *Client
	validator      *security.Validator
	retries        int
	initialBackoff time.Duration
}

// NewFetcher creates a new fetcher. s3Client may be nil when no artifact
// is hosted on S3.
func NewFetcher(httpClient *http.Client, s3Client *Client, validator *security.Validator, retries int) *Fetcher {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Fetcher{
		httpClient:     httpClient,
		s3Client:       s3Client,
		validator:      validator,
		retries:        retries,
		initialBackoff: 500 * time.Millisecond,
	}
}

// IsPartial reports whether name is a leftover in-progress download
func IsPartial(name string) bool {
	return strings.HasPrefix(name, ".") && strings.Contains(name, PartialMarker)
}

// Download fetches rawURL into localPath
func (f *Fetcher) Download(ctx context.Context, rawURL, localPath string) (*DownloadResult, error) {
	slog.Info("download_start", "url", rawURL, "local_path", localPath)

	u, err := url.Parse(rawURL)
	if err != nil {
		slog.Error("download_url_invalid", "url", rawURL, "error", err)
		return nil, errors.Wrap(err, "invalid artifact url")
	}

	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		slog.Error("artifact_dir_creation_failed", "path", dir, "error", err)
		return nil, errors.Wrap(err, "failed to create artifact dir")
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(localPath)+PartialMarker+"*")
	if err != nil {
		slog.Error("local_file_creation_failed", "path", localPath, "error", err)
		return nil, errors.Wrap(err, "failed to create temp file")
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	var size int64
	var checksum string

	operation := func() error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return backoff.Permanent(errors.Wrap(err, "failed to rewind temp file"))
		}
		if err := tmp.Truncate(0); err != nil {
			return backoff.Permanent(errors.Wrap(err, "failed to truncate temp file"))
		}

		body, err := f.open(ctx, u)
		if err != nil {
			return err
		}
		defer body.Close()

		hash := sha256.New()
		n, err := io.Copy(io.MultiWriter(tmp, hash), f.validator.LimitReader(body))
		if err != nil {
			if errors.Is(err, security.ErrArtifactTooLarge) {
				return backoff.Permanent(err)
			}
			return errors.Wrap(err, "failed to download file")
		}

		size = n
		checksum = hex.EncodeToString(hash.Sum(nil))
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = f.initialBackoff
	retry := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(f.retries)), ctx)

	err = backoff.RetryNotify(operation, retry, func(err error, wait time.Duration) {
		slog.Warn("download_retry", "url", rawURL, "wait", wait, "error", err)
	})
	if err != nil {
		slog.Error("download_failed", "url", rawURL, "error", err)
		return nil, errors.Mark(err, errors.ErrNetworkUnavailable)
	}

	if err := tmp.Sync(); err != nil {
		slog.Error("download_sync_failed", "path", tmp.Name(), "error", err)
		return nil, errors.Wrap(err, "failed to sync download")
	}
	if err := tmp.Close(); err != nil {
		slog.Error("download_close_failed", "path", tmp.Name(), "error", err)
		return nil, errors.Wrap(err, "failed to close download")
	}
	if err := os.Rename(tmp.Name(), localPath); err != nil {
		slog.Error("download_rename_failed", "path", localPath, "error", err)
		return nil, errors.Wrap(err, "failed to move download into place")
	}
	committed = true

	slog.Info("download_complete",
		"url", rawURL,
		"size_kb", size/1024,
		"local_path", localPath,
		"sha256", checksum[:16]+"...",
	)

	return &DownloadResult{
		LocalPath: localPath,
		SHA256:    checksum,
		Size:      size,
	}, nil
}

// open starts streaming the artifact body. Errors wrapped in
// backoff.Permanent are not retried.
func (f *Fetcher) open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	switch u.Scheme {
	case "http", "https":
		return f.openHTTP(ctx, u)
	case "s3":
		if f.s3Client == nil {
			return nil, backoff.Permanent(fmt.Errorf("no S3 client configured for %s", u))
		}
		return f.s3Client.Open(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, backoff.Permanent(fmt.Errorf("unsupported artifact url scheme %q", u.Scheme))
	}
}

func (f *Fetcher) openHTTP(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusOK {
		return resp.Body, nil
	}
	resp.Body.Close()

	statusErr := fmt.Errorf("unexpected status %d downloading artifact", resp.StatusCode)
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, statusErr
	}
	return nil, backoff.Permanent(statusErr)
}
