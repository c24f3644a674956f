package security

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
)

// MaxKeyLength bounds catalog keys, which become artifact file names
const MaxKeyLength = 64

// ErrArtifactTooLarge is returned once an artifact grows past the configured limit
var ErrArtifactTooLarge = errors.New("security: artifact too large")

// Validator checks remote catalog data before it touches the local cache
type Validator struct {
	maxArtifactSize int64
}

// NewValidator creates a new security validator
func NewValidator(maxArtifactSize int64) *Validator {
	slog.Info("security_validator_init", "max_artifact_size_kb", maxArtifactSize/1024)

	return &Validator{maxArtifactSize: maxArtifactSize}
}

// ValidateKey checks that a catalog key is safe to use as a file name
// inside the artifact directory
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		slog.Error("security_key_validation_failed", "key", key, "reason", "empty")
		return fmt.Errorf("security: empty key")
	}
	if len(key) > MaxKeyLength {
		slog.Error("security_key_validation_failed", "key", key, "reason", "too_long")
		return fmt.Errorf("security: key longer than %d: %q", MaxKeyLength, key)
	}

	// Reject separators, traversal and hidden names
	if strings.ContainsAny(key, `/\`) || key != filepath.Base(key) || strings.HasPrefix(key, ".") {
		slog.Error("security_key_validation_failed", "key", key, "reason", "path_traversal")
		return fmt.Errorf("security: key is not a plain file name: %q", key)
	}

	for _, r := range key {
		if r < 0x20 || r == 0x7f {
			slog.Error("security_key_validation_failed", "key", key, "reason", "control_character")
			return fmt.Errorf("security: key contains control characters: %q", key)
		}
	}

	return nil
}

// ArtifactPath returns the cache path for a validated key
func (v *Validator) ArtifactPath(dir, key string) (string, error) {
	if err := v.ValidateKey(key); err != nil {
		return "", err
	}
	return filepath.Join(dir, key+".bin"), nil
}

// ValidateArtifactSize checks if an artifact exceeds the max size
func (v *Validator) ValidateArtifactSize(size int64) error {
	if size > v.maxArtifactSize {
		slog.Error("security_artifact_size_exceeded",
			"artifact_size_kb", size/1024,
			"max_artifact_size_kb", v.maxArtifactSize/1024)
		return fmt.Errorf("%w: size %d exceeds max %d", ErrArtifactTooLarge, size, v.maxArtifactSize)
	}
	return nil
}

// LimitReader wraps r so that reading past the max artifact size fails
// instead of silently truncating
func (v *Validator) LimitReader(r io.Reader) io.Reader {
	return &limitedReader{r: io.LimitReader(r, v.maxArtifactSize+1), v: v}
}

type limitedReader struct {
	r io.Reader
	v *Validator
	n int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if verr := l.v.ValidateArtifactSize(l.n); verr != nil {
		return n, verr
	}
	return n, err
}
