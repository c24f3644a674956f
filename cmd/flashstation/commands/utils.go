package commands

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/superfly/fsm"

	"github.com/waltr/flashstation/internal/config"
	"github.com/waltr/flashstation/pkg/catalog"
	"github.com/waltr/flashstation/pkg/console"
	"github.com/waltr/flashstation/pkg/db"
	"github.com/waltr/flashstation/pkg/errors"
	"github.com/waltr/flashstation/pkg/flasher"
	appfsm "github.com/waltr/flashstation/pkg/fsm"
	"github.com/waltr/flashstation/pkg/indicator"
	"github.com/waltr/flashstation/pkg/security"
	"github.com/waltr/flashstation/pkg/storage"
)

// loadConfig loads and validates the configuration and applies its log level
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "config load failed")
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config invalid")
	}
	LogLevel.Set(cfg.Level())
	return cfg, nil
}

// ensureDirectories creates all necessary directories for the application
func ensureDirectories(sqlitePath, fsmDBPath, artifactDir string) error {
	// Create database directory
	if err := os.MkdirAll(filepath.Dir(sqlitePath), 0755); err != nil {
		return errors.Wrap(err, "failed to create database directory")
	}

	// Create FSM state directory (only with durable sync)
	if fsmDBPath != "" {
		if err := os.MkdirAll(fsmDBPath, 0755); err != nil {
			return errors.Wrap(err, "failed to create FSM directory")
		}
	}

	// Create artifact directory (only needed for sync)
	if artifactDir != "" {
		if err := os.MkdirAll(artifactDir, 0755); err != nil {
			return errors.Wrap(err, "failed to create artifact directory")
		}
	}

	return nil
}

// openRepository opens the version store, creating its directory first
func openRepository(cfg *config.Config) (*db.Repository, error) {
	if err := ensureDirectories(cfg.SQLitePath, "", ""); err != nil {
		return nil, err
	}
	repo, err := db.NewRepository(cfg.SQLitePath)
	if err != nil {
		return nil, errors.Wrap(err, "db init failed")
	}
	return repo, nil
}

// newSyncer wires the catalog client, the artifact fetcher and an applier.
// The returned func releases the FSM manager when durable sync is on.
func newSyncer(ctx context.Context, cfg *config.Config, repo *db.Repository) (*catalog.Syncer, func(), error) {
	fsmDir := ""
	if cfg.DurableSync {
		fsmDir = cfg.FSMDBPath
	}
	if err := ensureDirectories(cfg.SQLitePath, fsmDir, cfg.ArtifactDir); err != nil {
		return nil, nil, err
	}

	validator := security.NewValidator(cfg.MaxArtifactSize)

	// Only s3:// artifact URLs need this; a broken AWS setup must not stop
	// http(s) downloads
	s3Client, err := storage.NewClient(ctx, cfg.S3Region)
	if err != nil {
		slog.Warn("s3_unavailable", "error", err)
		s3Client = nil
	}

	fetcher := storage.NewFetcher(&http.Client{Timeout: cfg.DownloadTimeout}, s3Client, validator, cfg.DownloadRetries)
	client := catalog.NewClient(catalog.ClientConfig{
		URL:             cfg.CatalogURL,
		Token:           cfg.APIToken,
		Timeout:         cfg.CatalogTimeout,
		BreakerFailures: cfg.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown,
	})

	if !cfg.DurableSync {
		applier := catalog.NewDirectApplier(fetcher, repo)
		return catalog.NewSyncer(client, repo, applier, validator, cfg.ArtifactDir, cfg.SyncConcurrency), func() {}, nil
	}

	manager, err := fsm.New(fsm.Config{DBPath: cfg.FSMDBPath})
	if err != nil {
		return nil, nil, errors.Wrap(err, "FSM manager failed")
	}
	closeFn := func() { manager.Shutdown(10 * time.Second) }

	machine := appfsm.NewMachine(repo, fetcher, cfg.SyncMaxRetries)
	workflow, err := appfsm.NewWorkflow(ctx, manager, machine)
	if err != nil {
		closeFn()
		return nil, nil, errors.Wrap(err, "FSM register failed")
	}

	return catalog.NewSyncer(client, repo, workflow, validator, cfg.ArtifactDir, cfg.SyncConcurrency), closeFn, nil
}

// newFlasher builds the esptool flasher, with the serial boot check when a
// boot marker is configured
func newFlasher(cfg *config.Config, ind flasher.Indicator) *flasher.Flasher {
	f := flasher.New(flasherConfig(cfg), flasher.ExecRunner{}, ind)
	if cfg.BootMarker != "" {
		f.WithBootCheck(console.NewBootCheck(cfg.SerialPort, cfg.BootBaud, cfg.BootMarker, cfg.BootMaxLines, cfg.BootReadTimeout))
	}
	return f
}

func indicatorTiming(cfg *config.Config) indicator.Timing {
	return indicator.Timing{
		BusyInterval:  cfg.BusyInterval,
		SuccessPulses: cfg.SuccessPulses,
		SuccessPulse:  cfg.SuccessPulse,
		ErrorHold:     cfg.ErrorHold,
	}
}

func flasherConfig(cfg *config.Config) flasher.Config {
	return flasher.Config{
		Command:          cfg.EsptoolCommand,
		Port:             cfg.SerialPort,
		Baud:             cfg.Baud,
		Chip:             cfg.Chip,
		FlashMode:        cfg.FlashMode,
		FlashFreq:        cfg.FlashFreq,
		FlashSize:        cfg.FlashSize,
		BeforeReset:      cfg.BeforeReset,
		AfterReset:       cfg.AfterReset,
		BootloaderOffset: cfg.BootloaderOffset,
		PartitionsOffset: cfg.PartitionsOffset,
		AppOffset:        cfg.AppOffset,
		Bootloader:       cfg.BootloaderPath,
		Partitions:       cfg.PartitionsPath,
		IDFBootloader:    cfg.IDFBootloaderPath,
		IDFPartitions:    cfg.IDFPartitionsPath,
		Timeout:          cfg.FlashTimeout,
		Marker:           cfg.VerifyMarker,
	}
}
