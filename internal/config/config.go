package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Database paths
	SQLitePath string `mapstructure:"sqlite-path"`
	FSMDBPath  string `mapstructure:"fsm-db-path"`

	// Artifact cache
	ArtifactDir     string `mapstructure:"artifact-dir"`
	MaxArtifactSize int64  `mapstructure:"max-artifact-size"`

	// Remote catalog
	CatalogURL      string        `mapstructure:"catalog-url"`
	APIToken        string        `mapstructure:"api-token"`
	CatalogTimeout  time.Duration `mapstructure:"catalog-timeout"`
	DownloadTimeout time.Duration `mapstructure:"download-timeout"`
	DownloadRetries int           `mapstructure:"download-retries"`
	S3Region        string        `mapstructure:"s3-region"`
	BreakerFailures int           `mapstructure:"breaker-failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker-cooldown"`

	// Sync workflow
	SyncConcurrency int  `mapstructure:"sync-concurrency"`
	SyncMaxRetries  int  `mapstructure:"sync-max-retries"`
	DurableSync     bool `mapstructure:"durable-sync"`

	// GPIO wiring
	GPIOChip     string        `mapstructure:"gpio-chip"`
	ButtonPins   []int         `mapstructure:"button-pins"`
	ButtonKeys   []string      `mapstructure:"button-keys"`
	LEDPin       int           `mapstructure:"led-pin"`
	PollInterval time.Duration `mapstructure:"poll-interval"`
	SettleDelay  time.Duration `mapstructure:"settle-delay"`

	// esptool invocation
	EsptoolCommand    []string      `mapstructure:"esptool-command"`
	SerialPort        string        `mapstructure:"serial-port"`
	Baud              int           `mapstructure:"baud"`
	Chip              string        `mapstructure:"chip"`
	FlashMode         string        `mapstructure:"flash-mode"`
	FlashFreq         string        `mapstructure:"flash-freq"`
	FlashSize         string        `mapstructure:"flash-size"`
	BeforeReset       string        `mapstructure:"before-reset"`
	AfterReset        string        `mapstructure:"after-reset"`
	BootloaderOffset  string        `mapstructure:"bootloader-offset"`
	PartitionsOffset  string        `mapstructure:"partitions-offset"`
	AppOffset         string        `mapstructure:"app-offset"`
	BootloaderPath    string        `mapstructure:"bootloader-path"`
	PartitionsPath    string        `mapstructure:"partitions-path"`
	IDFBootloaderPath string        `mapstructure:"idf-bootloader-path"`
	IDFPartitionsPath string        `mapstructure:"idf-partitions-path"`
	FlashTimeout      time.Duration `mapstructure:"flash-timeout"`
	VerifyMarker      string        `mapstructure:"verify-marker"`

	// Serial console boot check, disabled while BootMarker is empty
	BootMarker      string        `mapstructure:"boot-marker"`
	BootBaud        int           `mapstructure:"boot-baud"`
	BootMaxLines    int           `mapstructure:"boot-max-lines"`
	BootReadTimeout time.Duration `mapstructure:"boot-read-timeout"`

	// Status LED timing
	BusyInterval  time.Duration `mapstructure:"busy-interval"`
	SuccessPulses int           `mapstructure:"success-pulses"`
	SuccessPulse  time.Duration `mapstructure:"success-pulse"`
	ErrorHold     time.Duration `mapstructure:"error-hold"`

	LogLevel string `mapstructure:"log-level"`
}

// Load reads configuration from .env, environment, config file, and defaults
func Load() (*Config, error) {
	// The appliance keeps its catalog token in a .env next to the binary
	if err := godotenv.Load(); err != nil {
		slog.Debug("dotenv_not_found", "error", err)
	}

	// Set defaults
	viper.SetDefault("sqlite-path", ".artifacts/variants.db")
	viper.SetDefault("fsm-db-path", ".artifacts/fsm")
	viper.SetDefault("artifact-dir", "binfile")
	viper.SetDefault("max-artifact-size", 16*1024*1024)
	viper.SetDefault("catalog-url", "https://api.waltr.in/v1/ota/latest")
	viper.SetDefault("catalog-timeout", 5*time.Second)
	viper.SetDefault("download-timeout", 5*time.Minute)
	viper.SetDefault("download-retries", 2)
	viper.SetDefault("s3-region", "ap-south-1")
	viper.SetDefault("breaker-failures", 3)
	viper.SetDefault("breaker-cooldown", 5*time.Minute)
	viper.SetDefault("sync-concurrency", 1)
	viper.SetDefault("sync-max-retries", 3)
	viper.SetDefault("durable-sync", true)
	viper.SetDefault("gpio-chip", "gpiochip0")
	viper.SetDefault("button-pins", []int{23, 24, 27, 22})
	viper.SetDefault("button-keys", []string{"waltr_A", "waltr_B", "waltr_C", "waltr_V"})
	viper.SetDefault("led-pin", 26)
	viper.SetDefault("poll-interval", 100*time.Millisecond)
	viper.SetDefault("settle-delay", 500*time.Millisecond)
	viper.SetDefault("esptool-command", []string{"python3", "-m", "esptool"})
	viper.SetDefault("serial-port", "/dev/ttyUSB0")
	viper.SetDefault("baud", 460800)
	viper.SetDefault("chip", "esp32")
	viper.SetDefault("flash-mode", "dio")
	viper.SetDefault("flash-freq", "40m")
	viper.SetDefault("flash-size", "detect")
	viper.SetDefault("before-reset", "default_reset")
	viper.SetDefault("after-reset", "hard_reset")
	viper.SetDefault("bootloader-offset", "0x1000")
	viper.SetDefault("partitions-offset", "0x8000")
	viper.SetDefault("app-offset", "0x10000")
	viper.SetDefault("bootloader-path", "config/WALTR.bootloader.bin")
	viper.SetDefault("partitions-path", "config/WALTR.partitions.bin")
	viper.SetDefault("idf-bootloader-path", "config/IDF.bootloader.bin")
	viper.SetDefault("idf-partitions-path", "config/IDF.partitions.bin")
	viper.SetDefault("flash-timeout", 3*time.Minute)
	viper.SetDefault("verify-marker", "Hash of data verified.")
	viper.SetDefault("boot-marker", "")
	viper.SetDefault("boot-baud", 115200)
	viper.SetDefault("boot-max-lines", 100)
	viper.SetDefault("boot-read-timeout", time.Second)
	viper.SetDefault("busy-interval", 100*time.Millisecond)
	viper.SetDefault("success-pulses", 3)
	viper.SetDefault("success-pulse", 200*time.Millisecond)
	viper.SetDefault("error-hold", 10*time.Second)
	viper.SetDefault("log-level", "info")

	// Environment variables (will be FLASHSTATION_CATALOG_URL, etc.)
	viper.SetEnvPrefix("FLASHSTATION")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	// Older installs only set API_TOKEN
	_ = viper.BindEnv("api-token", "FLASHSTATION_API_TOKEN", "API_TOKEN")

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.flashstation")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	// Unmarshal into config struct
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.SQLitePath == "" {
		return fmt.Errorf("sqlite-path cannot be empty")
	}
	if c.DurableSync && c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty when durable-sync is enabled")
	}
	if c.ArtifactDir == "" {
		return fmt.Errorf("artifact-dir cannot be empty")
	}
	if c.CatalogURL == "" {
		return fmt.Errorf("catalog-url cannot be empty")
	}
	if c.MaxArtifactSize <= 0 {
		return fmt.Errorf("max-artifact-size must be positive")
	}
	if c.CatalogTimeout <= 0 {
		return fmt.Errorf("catalog-timeout must be positive")
	}
	if c.DownloadRetries < 0 {
		return fmt.Errorf("download-retries must be non-negative")
	}
	if c.SyncConcurrency <= 0 {
		return fmt.Errorf("sync-concurrency must be positive")
	}
	if c.SyncMaxRetries < 0 {
		return fmt.Errorf("sync-max-retries must be non-negative")
	}
	if len(c.ButtonPins) == 0 {
		return fmt.Errorf("button-pins cannot be empty")
	}
	if len(c.ButtonPins) != len(c.ButtonKeys) {
		return fmt.Errorf("button-pins (%d) and button-keys (%d) must have the same length",
			len(c.ButtonPins), len(c.ButtonKeys))
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if len(c.EsptoolCommand) == 0 {
		return fmt.Errorf("esptool-command cannot be empty")
	}
	if c.SerialPort == "" {
		return fmt.Errorf("serial-port cannot be empty")
	}
	if c.FlashTimeout <= 0 {
		return fmt.Errorf("flash-timeout must be positive")
	}
	if c.VerifyMarker == "" {
		return fmt.Errorf("verify-marker cannot be empty")
	}
	if c.BootMarker != "" && (c.BootBaud <= 0 || c.BootMaxLines <= 0) {
		return fmt.Errorf("boot-baud and boot-max-lines must be positive when boot-marker is set")
	}
	if c.BusyInterval <= 0 {
		return fmt.Errorf("busy-interval must be positive")
	}
	return nil
}

// Level parses LogLevel, falling back to info.
func (c *Config) Level() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
