package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	if cfg.CatalogTimeout != 5*time.Second {
		t.Errorf("CatalogTimeout = %v, want 5s", cfg.CatalogTimeout)
	}
	if got := cfg.ButtonPins; len(got) != 4 || got[0] != 23 || got[3] != 22 {
		t.Errorf("ButtonPins = %v", got)
	}
	if got := strings.Join(cfg.ButtonKeys, ","); got != "waltr_A,waltr_B,waltr_C,waltr_V" {
		t.Errorf("ButtonKeys = %s", got)
	}
	if cfg.LEDPin != 26 {
		t.Errorf("LEDPin = %d, want 26", cfg.LEDPin)
	}
	if cfg.VerifyMarker != "Hash of data verified." {
		t.Errorf("VerifyMarker = %q", cfg.VerifyMarker)
	}
	if cfg.BootMarker != "" || cfg.BootBaud != 115200 || cfg.BootMaxLines != 100 {
		t.Errorf("boot check defaults = %q %d %d", cfg.BootMarker, cfg.BootBaud, cfg.BootMaxLines)
	}
	if cfg.ErrorHold != 10*time.Second {
		t.Errorf("ErrorHold = %v, want 10s", cfg.ErrorHold)
	}
}

func TestLoadTokenFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"prefixed", map[string]string{"FLASHSTATION_API_TOKEN": "abc"}, "abc"},
		{"legacy", map[string]string{"API_TOKEN": "legacy"}, "legacy"},
		{"prefixed wins", map[string]string{"FLASHSTATION_API_TOKEN": "new", "API_TOKEN": "old"}, "new"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FLASHSTATION_API_TOKEN", "")
			t.Setenv("API_TOKEN", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.APIToken != tt.want {
				t.Errorf("APIToken = %q, want %q", cfg.APIToken, tt.want)
			}
		})
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FLASHSTATION_SERIAL_PORT", "/dev/ttyACM0")
	t.Setenv("FLASHSTATION_FLASH_TIMEOUT", "90s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SerialPort != "/dev/ttyACM0" {
		t.Errorf("SerialPort = %q", cfg.SerialPort)
	}
	if cfg.FlashTimeout != 90*time.Second {
		t.Errorf("FlashTimeout = %v", cfg.FlashTimeout)
	}
}

func validConfig() Config {
	return Config{
		SQLitePath:      "variants.db",
		FSMDBPath:       "fsm",
		ArtifactDir:     "binfile",
		CatalogURL:      "https://api.example/latest",
		MaxArtifactSize: 1024,
		CatalogTimeout:  time.Second,
		SyncConcurrency: 1,
		ButtonPins:      []int{23, 24},
		ButtonKeys:      []string{"a", "b"},
		PollInterval:    time.Millisecond,
		EsptoolCommand:  []string{"esptool.py"},
		SerialPort:      "/dev/ttyUSB0",
		FlashTimeout:    time.Minute,
		VerifyMarker:    "Hash of data verified.",
		BusyInterval:    time.Millisecond,
		DurableSync:     true,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no sqlite path", func(c *Config) { c.SQLitePath = "" }, "sqlite-path"},
		{"durable without fsm path", func(c *Config) { c.FSMDBPath = "" }, "fsm-db-path"},
		{"direct without fsm path", func(c *Config) { c.FSMDBPath = ""; c.DurableSync = false }, ""},
		{"pins and keys differ", func(c *Config) { c.ButtonKeys = []string{"a"} }, "same length"},
		{"no buttons", func(c *Config) { c.ButtonPins = nil; c.ButtonKeys = nil }, "button-pins"},
		{"no esptool", func(c *Config) { c.EsptoolCommand = nil }, "esptool-command"},
		{"no marker", func(c *Config) { c.VerifyMarker = "" }, "verify-marker"},
		{"boot check without line limit", func(c *Config) { c.BootMarker = "ready"; c.BootBaud = 115200 }, "boot-max-lines"},
		{"boot check", func(c *Config) { c.BootMarker = "ready"; c.BootBaud = 115200; c.BootMaxLines = 100 }, ""},
		{"zero flash timeout", func(c *Config) { c.FlashTimeout = 0 }, "flash-timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"":      slog.LevelInfo,
		"loud":  slog.LevelInfo,
	}
	for in, want := range tests {
		c := Config{LogLevel: in}
		if got := c.Level(); got != want {
			t.Errorf("Level(%q) = %v, want %v", in, got, want)
		}
	}
}
