package db

// Schema defines the SQLite database schema for the firmware cache.
// variants holds one row per logical trigger key; flash_attempts keeps
// the outcome of every flash for diagnostics.
const Schema = `
CREATE TABLE IF NOT EXISTS variants (
    key TEXT PRIMARY KEY,
    version TEXT NOT NULL,
    path TEXT NOT NULL,
    is_idf INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS flash_attempts (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    key TEXT NOT NULL,
    version TEXT NOT NULL,
    outcome TEXT NOT NULL CHECK(outcome IN ('verified', 'tool_failure', 'timeout', 'resolution_miss')),
    exit_code INTEGER NOT NULL DEFAULT 0,
    output TEXT,
    duration_ms INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_flash_attempts_key ON flash_attempts(key);
CREATE INDEX IF NOT EXISTS idx_flash_attempts_created_at ON flash_attempts(created_at);
`

// Outcome constants for flash_attempts
const (
	OutcomeVerified       = "verified"
	OutcomeToolFailure    = "tool_failure"
	OutcomeTimeout        = "timeout"
	OutcomeResolutionMiss = "resolution_miss"
)

// Variant is the cached firmware record bound to one trigger key
type Variant struct {
	Key       string `yaml:"key"`
	Version   string `yaml:"version"`
	Path      string `yaml:"path"`
	IsIDF     bool   `yaml:"is_idf"`
	CreatedAt string `yaml:"created_at"`
	UpdatedAt string `yaml:"updated_at"`
}

// FlashAttempt records a single flash outcome
type FlashAttempt struct {
	ID         int64  `yaml:"id"`
	Key        string `yaml:"key"`
	Version    string `yaml:"version"`
	Outcome    string `yaml:"outcome"`
	ExitCode   int    `yaml:"exit_code"`
	Output     string `yaml:"output,omitempty"`
	DurationMS int64  `yaml:"duration_ms"`
	CreatedAt  string `yaml:"created_at"`
}
