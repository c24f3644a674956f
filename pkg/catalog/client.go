package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/sony/gobreaker"
	"github.com/waltr/flashstation/pkg/errors"
)

// maxCatalogSize caps the catalog response body
const maxCatalogSize = 1 << 20

// ClientConfig configures the remote catalog client
type ClientConfig struct {
	URL             string
	Token           string
	Timeout         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
}

// Client fetches the remote catalog. Consecutive failures open a circuit
// breaker so an offline appliance does not wait out the timeout on every cycle.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// NewClient creates a new catalog client
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.BreakerFailures <= 0 {
		cfg.BreakerFailures = 3
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 5 * time.Minute
	}

	slog.Info("catalog_client_init", "url", cfg.URL, "timeout", cfg.Timeout,
		"breaker_failures", cfg.BreakerFailures, "breaker_cooldown", cfg.BreakerCooldown)

	failures := uint32(cfg.BreakerFailures)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// the caller giving up says nothing about the catalog's health
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("catalog_breaker_state_change", "from", from.String(), "to", to.String())
		},
	})

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
	}
}

// Fetch retrieves the catalog. Every error is marked ErrNetworkUnavailable.
func (c *Client) Fetch(ctx context.Context) ([]Entry, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetch(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			slog.Info("catalog_fetch_skipped", "reason", err.Error())
		}
		return nil, errors.Mark(err, errors.ErrNetworkUnavailable)
	}
	return result.([]Entry), nil
}

func (c *Client) fetch(ctx context.Context) ([]Entry, error) {
	slog.Info("catalog_fetch_start", "url", c.cfg.URL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build catalog request")
	}
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", c.cfg.Token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("catalog_fetch_failed", "url", c.cfg.URL, "error", err)
		return nil, errors.Wrap(err, "catalog request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogSize))
	if err != nil {
		slog.Error("catalog_read_failed", "url", c.cfg.URL, "error", err)
		return nil, errors.Wrap(err, "failed to read catalog")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Error("catalog_unexpected_status", "url", c.cfg.URL, "status", resp.StatusCode, "body", truncate(string(body), 256))
		return nil, fmt.Errorf("unexpected catalog status %d", resp.StatusCode)
	}

	entries, err := decodeCatalog(body)
	if err != nil {
		slog.Error("catalog_decode_failed", "url", c.cfg.URL, "error", err)
		return nil, err
	}

	slog.Info("catalog_fetch_complete", "entry_count", len(entries))
	return entries, nil
}

// decodeCatalog parses {"<key>": {"version": ..., "url": ..., "is_idf": ...}}
// into entries sorted by key
func decodeCatalog(body []byte) ([]Entry, error) {
	var raw map[string]Entry
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode catalog")
	}

	entries := make([]Entry, 0, len(raw))
	for key, e := range raw {
		if e.Version == "" || e.URL == "" {
			slog.Warn("catalog_entry_incomplete", "key", key, "version", e.Version, "url", e.URL)
			continue
		}
		e.Key = key
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
