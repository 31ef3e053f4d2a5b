// Package config loads client settings from the environment (with .env
// support) and from the server's published runtime configuration.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/straychat/straychat/internal/util"
)

// discoverTimeout bounds the runtime-config fetch; on timeout the static
// defaults stand.
const discoverTimeout = 5 * time.Second

// Defaults applied when the environment does not say otherwise.
const (
	DefaultServerURL    = "wss://chat.straychat.net/ws"
	DefaultMode         = "text"
	DefaultTypingIdleMS = 1400
)

// Config stores all parameters the client runs with.
type Config struct {
	ServerURL    string // WebSocket URL of the matchmaking server
	Mode         string // "text" or "video"
	DataDir      string // where the moderation store lives
	TypingIdleMS int    // keyboard idle window before doneTyping
}

// Load reads configuration from a .env file (if present) and the process
// environment. Environment variables win over .env values.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		ServerURL:    envOr("STRAYCHAT_SERVER_URL", DefaultServerURL),
		Mode:         envOr("STRAYCHAT_MODE", DefaultMode),
		DataDir:      envOr("STRAYCHAT_DATA_DIR", defaultDataDir()),
		TypingIdleMS: DefaultTypingIdleMS,
	}

	if raw := os.Getenv("STRAYCHAT_TYPING_IDLE_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid STRAYCHAT_TYPING_IDLE_MS %q", raw)
		}
		cfg.TypingIdleMS = ms
	}

	if cfg.Mode != "text" && cfg.Mode != "video" {
		return nil, fmt.Errorf("invalid STRAYCHAT_MODE %q (want text or video)", cfg.Mode)
	}
	return cfg, nil
}

// TypingIdle returns the idle window as a duration.
func (c *Config) TypingIdle() time.Duration {
	return time.Duration(c.TypingIdleMS) * time.Millisecond
}

// Remote is the server-published runtime configuration.
type Remote struct {
	SignalURL    string `json:"signal_url,omitempty"`
	TypingIdleMS int    `json:"typing_idle_ms,omitempty"`
	MOTD         string `json:"motd,omitempty"`
}

// Discover fetches /config.json from baseURL and merges it into cfg.
// Failure or timeout is not fatal: the static configuration stands.
func Discover(ctx context.Context, baseURL string, cfg *Config) *Remote {
	ctx, cancel := context.WithTimeout(ctx, discoverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/config.json", nil)
	if err != nil {
		util.LogDebug("runtime config request: %v", err)
		return nil
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		util.LogDebug("runtime config fetch: %v", err)
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		util.LogDebug("runtime config fetch: status %d", resp.StatusCode)
		return nil
	}

	var remote Remote
	if err := json.NewDecoder(resp.Body).Decode(&remote); err != nil {
		util.LogWarning("runtime config decode: %v", err)
		return nil
	}

	if remote.SignalURL != "" {
		cfg.ServerURL = remote.SignalURL
	}
	if remote.TypingIdleMS > 0 {
		cfg.TypingIdleMS = remote.TypingIdleMS
	}
	return &remote
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "straychat")
}
