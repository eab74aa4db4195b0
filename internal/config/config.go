package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// TokenEnv overrides UploadToken when set, so the bearer token can stay out of config files.
const TokenEnv = "TABREC_UPLOAD_TOKEN"

// Config holds application configuration.
type Config struct {
	// UploadEndpoint is the remote segment ingestion URL.
	// Empty disables upload on finalize (recordings are still stored locally).
	UploadEndpoint string `json:"upload_endpoint,omitempty" yaml:"upload_endpoint,omitempty"`

	// UploadToken is sent as "Authorization: Bearer <token>".
	UploadToken string `json:"upload_token,omitempty" yaml:"upload_token,omitempty"`

	// UploadSegmentType is the fixed segment_type tag on every segment.
	UploadSegmentType string `json:"upload_segment_type,omitempty" yaml:"upload_segment_type,omitempty"`

	// UploadChunkBytes bounds the serialized size of one segment.
	UploadChunkBytes int `json:"upload_chunk_bytes,omitempty" yaml:"upload_chunk_bytes,omitempty"`

	// UploadRetries is how many times a failed segment is re-sent before the
	// upload aborts. 0 keeps strict fail-fast behavior.
	UploadRetries int `json:"upload_retries,omitempty" yaml:"upload_retries,omitempty"`

	// HandoffDelayMs is the grace delay between stopping capture on the old
	// tab and starting it on the newly activated tab.
	HandoffDelayMs int `json:"handoff_delay_ms,omitempty" yaml:"handoff_delay_ms,omitempty"`

	// SettleDelayMs is the wait after a navigation completes before capture
	// is re-started in the fresh page.
	SettleDelayMs int `json:"settle_delay_ms,omitempty" yaml:"settle_delay_ms,omitempty"`

	// ExcludedURLPrefixes lists URL schemes/prefixes capture never starts on.
	ExcludedURLPrefixes []string `json:"excluded_url_prefixes,omitempty" yaml:"excluded_url_prefixes,omitempty"`

	// RetentionDays makes "purge" without --older-than delete recordings older
	// than this many days. 0 keeps recordings until explicitly deleted.
	RetentionDays int `json:"retention_days,omitempty" yaml:"retention_days,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited).
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" yaml:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" yaml:"db_max_idle_conns,omitempty"`

	// HTTPBind and HTTPPort address the local notification ingress.
	HTTPBind string `json:"http_bind,omitempty" yaml:"http_bind,omitempty"`
	HTTPPort int    `json:"http_port,omitempty" yaml:"http_port,omitempty"`

	// BrowserRemoteURL is the DevTools websocket URL of a running Chrome.
	// Empty launches a local Chrome.
	BrowserRemoteURL string `json:"browser_remote_url,omitempty" yaml:"browser_remote_url,omitempty"`

	// BrowserHeadless launches the local Chrome without a window.
	BrowserHeadless bool `json:"browser_headless,omitempty" yaml:"browser_headless,omitempty"`

	// BrowserStealth opens new tabs with anti-detection patches applied.
	BrowserStealth bool `json:"browser_stealth,omitempty" yaml:"browser_stealth,omitempty"`

	// EngineScript is a path to the capture engine bundle injected into every page.
	EngineScript string `json:"engine_script,omitempty" yaml:"engine_script,omitempty"`

	// LogLevel is one of trace, debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" yaml:"disabled_tools,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		UploadSegmentType: "rrweb",
		UploadChunkBytes:  2 * 1024 * 1024,
		HandoffDelayMs:    500,
		SettleDelayMs:     250,
		ExcludedURLPrefixes: []string{
			"chrome://",
			"chrome-extension://",
			"edge://",
			"about:",
			"devtools://",
		},
		HTTPBind: "127.0.0.1",
		HTTPPort: 7717,
		LogLevel: "info",
	}
}

// HandoffDelay returns HandoffDelayMs as a duration.
func (c *Config) HandoffDelay() time.Duration {
	return time.Duration(c.HandoffDelayMs) * time.Millisecond
}

// SettleDelay returns SettleDelayMs as a duration.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// Load loads configuration from baseDir/config.yaml, falling back to
// baseDir/config.json. Returns default config if neither file exists.
// The token environment variable is applied last.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.tabrec.
func Load(baseDir string) (*Config, error) {
	fileCfg, err := loadFileRaw(filepath.Join(baseDir, "config.yaml"))
	if err != nil {
		return nil, err
	}
	if fileCfg == nil {
		fileCfg, err = loadFileRaw(filepath.Join(baseDir, "config.json"))
		if err != nil {
			return nil, err
		}
	}
	if fileCfg == nil {
		fileCfg = &Config{}
	}

	cfg := Merge(DefaultConfig(), fileCfg)
	if token := strings.TrimSpace(os.Getenv(TokenEnv)); token != "" {
		cfg.UploadToken = token
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns nil (not defaults) if the file doesn't exist.
func loadFileRaw(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	cfg := &Config{}
	switch filepath.Ext(configPath) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	// Scalars: overlay wins if non-zero, else base
	result.UploadEndpoint = firstString(overlay.UploadEndpoint, base.UploadEndpoint)
	result.UploadToken = firstString(overlay.UploadToken, base.UploadToken)
	result.UploadSegmentType = firstString(overlay.UploadSegmentType, base.UploadSegmentType)
	result.HTTPBind = firstString(overlay.HTTPBind, base.HTTPBind)
	result.BrowserRemoteURL = firstString(overlay.BrowserRemoteURL, base.BrowserRemoteURL)
	result.EngineScript = firstString(overlay.EngineScript, base.EngineScript)
	result.LogLevel = firstString(overlay.LogLevel, base.LogLevel)

	result.UploadChunkBytes = firstInt(overlay.UploadChunkBytes, base.UploadChunkBytes)
	result.UploadRetries = firstInt(overlay.UploadRetries, base.UploadRetries)
	result.HandoffDelayMs = firstInt(overlay.HandoffDelayMs, base.HandoffDelayMs)
	result.SettleDelayMs = firstInt(overlay.SettleDelayMs, base.SettleDelayMs)
	result.RetentionDays = firstInt(overlay.RetentionDays, base.RetentionDays)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)
	result.HTTPPort = firstInt(overlay.HTTPPort, base.HTTPPort)

	// Booleans: overlay wins if true, else base
	result.BrowserHeadless = base.BrowserHeadless || overlay.BrowserHeadless
	result.BrowserStealth = base.BrowserStealth || overlay.BrowserStealth

	// Arrays: merge and deduplicate
	result.ExcludedURLPrefixes = mergeStringSlice(base.ExcludedURLPrefixes, overlay.ExcludedURLPrefixes)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)

	return result
}

func firstString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
