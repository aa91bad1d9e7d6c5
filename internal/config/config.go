package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Log       LogConfig
	Browser   BrowserConfig
	Recorder  RecorderConfig
	Redaction RedactionConfig
	Telemetry TelemetryConfig
	MCP       MCPConfig

	// APIToken guards the control API. It lives in the secret store.
	APIToken string
}

type ServerConfig struct {
	Port int
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type BrowserConfig struct {
	Enabled        bool
	DebuggerURL    string
	Bin            string
	Headless       bool
	ViewportWidth  int
	ViewportHeight int
	StartURL       string
}

type RecorderConfig struct {
	ScanLimit          int
	CaptureScreenshots bool
	CaptureDOMState    bool
	ScrollDebounceMs   int
	PostDelayMs        int
	ScrollPostDelayMs  int
	Keys               string
}

type RedactionConfig struct {
	ExtraFieldPatterns string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
	Insecure     bool
}

type MCPConfig struct {
	Enabled bool
}

func defaults() Config {
	return Config{
		Server:    ServerConfig{Port: 4100},
		Storage:   StorageConfig{DataDir: defaultDataDir()},
		Log:       LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{ServiceName: "steptrace"},
		Browser: BrowserConfig{
			Enabled:        true,
			ViewportWidth:  1280,
			ViewportHeight: 800,
			StartURL:       "about:blank",
		},
		Recorder: RecorderConfig{
			ScanLimit:          60,
			CaptureScreenshots: true,
			CaptureDOMState:    true,
			ScrollDebounceMs:   250,
			PostDelayMs:        500,
			ScrollPostDelayMs:  200,
			Keys:               "Enter,Escape,Tab",
		},
	}
}

// Load reads configuration from the platform-native backend, environment
// variables, and platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.steptrace.app) and the
// API token lives in the Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/steptrace/config.json
// and the token lives in $XDG_DATA_HOME/steptrace/secrets.json.
//
// Environment variables (STEPTRACE_*) override backend values on all platforms.
// A missing API token is generated and stored on first use.
func Load() (Config, error) {
	return loadWith(newPlatformBackend(), newSecretStore())
}

const (
	secretService = "steptrace"
	tokenAccount  = "api_token"
)

func loadWith(b ConfigBackend, secrets SecretStore) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if cfg.APIToken == "" {
		if tok, err := secrets.Get(secretService, tokenAccount); err == nil && tok != "" {
			cfg.APIToken = tok
		}
	}
	if cfg.APIToken == "" {
		tok, err := newToken()
		if err != nil {
			return Config{}, fmt.Errorf("generating api token: %w", err)
		}
		if err := secrets.Set(secretService, tokenAccount, tok); err != nil {
			return Config{}, fmt.Errorf("storing api token in %s: %w", tokenHint(), err)
		}
		cfg.APIToken = tok
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port %d out of range", c.Server.Port)
	}
	if c.Recorder.ScanLimit <= 0 {
		return fmt.Errorf("invalid config: recorder.scan_limit must be positive, got %d", c.Recorder.ScanLimit)
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid config: log.level %q (want debug, info, warn or error)", c.Log.Level)
	}
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// KeyList returns the recorded key allowlist.
func (r RecorderConfig) KeyList() []string {
	return splitList(r.Keys)
}

// Patterns returns the extra sensitive field name fragments.
func (r RedactionConfig) Patterns() []string {
	return splitList(r.ExtraFieldPatterns)
}

func (r RecorderConfig) ScrollDebounce() time.Duration {
	return time.Duration(r.ScrollDebounceMs) * time.Millisecond
}

func (r RecorderConfig) PostDelay() time.Duration {
	return time.Duration(r.PostDelayMs) * time.Millisecond
}

func (r RecorderConfig) ScrollPostDelay() time.Duration {
	return time.Duration(r.ScrollPostDelayMs) * time.Millisecond
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
