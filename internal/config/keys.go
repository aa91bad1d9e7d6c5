package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "STEPTRACE_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.api_token", typ: kString, env: "STEPTRACE_API_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.APIToken },
	},
	{
		key: "storage.data_dir", typ: kString, env: "STEPTRACE_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "log.level", typ: kString, env: "STEPTRACE_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "browser.enabled", typ: kBool, env: "STEPTRACE_BROWSER_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Browser.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Browser.Enabled },
	},
	{
		key: "browser.debugger_url", typ: kString, env: "STEPTRACE_BROWSER_DEBUGGER_URL",
		apply:   func(cfg *Config, v any) { cfg.Browser.DebuggerURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Browser.DebuggerURL },
	},
	{
		key: "browser.bin", typ: kString, env: "STEPTRACE_BROWSER_BIN",
		apply:   func(cfg *Config, v any) { cfg.Browser.Bin = v.(string) },
		extract: func(cfg Config) any { return cfg.Browser.Bin },
	},
	{
		key: "browser.headless", typ: kBool, env: "STEPTRACE_BROWSER_HEADLESS",
		apply:   func(cfg *Config, v any) { cfg.Browser.Headless = v.(bool) },
		extract: func(cfg Config) any { return cfg.Browser.Headless },
	},
	{
		key: "browser.viewport_width", typ: kInt, env: "STEPTRACE_BROWSER_VIEWPORT_WIDTH",
		apply:   func(cfg *Config, v any) { cfg.Browser.ViewportWidth = v.(int) },
		extract: func(cfg Config) any { return cfg.Browser.ViewportWidth },
	},
	{
		key: "browser.viewport_height", typ: kInt, env: "STEPTRACE_BROWSER_VIEWPORT_HEIGHT",
		apply:   func(cfg *Config, v any) { cfg.Browser.ViewportHeight = v.(int) },
		extract: func(cfg Config) any { return cfg.Browser.ViewportHeight },
	},
	{
		key: "browser.start_url", typ: kString, env: "STEPTRACE_BROWSER_START_URL",
		apply:   func(cfg *Config, v any) { cfg.Browser.StartURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Browser.StartURL },
	},
	{
		key: "recorder.scan_limit", typ: kInt, env: "STEPTRACE_RECORDER_SCAN_LIMIT",
		apply:   func(cfg *Config, v any) { cfg.Recorder.ScanLimit = v.(int) },
		extract: func(cfg Config) any { return cfg.Recorder.ScanLimit },
	},
	{
		key: "recorder.capture_screenshots", typ: kBool, env: "STEPTRACE_RECORDER_CAPTURE_SCREENSHOTS",
		apply:   func(cfg *Config, v any) { cfg.Recorder.CaptureScreenshots = v.(bool) },
		extract: func(cfg Config) any { return cfg.Recorder.CaptureScreenshots },
	},
	{
		key: "recorder.capture_dom_state", typ: kBool, env: "STEPTRACE_RECORDER_CAPTURE_DOM_STATE",
		apply:   func(cfg *Config, v any) { cfg.Recorder.CaptureDOMState = v.(bool) },
		extract: func(cfg Config) any { return cfg.Recorder.CaptureDOMState },
	},
	{
		key: "recorder.scroll_debounce_ms", typ: kInt, env: "STEPTRACE_RECORDER_SCROLL_DEBOUNCE_MS",
		apply:   func(cfg *Config, v any) { cfg.Recorder.ScrollDebounceMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Recorder.ScrollDebounceMs },
	},
	{
		key: "recorder.post_delay_ms", typ: kInt, env: "STEPTRACE_RECORDER_POST_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Recorder.PostDelayMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Recorder.PostDelayMs },
	},
	{
		key: "recorder.scroll_post_delay_ms", typ: kInt, env: "STEPTRACE_RECORDER_SCROLL_POST_DELAY_MS",
		apply:   func(cfg *Config, v any) { cfg.Recorder.ScrollPostDelayMs = v.(int) },
		extract: func(cfg Config) any { return cfg.Recorder.ScrollPostDelayMs },
	},
	{
		key: "recorder.keys", typ: kString, env: "STEPTRACE_RECORDER_KEYS",
		apply:   func(cfg *Config, v any) { cfg.Recorder.Keys = v.(string) },
		extract: func(cfg Config) any { return cfg.Recorder.Keys },
	},
	{
		key: "redaction.extra_field_patterns", typ: kString, env: "STEPTRACE_REDACTION_EXTRA_FIELD_PATTERNS",
		apply:   func(cfg *Config, v any) { cfg.Redaction.ExtraFieldPatterns = v.(string) },
		extract: func(cfg Config) any { return cfg.Redaction.ExtraFieldPatterns },
	},
	{
		key: "telemetry.otlp_endpoint", typ: kString, env: "STEPTRACE_TELEMETRY_OTLP_ENDPOINT",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.OTLPEndpoint = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.OTLPEndpoint },
	},
	{
		key: "telemetry.service_name", typ: kString, env: "STEPTRACE_TELEMETRY_SERVICE_NAME",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.ServiceName = v.(string) },
		extract: func(cfg Config) any { return cfg.Telemetry.ServiceName },
	},
	{
		key: "telemetry.insecure", typ: kBool, env: "STEPTRACE_TELEMETRY_INSECURE",
		apply:   func(cfg *Config, v any) { cfg.Telemetry.Insecure = v.(bool) },
		extract: func(cfg Config) any { return cfg.Telemetry.Insecure },
	},
	{
		key: "mcp.enabled", typ: kBool, env: "STEPTRACE_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.MCP.Enabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.MCP.Enabled },
	},
}

// parse converts a raw string into the value type of s.
func (s keySpec) parse(raw string) (any, error) {
	switch s.typ {
	case kInt:
		return strconv.Atoi(strings.TrimSpace(raw))
	case kBool:
		return strconv.ParseBool(strings.TrimSpace(raw))
	default:
		return raw, nil
	}
}

func (s keySpec) typeName() string {
	switch s.typ {
	case kInt:
		return "integer"
	case kBool:
		return "bool"
	default:
		return "string"
	}
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		if s.typ == kInt {
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
			continue
		}
		raw, ok, err := b.GetString(s.key)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		if !ok || (s.typ == kBool && raw == "") {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from config key %s=%q: %v. Using default value.\n", s.typeName(), s.key, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		v, err := s.parse(raw)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[WARN] could not parse %s from env var %s=%q: %v. Using default value.\n", s.typeName(), s.env, raw, err)
			continue
		}
		s.apply(cfg, v)
	}
}
