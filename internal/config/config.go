package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Config is the root configuration for secopsmcp.
type Config struct {
	General   GeneralConfig   `json:"general"`
	SOAR      SOARConfig      `json:"soar"`
	Falcon    FalconConfig    `json:"falcon"`
	Transport TransportConfig `json:"transport"`
	Normalize NormalizeConfig `json:"normalize"`
	Security  SecurityConfig  `json:"security"`
	Server    ServerConfig    `json:"server"`
	Metrics   MetricsConfig   `json:"metrics"`
	Sandbox   SandboxConfig   `json:"sandbox"`
}

type GeneralConfig struct {
	LogLevel     string   `json:"logLevel"`
	Integrations []string `json:"integrations,omitempty"` // catalog integrations exposed as tools; empty = built-in tools only
	CatalogDir   string   `json:"catalogDir,omitempty"`   // extra integration YAML files, merged over the embedded catalog
}

// SOARConfig points at the SOAR platform that runs integration actions.
type SOARConfig struct {
	URL          string   `json:"url"`
	AppKey       string   `json:"appKey"`
	Scopes       []string `json:"scopes,omitempty"` // empty = fetched from the platform at startup
	DefaultScope string   `json:"defaultScope"`
}

// FalconConfig configures the direct OAuth2 alert tools.
type FalconConfig struct {
	APIBase      string `json:"apiBase"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

type TransportConfig struct {
	TimeoutSeconds     int  `json:"timeoutSeconds"`
	MaxRetries         int  `json:"maxRetries"`
	KeepAlive          bool `json:"keepAlive"`
	RateLimitPerMinute int  `json:"rateLimitPerMinute,omitempty"` // 0 = unlimited
}

type NormalizeConfig struct {
	ProfileDir string `json:"profileDir,omitempty"`
	// Bindings maps tool names to extraction profile names.
	Bindings map[string]string `json:"bindings,omitempty"`
}

// SecurityConfig decides which tools are exposed and which need an explicit
// confirmation argument.
type SecurityConfig struct {
	DefaultPolicy   string   `json:"defaultPolicy"` // "allow" | "deny" | "confirm"
	Blacklist       []string `json:"blacklist"`
	Whitelist       []string `json:"whitelist"`
	ConfirmPatterns []string `json:"confirmPatterns"`
}

type ServerConfig struct {
	Transport string `json:"transport"` // "stdio" | "sse"
	Addr      string `json:"addr"`
	BaseURL   string `json:"baseUrl,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint served next to SSE.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// SandboxConfig configures the local fake backend.
type SandboxConfig struct {
	DBPath       string `json:"dbPath"`
	Addr         string `json:"addr"`
	AppKey       string `json:"appKey"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret"`
}

// DefaultConfigDir returns the default config directory (~/.secopsmcp).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".secopsmcp"
	}
	return filepath.Join(home, ".secopsmcp")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadOrDefaults is Load, except that a missing file yields the defaults.
// Environment overrides apply either way.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return finish(Defaults())
	}
	return cfg, err
}

func finish(cfg *Config) (*Config, error) {
	ApplyEnv(cfg)
	cfg.General.CatalogDir = ExpandPath(cfg.General.CatalogDir)
	cfg.Normalize.ProfileDir = ExpandPath(cfg.Normalize.ProfileDir)
	cfg.Sandbox.DBPath = ExpandPath(cfg.Sandbox.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Environment variables that override the file, matching the names the
// backend tooling has always used.
const (
	EnvSOARURL            = "SOAR_URL"
	EnvSOARAppKey         = "SOAR_APP_KEY"
	EnvFalconAPIBase      = "FALCON_API_BASE"
	EnvFalconClientID     = "FALCON_CLIENT_ID"
	EnvFalconClientSecret = "FALCON_CLIENT_SECRET"
)

// ApplyEnv overwrites connection settings with any non-empty environment
// variable.
func ApplyEnv(cfg *Config) {
	for env, dst := range map[string]*string{
		EnvSOARURL:            &cfg.SOAR.URL,
		EnvSOARAppKey:         &cfg.SOAR.AppKey,
		EnvFalconAPIBase:      &cfg.Falcon.APIBase,
		EnvFalconClientID:     &cfg.Falcon.ClientID,
		EnvFalconClientSecret: &cfg.Falcon.ClientSecret,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	// The file carries the app key and client secret.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.SOAR.URL != "" && !isHTTPURL(cfg.SOAR.URL) {
		errs = append(errs, "soar.url must be an http(s) URL")
	}
	if cfg.Falcon.APIBase != "" && !isHTTPURL(cfg.Falcon.APIBase) {
		errs = append(errs, "falcon.apiBase must be an http(s) URL")
	}
	if cfg.SOAR.DefaultScope == "" {
		errs = append(errs, "soar.defaultScope must not be empty")
	}

	if cfg.Transport.TimeoutSeconds < 1 || cfg.Transport.TimeoutSeconds > 600 {
		errs = append(errs, "transport.timeoutSeconds must be between 1 and 600")
	}
	if cfg.Transport.MaxRetries < 0 || cfg.Transport.MaxRetries > 10 {
		errs = append(errs, "transport.maxRetries must be between 0 and 10")
	}
	if cfg.Transport.RateLimitPerMinute < 0 {
		errs = append(errs, "transport.rateLimitPerMinute must be >= 0")
	}

	switch cfg.Security.DefaultPolicy {
	case "allow", "deny", "confirm":
		// valid
	default:
		errs = append(errs, "security.defaultPolicy must be one of: allow, deny, confirm")
	}

	switch cfg.Server.Transport {
	case "stdio":
	case "sse":
		if cfg.Server.Addr == "" {
			errs = append(errs, "server.addr is required for the sse transport")
		}
	default:
		errs = append(errs, "server.transport must be one of: stdio, sse")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
