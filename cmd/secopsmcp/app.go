package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"secopsmcp/internal/auth"
	"secopsmcp/internal/catalog"
	"secopsmcp/internal/config"
	"secopsmcp/internal/normalize"
	"secopsmcp/internal/oauth"
	"secopsmcp/internal/scope"
	"secopsmcp/internal/security"
	"secopsmcp/internal/tool"
	"secopsmcp/internal/transport"
)

// app is the wired tool stack shared by serve, tools, invoke and auth.
type app struct {
	cfg        *config.Config
	reg        *tool.Registry
	normalizer *normalize.Normalizer
	soar       *tool.SOAR
	falcon     *tool.Falcon
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if verbose {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// loadConfig reads the config file (defaults when absent) and applies flag
// overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefaults(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	if integrationsFlag != "" {
		cfg.General.Integrations = catalog.ParseSelection(integrationsFlag)
	}
	logger = newLogger(cfg.General.LogLevel)
	return cfg, nil
}

func newClient(cfg *config.Config, baseURL string) *transport.Client {
	retry := transport.DefaultRetryPolicy()
	retry.MaxRetries = cfg.Transport.MaxRetries
	return transport.New(transport.Options{
		BaseURL:            strings.TrimRight(baseURL, "/"),
		HTTPClient:         transport.NewHTTPClient(time.Duration(cfg.Transport.TimeoutSeconds)*time.Second, cfg.Transport.KeepAlive),
		Retry:              retry,
		RateLimitPerMinute: cfg.Transport.RateLimitPerMinute,
		UserAgent:          "secopsmcp/" + version,
		Logger:             logger,
	})
}

func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	profiles, err := normalize.DefaultProfiles()
	if err != nil {
		return nil, fmt.Errorf("built-in profiles: %w", err)
	}
	if dir := cfg.Normalize.ProfileDir; dir != "" {
		extra, err := normalize.LoadProfileDir(dir)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, extra...)
	}
	n := normalize.New(profiles, logger)

	soarClient := newClient(cfg, cfg.SOAR.URL)
	var soarSession *auth.Session
	if cfg.SOAR.AppKey != "" {
		soarSession = auth.AppKeySession(cfg.SOAR.AppKey)
	}
	sessions := auth.NewStore(soarSession)

	scopes, err := loadScopes(ctx, cfg, soarClient, sessions)
	if err != nil {
		return nil, err
	}
	soar := tool.NewSOAR(soarClient, sessions, scope.NewResolver(scopes), n, logger)
	soar.DefaultScope = cfg.SOAR.DefaultScope

	falconClient := newClient(cfg, cfg.Falcon.APIBase)
	falcon := &tool.Falcon{
		Client:     falconClient,
		Sessions:   auth.NewStore(nil),
		Auth:       oauth.NewAuthenticator(falconClient, cfg.Falcon.ClientID, cfg.Falcon.ClientSecret, logger),
		Normalizer: n,
		Logger:     logger,
	}

	reg := tool.NewRegistry(logger)
	integrations, err := selectIntegrations(cfg)
	if err != nil {
		return nil, err
	}
	count, err := tool.RegisterCatalog(reg, soar, integrations)
	if err != nil {
		return nil, err
	}
	for _, t := range tool.CaseTools(soar) {
		reg.Register(t)
	}
	for _, t := range tool.FalconTools(falcon) {
		reg.Register(t)
	}
	reg.Register(tool.NewSearchToolsTool(reg, n))
	reg.Register(tool.NewListScopesTool(soar.Scopes, n))

	for name, profile := range cfg.Normalize.Bindings {
		if err := n.Bind(name, profile); err != nil {
			return nil, fmt.Errorf("normalize binding %s: %w", name, err)
		}
	}

	engine, err := security.NewEngine(cfg.Security, n, logger)
	if err != nil {
		return nil, fmt.Errorf("security engine: %w", err)
	}
	if dropped := reg.Filter(engine.Gate); dropped > 0 {
		logger.Info("tools blocked by security policy", "count", dropped)
	}

	logger.Info("tools registered", "total", reg.Len(), "actions", count, "integrations", len(integrations))
	return &app{cfg: cfg, reg: reg, normalizer: n, soar: soar, falcon: falcon}, nil
}

// loadScopes prefers the configured scope list, then the platform's.
func loadScopes(ctx context.Context, cfg *config.Config, client *transport.Client, sessions *auth.Store) ([]string, error) {
	if len(cfg.SOAR.Scopes) > 0 {
		return cfg.SOAR.Scopes, nil
	}
	fallback := []string{cfg.SOAR.DefaultScope}
	if !client.Configured() || !sessions.Current().Valid() {
		return fallback, nil
	}
	fetchCtx, cancel := context.WithTimeout(sessions.Bind(ctx), 30*time.Second)
	defer cancel()
	names, err := scope.Fetch(fetchCtx, client)
	if err != nil {
		logger.Warn("cannot fetch scopes, only the default scope is accepted", "err", err)
		return fallback, nil
	}
	logger.Debug("scopes fetched", "count", len(names))
	return names, nil
}

// selectIntegrations merges the embedded catalog with catalogDir and keeps
// the configured selection. "all" selects everything.
func selectIntegrations(cfg *config.Config) ([]catalog.Integration, error) {
	all, err := catalog.Builtin()
	if err != nil {
		return nil, err
	}
	if dir := cfg.General.CatalogDir; dir != "" {
		extra, err := catalog.LoadFromDirectory(dir, logger)
		if err != nil {
			return nil, err
		}
		all = catalog.Merge(all, extra)
	}

	names := cfg.General.Integrations
	for _, n := range names {
		if strings.EqualFold(n, "all") {
			return all, nil
		}
	}
	selected, unknown := catalog.Filter(all, names)
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown integrations: %s", strings.Join(unknown, ", "))
	}
	return selected, nil
}
