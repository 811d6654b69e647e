package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"secopsmcp/internal/config"
	"secopsmcp/internal/domain"
	"secopsmcp/internal/mcpserver"
	"secopsmcp/internal/scope"
	"secopsmcp/internal/tool"

	"github.com/spf13/cobra"
)

var (
	version          = "0.1.0"
	logger           *slog.Logger
	configPath       string // overridable via --config flag
	verbose          bool
	integrationsFlag string
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:           "secopsmcp",
		Short:         "secopsmcp: security actions as MCP tools",
		Long:          "secopsmcp exposes SOAR integration actions, case management and endpoint alert lookups as MCP tools.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.secopsmcp/config.json)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().StringVar(&integrationsFlag, "integrations", "", "comma separated integrations to expose (\"all\" for every one)")

	root.AddCommand(serveCmd())
	root.AddCommand(toolsCmd())
	root.AddCommand(invokeCmd())
	root.AddCommand(authCmd())
	root.AddCommand(configCmd())
	root.AddCommand(sandboxCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func serveCmd() *cobra.Command {
	var transportName, addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the tools over MCP (stdio or SSE)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("transport") {
				cfg.Server.Transport = transportName
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			srv, err := mcpserver.New(a.reg, version, logger)
			if err != nil {
				return err
			}

			switch cfg.Server.Transport {
			case "sse":
				opts := mcpserver.HTTPOptions{Addr: cfg.Server.Addr, BaseURL: cfg.Server.BaseURL}
				if cfg.Metrics.Enabled {
					opts.MetricsPath = cfg.Metrics.Endpoint
				}
				return srv.ServeSSE(ctx, opts)
			case "stdio", "":
				return srv.ServeStdio(ctx, os.Stdin, os.Stdout)
			default:
				return fmt.Errorf("unknown transport %q", cfg.Server.Transport)
			}
		},
	}
	cmd.Flags().StringVarP(&transportName, "transport", "t", "stdio", "MCP transport: stdio or sse")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address for sse")
	return cmd
}

func toolsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tools [query]",
		Short: "List the tools that serve would expose",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defs := a.reg.Definitions()
			if len(args) == 1 {
				defs = a.reg.Search(args[0])
			}

			if asJSON {
				data, _ := json.MarshalIndent(defs, "", "  ")
				fmt.Println(string(data))
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			for _, d := range defs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Name, tool.KindOf(a.reg.Get(d.Name)), firstLine(d.Description))
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print full definitions with input schemas")
	return cmd
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 100 {
		s = s[:97] + "..."
	}
	return s
}

func invokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <tool> [json-arguments]",
		Short: "Run one tool and print its result envelope",
		Long: `Runs a tool exactly as an MCP client would and prints the JSON envelope.
Falcon alert tools authenticate first within the same process.`,
		Example: `  secopsmcp invoke list_cases
  secopsmcp invoke okta_disable_user '{"case_id":"12","alert_group_identifiers":["g1"],"user_i_ds_or_logins":"jdoe"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			toolArgs := map[string]any{}
			if len(args) == 2 {
				if err := json.Unmarshal([]byte(args[1]), &toolArgs); err != nil {
					return fmt.Errorf("arguments must be a JSON object: %w", err)
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			name := args[0]
			if a.reg.Get(name) == nil {
				return fmt.Errorf("unknown tool %q (see 'secopsmcp tools')", name)
			}
			if tool.KindOf(a.reg.Get(name)) == tool.KindFalcon && name != "falcon_authenticate" {
				if env := a.reg.Execute(ctx, "falcon_authenticate", nil); env.IsError {
					return printEnvelope(env)
				}
			}
			return printEnvelope(a.reg.Execute(ctx, name, toolArgs))
		},
	}
}

func printEnvelope(env domain.Envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	if env.IsError {
		return fmt.Errorf("tool failed: %s", env.Kind)
	}
	return nil
}

func authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Check the configured backend credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			failed := 0
			if a.soar.Client.Configured() {
				names, err := scope.Fetch(a.soar.Sessions.Bind(cmd.Context()), a.soar.Client)
				if err != nil {
					logger.Warn("soar check failed", "url", cfg.SOAR.URL, "err", err)
					failed++
				} else {
					logger.Info("soar credentials accepted", "url", cfg.SOAR.URL, "scopes", len(names))
				}
			} else {
				logger.Info("soar not configured")
			}

			if a.falcon.Auth.Configured() {
				env := a.reg.Execute(cmd.Context(), "falcon_authenticate", nil)
				if env.IsError {
					logger.Warn("falcon authentication failed", "message", env.Message)
					failed++
				} else {
					logger.Info("falcon credentials accepted", "apiBase", cfg.Falcon.APIBase)
				}
			} else {
				logger.Info("falcon not configured")
			}

			if failed > 0 {
				return fmt.Errorf("%d credential check(s) failed", failed)
			}
			return nil
		},
	}
}
