package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"secopsmcp/internal/catalog"
	"secopsmcp/internal/config"
	"secopsmcp/internal/sandbox"

	"github.com/spf13/cobra"
)

func sandboxCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandbox",
		Short: "Run a local fake SOAR and Falcon backend",
		Long: `The sandbox answers the SOAR and Falcon endpoints the tools call, backed by
SQLite. Point soar.url and falcon.apiBase at it with the sandbox credentials.`,
	}

	var addr string
	var seed bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve the sandbox backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Sandbox.Addr
			}
			store, err := openSandbox(cfg, seed)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Fprintf(os.Stderr, "sandbox on http://%s\n  %s=http://%s %s=%s\n  %s=http://%s %s=%s %s=%s\n",
				addr,
				config.EnvSOARURL, addr, config.EnvSOARAppKey, cfg.Sandbox.AppKey,
				config.EnvFalconAPIBase, addr, config.EnvFalconClientID, cfg.Sandbox.ClientID,
				config.EnvFalconClientSecret, cfg.Sandbox.ClientSecret)

			srv := sandbox.NewServer(store, sandbox.Credentials{
				AppKey:       cfg.Sandbox.AppKey,
				ClientID:     cfg.Sandbox.ClientID,
				ClientSecret: cfg.Sandbox.ClientSecret,
			}, logger)
			return srv.Start(ctx, addr)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (default sandbox.addr)")
	serve.Flags().BoolVar(&seed, "seed", false, "load demo data before serving")
	cmd.AddCommand(serve)

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Load demo scopes, instances, a case and endpoint alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openSandbox(cfg, true)
			if err != nil {
				return err
			}
			defer store.Close()
			logger.Info("sandbox seeded", "db", cfg.Sandbox.DBPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "executions",
		Short: "Print the manual actions the sandbox has recorded",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := openSandbox(cfg, false)
			if err != nil {
				return err
			}
			defer store.Close()
			execs, err := store.Executions(cmd.Context())
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(execs, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	return cmd
}

func openSandbox(cfg *config.Config, seed bool) (*sandbox.Store, error) {
	store, err := sandbox.Open(cfg.Sandbox.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("sandbox store: %w", err)
	}
	if !seed {
		return store, nil
	}
	integrations, err := catalog.Builtin()
	if err != nil {
		store.Close()
		return nil, err
	}
	names := make([]string, 0, len(integrations))
	for _, in := range integrations {
		names = append(names, in.Name)
	}
	if err := store.Seed(context.Background(), names); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}
