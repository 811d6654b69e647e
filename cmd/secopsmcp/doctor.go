package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"secopsmcp/internal/config"
	"secopsmcp/internal/sandbox"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your secopsmcp installation",
		Long: `Verifies that the configuration, backend connections, catalog, and
sandbox database are set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("secopsmcp doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s, using defaults and environment", cfgPath))
				warned++
			} else {
				printPass("Config file", cfgPath)
				passed++
			}

			// 2. Config loads and validates
			cfg, err := config.LoadOrDefaults(cfgPath)
			if err != nil {
				printFail("Config validation", err.Error())
				failed++
				fmt.Printf("\n%d passed, %d failed\n", passed, failed)
				return fmt.Errorf("invalid configuration")
			}
			printPass("Config validation", "valid")
			passed++

			// 3. Catalog
			integrations, err := selectIntegrations(cfg)
			switch {
			case err != nil:
				printFail("Catalog", err.Error())
				failed++
			case len(integrations) == 0:
				printWarn("Catalog", "no integrations selected, only case and alert tools are exposed")
				warned++
			default:
				actions := 0
				for _, in := range integrations {
					actions += len(in.Actions)
				}
				printPass("Catalog", fmt.Sprintf("%d integrations, %d actions", len(integrations), actions))
				passed++
			}

			// 4. Backends
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()
			for _, b := range []struct {
				name, url string
				creds     bool
			}{
				{"SOAR", cfg.SOAR.URL, cfg.SOAR.AppKey != ""},
				{"Falcon", cfg.Falcon.APIBase, cfg.Falcon.ClientID != "" && cfg.Falcon.ClientSecret != ""},
			} {
				switch {
				case b.url == "":
					printWarn(b.name, "not configured")
					warned++
				case !b.creds:
					printFail(b.name, "URL set but credentials missing")
					failed++
				default:
					if err := checkReachable(ctx, b.url); err != nil {
						printFail(b.name, err.Error())
						failed++
					} else {
						printPass(b.name, b.url+" reachable")
						passed++
					}
				}
			}

			// 5. Sandbox database
			if err := checkSandbox(cfg.Sandbox.DBPath); err != nil {
				printWarn("Sandbox database", err.Error())
				warned++
			} else {
				printPass("Sandbox database", cfg.Sandbox.DBPath)
				passed++
			}

			// 6. SSE port
			if cfg.Server.Transport == "sse" {
				if err := checkPort(cfg.Server.Addr); err != nil {
					printWarn("SSE address", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr, err))
					warned++
				} else {
					printPass("SSE address", cfg.Server.Addr+" available")
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before running secopsmcp.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nsecopsmcp should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! secopsmcp is ready to serve.\n")
			}
			return nil
		},
	}
}

// checkReachable dials the host of rawURL; it does not authenticate.
func checkReachable(ctx context.Context, rawURL string) error {
	host, err := hostPort(rawURL)
	if err != nil {
		return err
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", host)
	if err != nil {
		return fmt.Errorf("cannot connect: %w", err)
	}
	conn.Close()
	return nil
}

func checkSandbox(dbPath string) error {
	store, err := sandbox.Open(config.ExpandPath(dbPath), logger)
	if err != nil {
		return err
	}
	defer store.Close()
	if _, err := store.Scopes(context.Background()); err != nil {
		return fmt.Errorf("cannot query: %w", err)
	}
	return nil
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	ln.Close()
	return nil
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}


func hostPort(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid URL %q", rawURL)
	}
	if u.Port() != "" {
		return u.Host, nil
	}
	if u.Scheme == "https" {
		return net.JoinHostPort(u.Hostname(), "443"), nil
	}
	return net.JoinHostPort(u.Hostname(), "80"), nil
}
