package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"secopsmcp/internal/config"

	"github.com/spf13/cobra"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the config file",
		Long:  "Secrets are masked on output. 'set' validates the result before writing it back.",
	}
	cmd.AddCommand(configInitCmd(), configGetCmd(), configSetCmd(), configListCmd(), configPathCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	c := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := resolveConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists, pass --force to overwrite it", path)
			}
			if err := config.Save(path, config.Defaults()); err != nil {
				return err
			}
			logger.Info("config written", "file", path)
			return nil
		},
	}
	c.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return c
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <path>",
		Short: "Print one value, e.g. soar.defaultScope",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefaults(resolveConfigPath())
			if err != nil {
				return err
			}
			val, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			return printJSON(val)
		},
	}
}

func configSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Change one value, e.g. transport.maxRetries 3 (lists are comma separated)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigPath()
			cfg, err := config.LoadOrDefaults(path)
			if err != nil {
				return err
			}
			key, value := args[0], args[1]
			if err := config.SetByPath(cfg, key, value); err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("%s rejected: %w", key, err)
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			logger.Info("config updated", "key", key, "file", path)
			return nil
		},
	}
}

func configListCmd() *cobra.Command {
	var asJSON bool
	c := &cobra.Command{
		Use:   "list",
		Short: "Print every value as path = value",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadOrDefaults(resolveConfigPath())
			if err != nil {
				return err
			}
			safe := config.Sanitize(cfg)
			if asJSON {
				return printJSON(safe)
			}
			leaves := config.ListPaths(safe)
			keys := make([]string, 0, len(leaves))
			for k := range leaves {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				v, _ := json.Marshal(leaves[k])
				fmt.Printf("%s = %s\n", k, v)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&asJSON, "json", false, "print the whole document as JSON")
	return c
}

func configPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Println(resolveConfigPath())
		},
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
