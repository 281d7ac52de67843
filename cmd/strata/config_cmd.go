// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"strata/internal/config"
	"strata/internal/issue"

	"github.com/spf13/cobra"
)

// newConfigCommand creates the `strata config` command tree.
func newConfigCommand() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage strata configuration",
		Long: `Manage strata configuration.

Configuration is stored in:
  - Linux: ~/.config/strata/config.cue
  - macOS: ~/Library/Application Support/strata/config.cue
  - Windows: %APPDATA%\strata\config.cue

Every value can also be set through STRATA_* environment variables,
e.g. STRATA_CONTAINER_ENGINE=podman or STRATA_BUILD_CACHE_DIR=/tmp/s.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig(cmd.Context())
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return initConfigFile()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfigPath()
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Output raw configuration as CUE",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Print(config.GenerateCUE(cfg))
			return nil
		},
	})

	return cfgCmd
}

func showConfig(ctx context.Context) error {
	cfg, path, err := config.LoadWithPath(ctx, config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		renderIssue(issue.ConfigLoadFailedId, "")
		return err
	}

	keyStyle := RefStyle
	valueStyle := SuccessStyle

	fmt.Println(TitleStyle.Render("Current Configuration"))
	fmt.Println()

	if path != "" {
		fmt.Printf("%s: %s\n", keyStyle.Render("Config file"), path)
	} else {
		fmt.Printf("%s: %s\n", keyStyle.Render("Config file"), SubtitleStyle.Render("(using defaults)"))
	}
	fmt.Println()

	fmt.Printf("%s: %s\n", keyStyle.Render("container_engine"), valueStyle.Render(string(cfg.ContainerEngine)))
	fmt.Printf("%s: %s\n", keyStyle.Render("executor"), valueStyle.Render(string(cfg.Executor)))

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("build"))
	fmt.Printf("  force_rebuild: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.Build.ForceRebuild)))
	fmt.Printf("  strict_bindings: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.Build.StrictBindings)))
	fmt.Printf("  layer_repository: %s\n", valueStyle.Render(cfg.Build.LayerRepository))
	if cfg.Build.CacheDir != "" {
		fmt.Printf("  cache_dir: %s\n", valueStyle.Render(string(cfg.Build.CacheDir)))
	} else if def, err := config.CacheDir(); err == nil {
		fmt.Printf("  cache_dir: %s\n", SubtitleStyle.Render(def+" (default)"))
	}

	fmt.Println()
	fmt.Printf("%s:\n", keyStyle.Render("ui"))
	fmt.Printf("  color_scheme: %s\n", valueStyle.Render(string(cfg.UI.ColorScheme)))
	fmt.Printf("  verbose: %s\n", valueStyle.Render(fmt.Sprintf("%v", cfg.UI.Verbose)))

	return nil
}

func initConfigFile() error {
	if err := config.CreateDefaultConfig(); err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}

	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(cfgDir, "config.cue")
	fmt.Printf("%s Created %s\n", SuccessStyle.Render("✓"), cfgPath)
	return nil
}

func showConfigPath() error {
	cfgDir, err := config.ConfigDir()
	if err != nil {
		return err
	}

	cfgPath := filepath.Join(cfgDir, "config.cue")
	fmt.Println(cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Fprintln(os.Stderr, SubtitleStyle.Render("(file does not exist yet; run 'strata config init')"))
	}
	return nil
}
