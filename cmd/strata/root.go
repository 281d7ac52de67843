// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"strata/internal/config"
	"strata/internal/issue"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables verbose output
	verbose bool
	// cfgFile allows specifying a custom config file
	cfgFile string
	// engineOverride forces a container engine regardless of configuration
	engineOverride string
	// executorOverride forces an executor mode regardless of configuration
	executorOverride string

	// logger is the shared structured logger for all commands.
	logger = log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "strata",
	})

	// rootCmd represents the base command when called without any subcommands
	rootCmd = &cobra.Command{
		Use:   "strata",
		Short: "A layered, idempotent environment provisioner",
		Long: TitleStyle.Render("strata") + SubtitleStyle.Render(" - A layered, idempotent environment provisioner") + `

strata builds reproducible runtime environments from declarative CUE
recipes. Every provisioning step becomes a content-addressed layer, so
unchanged step prefixes are reused across rebuilds instead of re-run.

Recipes pin an immutable base image, declare service accounts and
environment bindings, and end in a single foreground entrypoint.

` + SubtitleStyle.Render("Quick Start:") + `
  1. Create a recipe.cue in your project directory
  2. Declare a base image, steps and an entrypoint
  3. Build and start it with: strata up

` + SubtitleStyle.Render("Examples:") + `
  strata init               Create a starter recipe.cue
  strata validate           Check the recipe without building
  strata plan               Show the layer plan without building
  strata build              Provision all layers and finalize the image
  strata up                 Build (cached) and start the entrypoint
  strata explain            Describe the last build from the lock file`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/strata/config.cue)")
	rootCmd.PersistentFlags().StringVar(&engineOverride, "engine", "", "container engine to use (docker, podman)")
	rootCmd.PersistentFlags().StringVar(&executorOverride, "executor", "", "layer executor to use (engine, virtual)")

	// Add subcommands
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(upCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(newConfigCommand())
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	// Use fang.Execute for enhanced Cobra styling.
	// Pass version via fang.WithVersion() since fang overrides rootCmd.Version.
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(int(exitErr.Code))
		}
		os.Exit(1)
	}
}

// initRootConfig applies the --verbose flag and config-derived defaults
// before any command runs.
func initRootConfig() {
	cfg, err := loadConfig(context.Background())
	if err != nil {
		// Config problems must never block a command that can run on
		// defaults, but they are always surfaced.
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
	}

	if cfg != nil && !verbose {
		verbose = cfg.UI.Verbose
	}
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
}

// loadConfig loads the configuration and layers CLI flag overrides on top.
// Flag overrides are validated like file values so a typo in --engine fails
// the same way a typo in config.cue does.
func loadConfig(ctx context.Context) (*config.Config, error) {
	cfg, err := config.NewProvider().Load(ctx, config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		return cfg, err
	}

	if engineOverride != "" {
		cfg.ContainerEngine = config.ContainerEngine(engineOverride)
	}
	if executorOverride != "" {
		cfg.Executor = config.ExecutorMode(executorOverride)
	}
	if ok, errs := cfg.IsValid(); !ok {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// formatErrorForDisplay formats an error for user display.
// If the error is an ActionableError, it uses the Format method.
// In verbose mode, shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}

// renderIssue writes the knowledge-base article for the given issue to
// stderr so failures come with recovery steps, not just an error line.
func renderIssue(id issue.Id, scheme string) {
	if scheme == "" {
		scheme = "dark"
	}
	if rendered, err := issue.Get(id).Render(scheme); err == nil {
		fmt.Fprint(os.Stderr, rendered)
	}
}
