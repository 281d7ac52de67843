// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"strata/internal/build"
	"strata/internal/config"
	"strata/internal/engine"
	"strata/internal/issue"
	"strata/internal/launch"
	"strata/pkg/recipe"

	"github.com/spf13/cobra"
)

var (
	upForce       bool
	upNoBuild     bool
	upInteractive bool
	upUser        string
	upWorkDir     string
	upPrivileged  bool
	upEnvVars     []string
	upVolumes     []string

	// upCmd builds the environment (reusing cached layers) and starts its
	// entrypoint as the single foreground process.
	upCmd = &cobra.Command{
		Use:   "up [recipe] [-- command...]",
		Short: "Build the environment and start its entrypoint",
		Long: `Build the environment described by a recipe and start it.

The build reuses every cached layer, so an unchanged recipe starts
almost immediately. The entrypoint runs as the single foreground
process; when it exits, the environment is gone and its exit code
becomes strata's exit code. There is no restart policy.

Arguments after -- replace the recipe's entrypoint command.

Examples:
  strata up                         Build and start ./recipe.cue
  strata up --env HOST=db.local     Overlay a runtime variable
  strata up -- /bin/bash            Start a shell instead of the entrypoint`,
		RunE: runUp,
	}
)

func init() {
	upCmd.Flags().BoolVarP(&upForce, "force", "f", false, "re-apply every step, ignoring cached layers")
	upCmd.Flags().BoolVar(&upNoBuild, "no-build", false, "start the image recorded in the lock file without building")
	upCmd.Flags().BoolVarP(&upInteractive, "interactive", "i", false, "keep stdin open and allocate a TTY")
	upCmd.Flags().StringVar(&upUser, "user", "", "override the identity the entrypoint runs as")
	upCmd.Flags().StringVar(&upWorkDir, "workdir", "", "override the entrypoint working directory")
	upCmd.Flags().BoolVar(&upPrivileged, "privileged", false, "start the container with extended privileges")
	upCmd.Flags().StringArrayVarP(&upEnvVars, "env", "e", nil, "runtime variable in KEY=VALUE form (repeatable)")
	upCmd.Flags().StringArrayVar(&upVolumes, "volume", nil, "bind mount in host:container form (repeatable)")
}

func runUp(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true

	cfg, err := loadConfig(cmd.Context())
	if err != nil {
		return err
	}
	if cfg.Executor == config.ExecutorVirtual {
		return issue.NewErrorContext().
			WithOperation("start environment").
			WithSuggestion("Virtual-executor builds produce host directory snapshots, not runnable images").
			WithSuggestion("Re-run with '--executor engine' to build a startable image").
			Wrap(fmt.Errorf("executor %q cannot start environments", cfg.Executor)).
			BuildError()
	}

	recipeArgs, command := splitCommandArgs(cmd, args)

	extraEnv, err := parseEnvVars(upEnvVars)
	if err != nil {
		return err
	}

	imageRef, rec, err := upImage(cmd, cfg, recipeArgs)
	if err != nil {
		return err
	}

	eng, err := newEngineForConfig(cfg)
	if err != nil {
		return err
	}

	launcher := launch.New(eng, launch.WithLogger(logger.With("component", "launch")))
	result, err := launcher.Run(cmd.Context(), launch.Spec{
		Image:       imageRef,
		Command:     command,
		User:        upUser,
		WorkDir:     upWorkDir,
		Env:         extraEnv,
		Volumes:     upVolumes,
		Privileged:  launchPrivileged(rec),
		Interactive: upInteractive,
		TTY:         upInteractive,
		Stdin:       cmd.InOrStdin(),
		Stdout:      cmd.OutOrStdout(),
		Stderr:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return err
	}

	return exitFromResult(cmd, result)
}

// upImage returns the image to start and the recipe describing it: a fresh
// (cache-heavy) build, or with --no-build the image the last build recorded
// in the lock file.
func upImage(cmd *cobra.Command, cfg *config.Config, recipeArgs []string) (string, *recipe.Recipe, error) {
	recipePath := resolveRecipePath(recipeArgs)

	if upNoBuild {
		rec, err := loadRecipe(recipePath)
		if err != nil {
			return "", nil, err
		}
		lock, err := readLock(lockPathFor(rec), string(cfg.UI.ColorScheme))
		if err != nil {
			return "", nil, err
		}
		return lock.Image, rec, nil
	}

	result, rec, err := runBuild(cmd.Context(), cfg, recipePath, upForce)
	if err != nil {
		return "", nil, buildFailure(cmd, string(cfg.UI.ColorScheme), err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%d cached, %d built)\n",
		SuccessStyle.Render("✓"), result.ImageRef, result.Stats.Hits, result.Stats.Misses)
	return result.ImageRef, rec, nil
}

// launchPrivileged resolves the privileged setting for a launch: the flag
// forces it on, otherwise the recipe's entrypoint declaration decides.
func launchPrivileged(rec *recipe.Recipe) bool {
	if upPrivileged {
		return true
	}
	return rec.Entrypoint != nil && rec.Entrypoint.Privileged
}

// exitFromResult maps the launch outcome onto the process exit code: the
// entrypoint's own code when it exited, 128+signal when it was killed.
func exitFromResult(cmd *cobra.Command, result *launch.Result) error {
	switch result.State {
	case launch.StateCrashed:
		if result.Err != nil {
			return result.Err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "%s entrypoint killed by signal %d\n",
			ErrorStyle.Render("✗"), result.Signal)
		cmd.SilenceErrors = true
		return &ExitError{Code: engine.ExitCode(128 + result.Signal)}

	default:
		if result.ExitCode.IsSuccess() {
			return nil
		}
		cmd.SilenceErrors = true
		return &ExitError{Code: result.ExitCode}
	}
}

// splitCommandArgs separates recipe arguments from an entrypoint override
// given after the -- terminator.
func splitCommandArgs(cmd *cobra.Command, args []string) (recipeArgs, command []string) {
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		return args[:at], args[at:]
	}
	return args, nil
}

// parseEnvVars parses repeated KEY=VALUE flags into a map.
func parseEnvVars(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env value %q (expected KEY=VALUE)", pair)
		}
		env[key] = value
	}
	return env, nil
}

// readLock loads and validates a lock file, rendering the knowledge-base
// article when it is missing or unreadable.
func readLock(path, scheme string) (*build.LockFile, error) {
	lock, err := build.ReadLockFile(path)
	if err != nil {
		renderIssue(issue.LockFileInvalidId, scheme)
		return nil, issue.NewErrorContext().
			WithOperation("read lock file").
			WithResource(path).
			WithSuggestion("Run 'strata build' to produce a fresh lock file").
			Wrap(err).
			BuildError()
	}
	return lock, nil
}
