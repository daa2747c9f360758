package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
	"github.com/TomBraudo/windows-assistant/internal/archive"
	"github.com/TomBraudo/windows-assistant/internal/input"
	"github.com/TomBraudo/windows-assistant/internal/llmclient"
	"github.com/TomBraudo/windows-assistant/internal/observability"
	"github.com/TomBraudo/windows-assistant/internal/perception"
	"github.com/TomBraudo/windows-assistant/internal/planner"
	"github.com/TomBraudo/windows-assistant/internal/safety"
	"github.com/TomBraudo/windows-assistant/internal/screen"
	"github.com/TomBraudo/windows-assistant/internal/session"
	"github.com/TomBraudo/windows-assistant/internal/verifier"
)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run \"<goal>\"",
		Short: "Runs one session driving the desktop toward the given goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Use the context passed from main.go (signal-aware).
			ctx := cmd.Context()
			logger := observability.GetLogger()
			goal := args[0]

			// Command-line flags override the file and environment config.
			flags := cmd.Flags()
			if flags.Changed("max-iterations") {
				cfg.Session.MaxIterations, _ = flags.GetInt("max-iterations")
			}
			if flags.Changed("budget") {
				cfg.Session.Budget, _ = flags.GetDuration("budget")
			}
			if flags.Changed("strict-filter") {
				cfg.Filter.Strict, _ = flags.GetBool("strict-filter")
			}
			if flags.Changed("yes") {
				cfg.Safety.AutoApprove, _ = flags.GetBool("yes")
			}
			displayID, _ := flags.GetInt("display")

			if err := cfg.Validate(); err != nil {
				return err
			}

			components, err := initializeSessionComponents(ctx, displayID, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize session components: %w", err)
			}
			defer components.Shutdown()

			// The emergency stop owns session cancellation: slamming the
			// pointer into the reserved corner aborts everything in flight.
			sessionCtx, cancel := context.WithCancel(ctx)
			defer cancel()
			go components.EStop.Watch(sessionCtx, cancel)

			logger.Info("Starting session",
				zap.String("goal", goal),
				zap.Int("display_id", displayID),
				zap.Int("max_iterations", cfg.Session.MaxIterations),
				zap.Duration("budget", cfg.Session.Budget))

			report, err := components.Controller.Run(sessionCtx, goal, displayID)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("session aborted by user signal")
				}
				return err
			}

			printReport(report)
			if report.Status != schemas.StatusDone {
				// A non-DONE terminal status is an outcome, not a CLI error,
				// but the exit code should still reflect it.
				return fmt.Errorf("session ended with status %s", report.Status)
			}
			return nil
		},
	}

	runCmd.Flags().Int("display", 0, "Display to drive, by ID.")
	runCmd.Flags().Int("max-iterations", 0, "Iteration budget for the session. (Overrides config/env)")
	runCmd.Flags().Duration("budget", 0, "Wall-clock budget for the session. (Overrides config/env)")
	runCmd.Flags().Bool("strict-filter", false, "Disable candidate filter relaxation. (Overrides config/env)")
	runCmd.Flags().BoolP("yes", "y", false, "Approve sensitive actions without prompting.")

	return runCmd
}

// sessionComponents holds the initialized services for one run.
type sessionComponents struct {
	Env        *screen.Environment
	Router     *llmclient.LLMRouter
	EStop      *safety.EmergencyStop
	Controller *session.Controller
	Archive    *archive.Store
	DBPool     *pgxpool.Pool
}

// Shutdown closes everything that holds connections.
func (sc *sessionComponents) Shutdown() {
	if sc.Router != nil {
		if err := sc.Router.Close(); err != nil {
			observability.GetLogger().Warn("Error closing LLM clients", zap.Error(err))
		}
	}
	if sc.Archive != nil {
		sc.Archive.Close()
	} else if sc.DBPool != nil {
		sc.DBPool.Close()
	}
}

// initializeSessionComponents handles dependency injection for the run command.
func initializeSessionComponents(ctx context.Context, displayID int, logger *zap.Logger) (*sessionComponents, error) {
	components := &sessionComponents{}

	// 1. Display environment
	env, err := screen.NewEnvironment(screen.NewOSProber(), logger)
	if err != nil {
		return components, fmt.Errorf("failed to probe displays: %w", err)
	}
	components.Env = env

	display, err := env.Display(displayID)
	if err != nil {
		return components, err
	}

	// 2. Perception
	capturer := screen.NewOSCapturer("")
	detector, err := perception.NewHTTPDetector(cfg.Perception, env, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize detector: %w", err)
	}

	// 3. Reasoning models
	router, err := llmclient.NewRouterFromConfig(cfg.Agent, logger)
	if err != nil {
		return components, fmt.Errorf("failed to initialize LLM clients: %w", err)
	}
	components.Router = router

	plan := planner.NewLLMPlanner(router, logger)
	verify := verifier.NewLLMVerifier(router, logger)

	// 4. Input and safety
	executor := input.NewExecutor(input.NewRobotgoDriver(), env, cfg.Input, logger)
	gate := safety.NewConsoleGate(cfg.Safety, os.Stdin, os.Stdout, logger)
	governor := safety.NewGovernor(cfg.Safety, gate, logger)
	components.EStop = safety.NewEmergencyStop(cfg.Safety, executor.PointerPosition, display, logger)

	// 5. Archive (optional)
	var archiver session.Archiver
	if cfg.Archive.Enabled {
		dbPool, err := pgxpool.New(ctx, cfg.Archive.URL)
		if err != nil {
			return components, fmt.Errorf("failed to connect to archive database: %w", err)
		}
		components.DBPool = dbPool

		store, err := archive.New(ctx, dbPool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize archive store: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			return components, fmt.Errorf("failed to prepare archive schema: %w", err)
		}
		components.Archive = store
		archiver = store
	}

	// 6. Controller
	components.Controller = session.NewController(
		cfg.Session, cfg.Filter,
		env, capturer, detector, plan, verify, executor, governor, archiver,
		session.NewInputLock(), logger,
	)
	return components, nil
}

// printReport writes the human-facing session outcome to stdout.
func printReport(report schemas.SessionReport) {
	fmt.Printf("\nSession %s finished: %s\n", report.SessionID, report.Status)
	fmt.Printf("Goal:       %s\n", report.Goal)
	fmt.Printf("Iterations: %d\n", report.IterationsUsed)
	fmt.Printf("Duration:   %s\n", report.EndedAt.Sub(report.StartedAt).Round(time.Millisecond))

	if report.Clarification != "" {
		fmt.Printf("\nThe planner needs more information before it can continue:\n  %s\n", report.Clarification)
	}

	if len(report.History) > 0 {
		fmt.Println("\nActions:")
		for _, entry := range report.History {
			line := fmt.Sprintf("  #%d %s -> %s", entry.Iteration, entry.Intent.Kind, entry.Result.Status)
			if entry.Result.Error != nil {
				line += fmt.Sprintf(" (%s)", entry.Result.Error.Code)
			}
			if entry.Verdict != "" {
				line += fmt.Sprintf(", verified: %s", entry.Verdict)
			}
			fmt.Println(line)
		}
	}
}

func init() {
	rootCmd.AddCommand(newRunCmd())
}
