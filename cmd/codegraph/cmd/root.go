// Package cmd provides the CLI commands for codegraph.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cecon-labs/codegraph/internal/logging"
	"github.com/cecon-labs/codegraph/internal/profiling"
	"github.com/cecon-labs/codegraph/pkg/version"
)

// Exit codes per the external interface's exit-code contract.
const (
	ExitSuccess           = 0
	ExitConfigError       = 1
	ExitWorkspaceNotFound = 2
	ExitStoreInitFailed   = 3
	ExitPartialFailure    = 4
)

// exitError carries the process exit code an error should produce.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
func (e *exitError) ExitCode() int { return e.code }

// withExitCode wraps err so Execute's caller can recover its exit code. A
// nil err returns nil, so call sites can do `return withExitCode(code, err)`
// unconditionally at the end of a RunE.
func withExitCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// Profiling flags, carried from the teacher's performance-profiling setup.
var (
	profileCPU   string
	profileMem   string
	profileTrace string
	profiler     = profiling.NewProfiler()
	cpuCleanup   func()
	traceCleanup func()
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the codegraph CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "codegraph",
		Short: "Incremental code knowledge indexer with hybrid retrieval",
		Long: `codegraph scans a workspace, builds a knowledge graph of its
files, chunks, and entities, and serves hybrid (vector +
graph) retrieval over that graph.

Run 'codegraph index' for a one-shot scan, or 'codegraph watch' to keep
the graph current as files change.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: startProfilingAndLogging,
	}

	root.SetVersionTemplate("codegraph version {{.Version}}\n")

	root.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	root.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	root.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")
	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.codegraph/logs/")

	root.PersistentPostRunE = stopProfilingAndLogging

	root.AddCommand(newIndexCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newSearchCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newDoctorCmd())

	return root
}

func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if debugMode {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	var err error
	if profileCPU != "" {
		cpuCleanup, err = profiler.StartCPU(profileCPU)
		if err != nil {
			return fmt.Errorf("failed to start CPU profile: %w", err)
		}
	}

	if profileTrace != "" {
		traceCleanup, err = profiler.StartTrace(profileTrace)
		if err != nil {
			if cpuCleanup != nil {
				cpuCleanup()
			}
			return fmt.Errorf("failed to start trace: %w", err)
		}
	}

	return nil
}

func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	if cpuCleanup != nil {
		cpuCleanup()
		cpuCleanup = nil
	}
	if traceCleanup != nil {
		traceCleanup()
		traceCleanup = nil
	}
	if profileMem != "" {
		if err := profiler.WriteHeap(profileMem); err != nil {
			return fmt.Errorf("failed to write memory profile: %w", err)
		}
	}
	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// ExecuteWithExitCode runs the root command and translates a returned error
// into the process exit code its external interface promises: 0 success, 1
// config error, 2 workspace root missing, 3 store initialization failure, 4
// partial scan with failures.
func ExecuteWithExitCode() int {
	root := NewRootCmd()
	err := root.Execute()
	if err == nil {
		return ExitSuccess
	}

	fmt.Fprintln(root.ErrOrStderr(), "Error:", err)

	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}

	return ExitConfigError
}
