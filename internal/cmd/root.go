// Package cmd wires subwatch's cobra command tree: watch (run the
// pipeline) and sub (manage subscriptions), both backed by
// internal/config and internal/observability.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// ctxBackground gives sub's one-shot commands a plain context; unlike
// watch, they don't need signal handling since each runs to completion
// in a single synchronous call.
func ctxBackground() context.Context { return context.Background() }

var rootCmd = &cobra.Command{
	Use:   "subwatch",
	Short: "Watch a site for new submissions matching subscribed queries",
	Long: `subwatch polls a site's recent-submissions feed, evaluates each
submission against every subscribed query, downloads and forwards
matching media to its chat destinations, and persists subscription and
in-flight state across restarts.`,
}

var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{Version: "dev", Commit: "HEAD", BuildDate: "unknown"}

// SetVersionInfo records build metadata shown by `subwatch version`.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintf(cmd.OutOrStdout(), "subwatch %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().String("config", "", "Path to a subwatch.yaml config file")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
}

// Execute runs the root command, returning the error cobra produced (if
// any) so main can translate it to a process exit code.
func Execute() error {
	return rootCmd.Execute()
}

// exitError wraps err with message and an explicit process exit code so
// main can report the right code without inspecting err's type.
type exitCodeError struct {
	code    int
	message string
	err     error
}

func (e *exitCodeError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %v (exit code %d)", e.message, e.err, e.code)
	}
	return fmt.Sprintf("%s (exit code %d)", e.message, e.code)
}

func (e *exitCodeError) Unwrap() error { return e.err }

func exitError(code int, message string, err error) error {
	return &exitCodeError{code: code, message: message, err: err}
}

// ExitCode extracts the process exit code an error produced by exitError
// carries, or 1 for any other error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if ece, ok := err.(*exitCodeError); ok {
		return ece.code
	}
	return 1
}
