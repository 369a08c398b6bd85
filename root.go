package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dsync-go/dsync/internal/remote"
	"github.com/dsync-go/dsync/internal/tokenfile"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagVerbose bool
	flagDebug   bool
	flagQuiet   bool
)

// httpClientTimeout is the timeout of defaultHTTPClient. newRemoteClient
// does not use that client: every remote call, metadata and transfers
// alike, goes through transferHTTPClient, which has no timeout.
const httpClientTimeout = 30 * time.Second

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

func transferHTTPClient() *http.Client {
	return &http.Client{Timeout: 0}
}

// newRemoteClient wires a remote.Client against a token bootstrapped
// from (or persisted to) $HOME/.dsync_config, per spec.md section 6.
func newRemoteClient(logger *slog.Logger) (*remote.Client, error) {
	path, err := tokenfile.DefaultPath()
	if err != nil {
		return nil, err
	}

	token, err := tokenfile.Bootstrap(path, os.Stdin, os.Stdout)
	if err != nil {
		return nil, err
	}

	src := tokenfile.NewStaticSource(token)

	return remote.New(remote.DefaultAPIHost, remote.DefaultContentHost, transferHTTPClient(), src, logger), nil
}

// newRootCmd builds and returns the fully-assembled root command with
// all subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dsync",
		Short:   "dsync — a git-like sync client for cloud file storage",
		Long:    "dsync associates a local working tree with a remote folder and moves files between them with three-way-merge semantics.",
		Version: version,
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newCloneCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newAddCmd())
	cmd.AddCommand(newPullCmd())
	cmd.AddCommand(newPushCmd())

	return cmd
}

// buildLogger creates an slog.Logger whose level is selected by the
// mutually-exclusive --verbose/--debug/--quiet flags; default is warn.
func buildLogger() *slog.Logger {
	level := slog.LevelWarn

	switch {
	case flagDebug:
		level = slog.LevelDebug
	case flagVerbose:
		level = slog.LevelInfo
	case flagQuiet:
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits
// nonzero, per spec.md section 6 ("exit code 0 on success, nonzero on
// any fatal error").
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
