package cmd

import (
	"fmt"
	"strconv"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/3leaps/subwatch/internal/config"
	"github.com/3leaps/subwatch/pkg/subpersist"
	"github.com/3leaps/subwatch/pkg/submissioncache"
	"github.com/3leaps/subwatch/pkg/subscription"
	"github.com/3leaps/subwatch/pkg/watcher"
)

var subCmd = &cobra.Command{
	Use:   "sub",
	Short: "Manage subscriptions without running the watcher",
}

func init() {
	rootCmd.AddCommand(subCmd)

	subCmd.AddCommand(
		&cobra.Command{
			Use:   "add <destination> <query>",
			Short: "Add a subscription",
			Args:  cobra.ExactArgs(2),
			RunE:  withSubWatcher(func(w *watcher.Watcher, dest subscription.Destination, queryStr string) error { return w.AddSubscription(ctxBackground(), queryStr, dest) }),
		},
		&cobra.Command{
			Use:   "remove <destination> <query>",
			Short: "Remove a subscription",
			Args:  cobra.ExactArgs(2),
			RunE:  withSubWatcher(func(w *watcher.Watcher, dest subscription.Destination, queryStr string) error { return w.RemoveSubscription(ctxBackground(), queryStr, dest) }),
		},
		&cobra.Command{
			Use:   "pause <destination> <query>",
			Short: "Pause a subscription",
			Args:  cobra.ExactArgs(2),
			RunE:  withSubWatcher(func(w *watcher.Watcher, dest subscription.Destination, queryStr string) error { return w.PauseSubscription(ctxBackground(), queryStr, dest) }),
		},
		&cobra.Command{
			Use:   "resume <destination> <query>",
			Short: "Resume a paused subscription",
			Args:  cobra.ExactArgs(2),
			RunE:  withSubWatcher(func(w *watcher.Watcher, dest subscription.Destination, queryStr string) error { return w.ResumeSubscription(ctxBackground(), queryStr, dest) }),
		},
		&cobra.Command{
			Use:   "blocklist-add <destination> <query>",
			Short: "Add a query to a destination's blocklist",
			Args:  cobra.ExactArgs(2),
			RunE:  withSubWatcher(func(w *watcher.Watcher, dest subscription.Destination, queryStr string) error { return w.AddToBlocklist(ctxBackground(), dest, queryStr) }),
		},
		&cobra.Command{
			Use:   "blocklist-remove <destination> <query>",
			Short: "Remove a query from a destination's blocklist",
			Args:  cobra.ExactArgs(2),
			RunE:  withSubWatcher(func(w *watcher.Watcher, dest subscription.Destination, queryStr string) error { return w.RemoveFromBlocklist(ctxBackground(), dest, queryStr) }),
		},
	)
}

// withSubWatcher loads config and persisted state, builds a Watcher with
// no site/chat clients (sub commands never run the pipeline), applies fn,
// persists the result, and exits without starting any worker.
func withSubWatcher(fn func(w *watcher.Watcher, dest subscription.Destination, queryStr string) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		destID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, fmt.Sprintf("Invalid destination %q", args[0]), err)
		}
		queryStr := args[1]

		cfg, err := config.Load(ctxBackground())
		if err != nil {
			return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
		}

		cache, err := submissioncache.Open(cfg.Watcher.CacheDBPath)
		if err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to open submission cache", err)
		}
		defer func() { _ = cache.Close() }()

		persist := subpersist.NewStore(cfg.Watcher.PersistPath)
		store := subscription.NewStore()

		w := watcher.New(watcher.DefaultConfig(), store, cache, persist, nil, nil, nil, nil)
		if err := w.LoadPersisted(ctxBackground()); err != nil {
			return exitError(foundry.ExitFileReadError, "Failed to load persisted subscriptions", err)
		}

		if err := fn(w, subscription.Destination(destID), queryStr); err != nil {
			return exitError(foundry.ExitInvalidArgument, "Command failed", err)
		}

		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	}
}
