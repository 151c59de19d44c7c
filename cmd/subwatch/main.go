// Command subwatch runs the subscription watcher CLI: `subwatch watch`
// starts the pipeline, `subwatch sub` manages subscriptions against its
// persisted state without starting it.
package main

import (
	"fmt"
	"os"

	"github.com/3leaps/subwatch/internal/cmd"
	chatfake "github.com/3leaps/subwatch/pkg/chatclient/fake"
	sitefake "github.com/3leaps/subwatch/pkg/siteclient/fake"
)

// version, commit, and date are set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	// subwatch carries no production site/chat HTTP client (out of
	// scope); the fakes stand in so `watch` is runnable out of the box
	// against nothing. Embedders wire their own clients by setting
	// cmd.ClientsProvider before calling cmd.Execute.
	if cmd.ClientsProvider == nil {
		cmd.ClientsProvider = func() (cmd.Clients, error) {
			return cmd.Clients{Site: sitefake.New(), Chat: chatfake.New()}, nil
		}
	}

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cmd.ExitCode(err))
	}
}
