package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/warden/pkg/client"
)

// apiFlags connect the CLI subcommands to a running daemon.
type apiFlags struct {
	URL     string
	Token   string
	Timeout time.Duration
}

func (f *apiFlags) register(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.URL, "api-url", "http://localhost:3000", "base URL of the warden API")
	cmd.PersistentFlags().StringVar(&f.Token, "token", "", "API auth token")
	cmd.PersistentFlags().DurationVar(&f.Timeout, "timeout", 10*time.Second, "API request timeout")
}

func (f *apiFlags) client() *client.Client {
	return client.New(client.Config{BaseURL: f.URL, Token: f.Token, Timeout: f.Timeout})
}

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:   "warden",
		Short: "Game server supervisor",
		Long: `warden keeps a game server process alive under a restart policy,
classifies its log output, watches resource usage, and runs backup and
log-cleanup schedules. "warden serve" runs the supervisor; the other
subcommands talk to a running instance over its HTTP API.`,
		SilenceUsage: true,
	}

	flags := &apiFlags{}
	flags.register(root)

	root.AddCommand(
		newServeCmd(),
		newStatusCmd(flags),
		newLogsCmd(flags),
		newRestartCmd(flags),
		newStopCmd(flags),
		newSendCmd(flags),
		newBackupCmd(flags),
		newConfigCmd(flags),
	)
	return root
}

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
