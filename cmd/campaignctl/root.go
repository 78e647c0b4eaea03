package main

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/unclebandit/campaign-dispatcher/internal/app"
	"github.com/unclebandit/campaign-dispatcher/internal/config"
	"github.com/unclebandit/campaign-dispatcher/internal/logging"
)

// cli holds state shared by subcommands. open is replaced in tests.
type cli struct {
	verbose bool
	open    func(cmd *cobra.Command) (*app.App, error)
}

func newRootCmd(c *cli) *cobra.Command {
	if c.open == nil {
		c.open = c.openApp
	}

	root := &cobra.Command{
		Use:           "campaignctl",
		Short:         "Operate the campaign dispatcher",
		Long:          "Start, stop, tick and inspect bulk email campaigns directly against the configured store.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log at debug level to stderr")

	root.AddCommand(
		c.startCmd(),
		c.stopCmd(),
		c.tickCmd(),
		c.triggerCmd(),
		c.statusCmd(),
		c.accountsCmd(),
		c.cleanupCmd(),
	)
	return root
}

func (c *cli) openApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level := "warn"
	if c.verbose {
		level = "debug"
	}
	logger := logging.New(cmd.ErrOrStderr(), level, cfg.LogFormat)
	return app.Open(cmd.Context(), cfg, logger)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
