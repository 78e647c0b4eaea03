package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
	"github.com/unclebandit/campaign-dispatcher/internal/queue"
	"github.com/unclebandit/campaign-dispatcher/internal/service"
)

func (c *cli) startCmd() *cobra.Command {
	var (
		in       service.StartInput
		file     string
		subjects []string
		bodies   []string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a campaign from a CSV of contacts, or resume the stopped one",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open contacts: %w", err)
			}
			defer f.Close()
			if in.Contacts, err = readContacts(f); err != nil {
				return err
			}
			for _, s := range subjects {
				for _, b := range bodies {
					in.Templates = append(in.Templates, model.Template{Subject: s, Body: b})
				}
			}

			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Campaigns.Start(cmd.Context(), in)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&file, "contacts", "f", "", "CSV file with a header row and an email column")
	cmd.Flags().StringVar(&in.Name, "name", "", "Campaign name")
	cmd.Flags().StringSliceVar(&in.Brands, "brand", nil, "Brand name (repeatable)")
	cmd.Flags().StringArrayVar(&subjects, "subject", nil, "Subject variant (repeatable)")
	cmd.Flags().StringArrayVar(&bodies, "body", nil, "Body variant (repeatable)")
	cmd.Flags().IntVar(&in.EmailsPerAccountPerHour, "per-account", 0, "Emails per account per tick (0 = configured default)")
	cmd.Flags().IntVar(&in.PerEmailDelayMs, "delay-ms", 0, "Delay between sends in ms (0 = configured default)")
	_ = cmd.MarkFlagRequired("contacts")
	return cmd
}

func (c *cli) stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running campaign",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.Campaigns.Stop(cmd.Context())
			if err != nil {
				return err
			}
			if id == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "No active campaign")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", id)
			return nil
		},
	}
}

func (c *cli) tickCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "tick",
		Short: "Run one dispatch tick in this process",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Dispatcher.Tick(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), res)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")
	return cmd
}

func (c *cli) triggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Publish a tick trigger to the broker for a worker to run",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			q, _, err := a.TriggerQueue(false)
			if err != nil {
				return err
			}
			defer q.Close()
			if err := q.Publish(a.Config.TickQueue, queue.NewTickTrigger("cli")); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Trigger published to %s\n", a.Config.TickQueue)
			return nil
		},
	}
}

func (c *cli) statusCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the active campaign, or one campaign's details with --id",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if id != "" {
				details, err := a.Campaigns.Details(cmd.Context(), id)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), details)
			}
			view, err := a.Campaigns.Status(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Campaign ID")
	return cmd
}

func (c *cli) cleanupCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete every key in the configured namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to clean up without --yes")
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.Campaigns.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d keys\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}
