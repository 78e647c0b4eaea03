package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (c *cli) accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect and manage sender accounts",
	}
	cmd.AddCommand(c.accountsListCmd(), c.accountsVerifyCmd(), c.accountsSetStatusCmd())
	return cmd
}

func (c *cli) accountsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List accounts with their connection state",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			views, err := a.Accounts.List(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEMAIL\tCONNECTED\tLAST ERROR")
			for _, v := range views {
				fmt.Fprintf(tw, "%s\t%s\t%t\t%s\n", v.ID, v.Email, v.Connected, v.LastError)
			}
			return tw.Flush()
		},
	}
}

func (c *cli) accountsVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <id>",
		Short: "Test an account's SMTP login",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Accounts.Verify(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("account %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Account %s: login OK\n", args[0])
			return nil
		},
	}
}

func (c *cli) accountsSetStatusCmd() *cobra.Command {
	var (
		connected bool
		lastError string
	)
	cmd := &cobra.Command{
		Use:   "set-status <id>",
		Short: "Mark an account connected or disconnected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.Accounts.SetStatus(cmd.Context(), args[0], connected, lastError)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().BoolVar(&connected, "connected", true, "Connection state")
	cmd.Flags().StringVar(&lastError, "reason", "", "Reason recorded when disconnecting")
	return cmd
}
