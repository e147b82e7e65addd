package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "list [folder]",
		Short: "List the direct files and folders of a folder",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := c.selectedProvider()
			if err != nil {
				return err
			}
			u, err := c.uploaderFor(cmd.Context())
			if err != nil {
				return err
			}

			folder := ""
			if len(args) == 1 {
				folder = args[0]
			}
			listing, err := u.List(cmd.Context(), provider, folder)
			if err != nil {
				return err
			}
			if c.jsonOut {
				return writeJSON(cmd.OutOrStdout(), listing)
			}
			printListing(cmd.OutOrStdout(), listing)
			return nil
		},
	}
}

func newDeleteCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <path>...",
		Short: "Delete stored objects",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, err := c.selectedProvider()
			if err != nil {
				return err
			}
			u, err := c.uploaderFor(cmd.Context())
			if err != nil {
				return err
			}
			for _, path := range args {
				if err := u.Delete(cmd.Context(), provider, path); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("deleted"), path)
			}
			return nil
		},
	}
}
