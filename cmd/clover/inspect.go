package main

import (
	"context"

	"github.com/spf13/cobra"
)

var inspectUser string

var relatedCmd = &cobra.Command{
	Use:   "related",
	Short: "List every relation pointing at a user",
	Long:  `Related runs relation discovery for --user and prints the result. Nothing is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			related, err := a.service.Related(ctx, inspectUser)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), related)
		})
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Follow a user's forwards to the account that absorbed it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			res, err := a.forwarders.Resolve(ctx, inspectUser)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		})
	},
}

func init() {
	rootCmd.AddCommand(relatedCmd)
	rootCmd.AddCommand(resolveCmd)

	for _, c := range []*cobra.Command{relatedCmd, resolveCmd} {
		c.Flags().StringVar(&inspectUser, "user", "", "User ID")
		_ = c.MarkFlagRequired("user")
	}
}
