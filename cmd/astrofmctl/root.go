package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() (*cobra.Command, func()) {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "astrofmctl",
		Short:         "Astro.FM screens from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOutput, "json", false, "Print snapshots as JSON")

	rootCmd.AddCommand(newHomeCommand(ctx))
	rootCmd.AddCommand(newPlaylistCommand(ctx))
	rootCmd.AddCommand(newProfileCommand(ctx))
	rootCmd.AddCommand(newGenresCommand(ctx))
	rootCmd.AddCommand(newCacheCommand(ctx))
	rootCmd.AddCommand(newSpotifyCommand(ctx))
	rootCmd.AddCommand(newWatchCommand(ctx))

	return rootCmd, ctx.close
}
