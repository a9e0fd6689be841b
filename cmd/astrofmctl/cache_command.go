package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage cached screen data",
	}
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	cacheCmd.AddCommand(newCachePruneCommand(ctx))
	return cacheCmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := c.Cache.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d cached entries\n", removed)
			return nil
		},
	}
}

func newCachePruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached entries not written recently",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}
			if c.Redis != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Redis expires cache entries on its own; nothing to prune")
				return nil
			}
			if c.SQL == nil {
				return errors.New("prune needs sqlite or postgres storage")
			}
			removed, err := c.SQL.DeleteOlderThan(cmd.Context(), constants.StorageKeys.CachePrefix, olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d cached entries older than %s\n", removed, olderThan)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 31*24*time.Hour, "Minimum age of removed entries")
	return cmd
}
