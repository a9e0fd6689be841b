package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/orchestrator"
	"github.com/kapu/astrofm-go/internal/slice"
	"github.com/kapu/astrofm-go/internal/transport/screenclient"
	"github.com/kapu/astrofm-go/internal/util"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var (
		serverURL  string
		reconnects int
	)

	cmd := &cobra.Command{
		Use:   "watch SCREEN",
		Short: "Open a screen on a running server and follow its snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := util.NewLogger(ctx.logLevel, "")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			client := screenclient.NewClient(serverURL, logger)
			session, err := client.OpenScreen(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = client.CloseSession(closeCtx, session.ID)
			}()

			snaps := make(chan orchestrator.Snapshot, constants.SessionConfig.SnapshotBacklog)
			done := make(chan struct{})
			var finish sync.Once

			stream := screenclient.NewStream(client.StreamURL(session.ID), reconnects, 2*time.Second, logger)
			stream.OnSnapshot(func(snap orchestrator.Snapshot) {
				select {
				case snaps <- snap:
				default:
					logger.Debug("Dropping snapshot", zap.Uint64("version", snap.Version))
				}
			})
			stream.OnStateChange(func(state screenclient.StreamState) {
				if state == screenclient.StreamClosed || state == screenclient.StreamFailed {
					finish.Do(func() { close(done) })
				}
			})
			defer func() { _ = stream.Disconnect() }()

			if err := printRemoteSnapshot(cmd, ctx, session.Snapshot); err != nil {
				return err
			}
			if err := stream.Connect(cmd.Context()); err != nil && stream.GetState() == screenclient.StreamFailed {
				return err
			}

			for {
				select {
				case snap := <-snaps:
					if err := printRemoteSnapshot(cmd, ctx, snap); err != nil {
						return err
					}
				case <-done:
					if stream.GetState() == screenclient.StreamFailed {
						return fmt.Errorf("snapshot stream lost")
					}
					return nil
				case <-cmd.Context().Done():
					return nil
				}
			}
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the astrofm server")
	cmd.Flags().IntVar(&reconnects, "reconnects", 5, "Reconnect attempts before giving up")
	return cmd
}

func printRemoteSnapshot(cmd *cobra.Command, ctx *commandContext, snap orchestrator.Snapshot) error {
	if ctx.jsonOutput {
		return writeJSON(cmd, snap)
	}
	names := make([]string, 0, len(snap.Slices))
	for name, view := range snap.Slices {
		snap.Slices[name] = typedView(name, view)
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(cmd.OutOrStdout(), "%s v%d\n", snap.Screen, snap.Version)
	return printSnapshot(cmd, ctx, snap, names)
}

// typedView restores the domain type of a view decoded off the wire.
func typedView(name string, v slice.View) slice.View {
	if v.Value == nil {
		return v
	}
	var target any
	switch name {
	case constants.SliceKeys.DailyNarrative:
		target = &domain.DailyNarrative{}
	case constants.SliceKeys.Connection:
		target = &domain.ConnectionState{}
	case constants.SliceKeys.DailyAlignment:
		target = &domain.Alignment{}
	case constants.SliceKeys.Sonification:
		target = &domain.Sonification{}
	case constants.SliceKeys.SeasonalGuidance:
		target = &domain.SeasonalGuidance{}
	case constants.SliceKeys.CachedPlaylist, constants.SliceKeys.MonthlyPlaylist, constants.SliceKeys.GeneratedPlaylist:
		target = &domain.Playlist{}
	case constants.SliceKeys.CreatedPlaylist:
		target = &domain.PlaylistCreation{}
	default:
		return v
	}

	raw, err := json.Marshal(v.Value)
	if err != nil || json.Unmarshal(raw, target) != nil {
		return v
	}
	switch t := target.(type) {
	case *domain.DailyNarrative:
		v.Value = *t
	case *domain.ConnectionState:
		v.Value = *t
	case *domain.Alignment:
		v.Value = *t
	case *domain.Sonification:
		v.Value = *t
	case *domain.SeasonalGuidance:
		v.Value = *t
	case *domain.Playlist:
		v.Value = *t
	case *domain.PlaylistCreation:
		v.Value = *t
	}
	return v
}
