package main

import (
	"fmt"
	"strings"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/orchestrator"
	"github.com/kapu/astrofm-go/internal/slice"
	"github.com/kapu/astrofm-go/internal/util"
	"github.com/spf13/cobra"
)

func newHomeCommand(ctx *commandContext) *cobra.Command {
	var refresh []string

	cmd := &cobra.Command{
		Use:   "home",
		Short: "Load the home screen and print every slice",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}

			screen := orchestrator.NewHomeScreen(c.ScreenDeps())
			defer screen.Close()

			screen.Activate(cmd.Context())
			screen.Wait()
			for _, name := range refresh {
				if err := screen.ForceRefresh(cmd.Context(), name); err != nil {
					return fmt.Errorf("refresh %s: %w", name, err)
				}
			}
			screen.Wait()

			return printSnapshot(cmd, ctx, screen.Snapshot(), screen.SliceNames())
		},
	}
	cmd.Flags().StringSliceVar(&refresh, "refresh", nil, "Slices to reload past the cache")
	return cmd
}

func newPlaylistCommand(ctx *commandContext) *cobra.Command {
	playlistCmd := &cobra.Command{
		Use:   "playlist",
		Short: "Generate and save chart playlists",
	}
	playlistCmd.AddCommand(newPlaylistGenerateCommand(ctx))
	return playlistCmd
}

func newPlaylistGenerateCommand(ctx *commandContext) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a playlist from the birth chart",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}

			screen := orchestrator.NewPlaylistScreen(c.ScreenDeps())
			defer screen.Close()

			screen.Activate(cmd.Context())
			screen.Wait()
			if err := screen.Generate(cmd.Context()); err != nil {
				return err
			}
			screen.Wait()

			generated := screen.Snapshot().Slices[constants.SliceKeys.GeneratedPlaylist]
			if generated.Status != slice.StatusReady {
				return fmt.Errorf("generate playlist: %s", generated.Error)
			}

			if save {
				if err := screen.Save(cmd.Context()); err != nil {
					return err
				}
				screen.Wait()
			}

			snap := screen.Snapshot()
			if ctx.jsonOutput {
				return writeJSON(cmd, snap)
			}

			out := cmd.OutOrStdout()
			if pl, ok := snap.Slices[constants.SliceKeys.GeneratedPlaylist].Value.(domain.Playlist); ok {
				fmt.Fprintln(out, renderTracks(pl))
			}
			if save {
				created := snap.Slices[constants.SliceKeys.CreatedPlaylist]
				if created.Status != slice.StatusReady {
					return fmt.Errorf("save playlist: %s", created.Error)
				}
				fmt.Fprintf(out, "Saved: %s\n", describe(created))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&save, "save", false, "Save the playlist to Spotify and open it")
	return cmd
}

func printSnapshot(cmd *cobra.Command, ctx *commandContext, snap orchestrator.Snapshot, order []string) error {
	if ctx.jsonOutput {
		return writeJSON(cmd, snap)
	}

	rows := make([][]string, 0, len(order))
	for _, name := range order {
		view := snap.Slices[name]
		source := "-"
		if view.Status == slice.StatusReady {
			source = "remote"
			if view.FromCache {
				source = "cache"
			}
		}
		rows = append(rows, []string{name, statusLabel(view.Status), source, describe(view)})
	}

	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Slice", "Status", "Source", "Detail"}, rows, nil))
	return nil
}

// describe is the one-line summary of a slice shown in tables.
func describe(v slice.View) string {
	if v.Status == slice.StatusFailed {
		return v.Error
	}
	preview := constants.StringLimits.NarrativePreview

	switch val := v.Value.(type) {
	case domain.DailyNarrative:
		if val.Headline != "" {
			return val.Headline
		}
		return util.TruncateString(val.Reading, preview)
	case domain.Alignment:
		return fmt.Sprintf("%d · %s", val.Score, val.DominantEnergy)
	case domain.Sonification:
		return fmt.Sprintf("%s Sun, %s Moon, %s Rising · %d BPM", val.SunSign, val.MoonSign, val.RisingSign, val.BPM)
	case domain.SeasonalGuidance:
		return util.TruncateString(val.Guidance, preview)
	case domain.ConnectionState:
		if !val.Connected {
			return "not connected"
		}
		if val.DisplayName != "" {
			return "connected as " + val.DisplayName
		}
		return "connected"
	case domain.Playlist:
		return fmt.Sprintf("%s (%d tracks)", val.Name, len(val.Tracks))
	case domain.PlaylistCreation:
		return val.URL
	}
	return ""
}

func renderTracks(pl domain.Playlist) string {
	rows := make([][]string, 0, len(pl.Tracks))
	for i, t := range pl.Tracks {
		rows = append(rows, []string{fmt.Sprint(i + 1), t.Title, t.Artist, domain.ClassifyMood(t.Features).Name})
	}
	title := strings.TrimSpace(pl.Name)
	if title == "" {
		title = "Generated playlist"
	}
	if mood := pl.AverageMood().Name; mood != "" {
		title += " · " + mood
	}
	return title + "\n" + renderTable([]string{"#", "Title", "Artist", "Mood"}, rows, []columnAlignment{alignRight})
}
