package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newSpotifyCommand(ctx *commandContext) *cobra.Command {
	spotifyCmd := &cobra.Command{
		Use:   "spotify",
		Short: "Manage the Spotify connection",
	}
	spotifyCmd.AddCommand(newSpotifyStatusCommand(ctx))
	spotifyCmd.AddCommand(newSpotifyConnectCommand(ctx))
	spotifyCmd.AddCommand(newSpotifyDisconnectCommand(ctx))
	return spotifyCmd
}

func newSpotifyStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether Spotify is connected",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}
			state, err := c.Spotify.FetchConnectionStatus(cmd.Context())
			if err != nil {
				return err
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, state)
			}
			if !state.Connected {
				fmt.Fprintln(cmd.OutOrStdout(), "Spotify: not connected")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Spotify: connected as %s\n", state.DisplayName)
			return nil
		},
	}
}

// newSpotifyConnectCommand serves the OAuth callback locally, opens the
// consent page and waits until a token has been stored.
func newSpotifyConnectCommand(ctx *commandContext) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Authorize Astro.FM to save playlists",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}
			if !c.Spotify.Configured() {
				return errors.New("set SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET first")
			}

			server := c.NewServer()
			if err := server.Start(cmd.Context()); err != nil {
				return err
			}
			defer func() { _ = server.Shutdown(cmd.Context()) }()

			loginURL := localURL(c.Config.Server.Addr) + "/auth/spotify"
			fmt.Fprintf(cmd.OutOrStdout(), "Opening %s\n", loginURL)
			if err := c.Spotify.OpenExternal(cmd.Context(), loginURL); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "Open the URL above in a browser to continue.")
			}

			deadline := time.Now().Add(timeout)
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-ticker.C:
				}
				state, err := c.Spotify.FetchConnectionStatus(cmd.Context())
				if err == nil && state.Connected {
					fmt.Fprintf(cmd.OutOrStdout(), "Connected as %s\n", state.DisplayName)
					return nil
				}
				if time.Now().After(deadline) {
					return errors.New("timed out waiting for Spotify authorization")
				}
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Minute, "How long to wait for authorization")
	return cmd
}

func newSpotifyDisconnectCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "disconnect",
		Short: "Forget the stored Spotify token",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}
			if err := c.Spotify.Disconnect(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Spotify disconnected")
			return nil
		},
	}
}

func localURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}
