package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/orchestrator"
	"github.com/spf13/cobra"
)

func newProfileCommand(ctx *commandContext) *cobra.Command {
	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or change the birth profile",
	}
	profileCmd.AddCommand(newProfileShowCommand(ctx))
	profileCmd.AddCommand(newProfileSetCommand(ctx))
	return profileCmd
}

func newProfileShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the profile screens will use",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}
			p := c.Profiles.Resolve(cmd.Context())
			source := "defaults"
			if c.Profiles.Stored(cmd.Context()) {
				source = "stored"
			}
			if ctx.jsonOutput {
				return writeJSON(cmd, map[string]any{"profile": p, "source": source})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderProfile(p, source))
			return nil
		},
	}
}

func newProfileSetCommand(ctx *commandContext) *cobra.Command {
	var (
		datetime  string
		latitude  float64
		longitude float64
		timezone  string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Save a new birth profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}

			previous := c.Profiles.Resolve(cmd.Context())
			next := domain.Profile{
				Datetime:  strings.TrimSpace(datetime),
				Latitude:  latitude,
				Longitude: longitude,
				Timezone:  strings.TrimSpace(timezone),
			}
			if err := c.Profiles.Save(cmd.Context(), next); err != nil {
				return err
			}
			if err := orchestrator.InvalidateProfileData(cmd.Context(), c.Cache, previous); err != nil {
				return fmt.Errorf("invalidate cached readings: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderProfile(next, "stored"))
			return nil
		},
	}
	cmd.Flags().StringVar(&datetime, "datetime", "", "Birth date and time, e.g. 1995-03-15T14:30:00")
	cmd.Flags().Float64Var(&latitude, "latitude", 0, "Birth latitude")
	cmd.Flags().Float64Var(&longitude, "longitude", 0, "Birth longitude")
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA zone of the birth place")
	_ = cmd.MarkFlagRequired("datetime")
	_ = cmd.MarkFlagRequired("timezone")
	return cmd
}

func renderProfile(p domain.Profile, source string) string {
	sun := "-"
	if birth, err := p.BirthTime(); err == nil {
		sun = string(domain.SunSign(birth))
	}
	rows := [][]string{
		{"Born", p.Datetime},
		{"Latitude", strconv.FormatFloat(p.Latitude, 'f', 4, 64)},
		{"Longitude", strconv.FormatFloat(p.Longitude, 'f', 4, 64)},
		{"Timezone", p.Timezone},
		{"Sun sign", sun},
		{"Source", source},
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func newGenresCommand(ctx *commandContext) *cobra.Command {
	genresCmd := &cobra.Command{
		Use:   "genres",
		Short: "Show or change genre preferences",
	}
	genresCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print genre preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}
			genres := c.Profiles.GenrePreferences(cmd.Context())
			if ctx.jsonOutput {
				return writeJSON(cmd, genres)
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(genres, ", "))
			return nil
		},
	})
	genresCmd.AddCommand(&cobra.Command{
		Use:   "set GENRE...",
		Short: "Replace genre preferences",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := ctx.ensureContainer(cmd.Context())
			if err != nil {
				return err
			}
			var genres []string
			for _, arg := range args {
				genres = append(genres, strings.Split(arg, ",")...)
			}
			if err := c.Profiles.SaveGenrePreferences(cmd.Context(), genres); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(c.Profiles.GenrePreferences(cmd.Context()), ", "))
			return nil
		},
	})
	return genresCmd
}
