package orchestrator

import (
	"context"
	"errors"
	"strings"
	"text/template"

	"github.com/kapu/astrofm-go/internal/constants"
	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/service/cache"
	"github.com/kapu/astrofm-go/internal/slice"
	"github.com/kapu/astrofm-go/internal/util"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"go.uber.org/zap"
)

const ScreenPlaylist = "playlist"

const msgGenerateFirst = "Generate a playlist before saving it."

// bpmSpread widens a sonification tempo into a range.
const bpmSpread = 10

// PlaylistScreen generates a chart-based playlist and saves it to Spotify.
type PlaylistScreen struct {
	*Orchestrator

	profile domain.Profile
	genres  []string

	sonification *slice.Slice[domain.Sonification]
	generated    *slice.Slice[domain.Playlist]
	created      *slice.Slice[domain.PlaylistCreation]
}

func NewPlaylistScreen(deps Deps) *PlaylistScreen {
	p := &PlaylistScreen{Orchestrator: newOrchestrator(ScreenPlaylist, deps)}
	p.generated = register(p.Orchestrator, slice.Config[domain.Playlist]{
		Name:  constants.SliceKeys.GeneratedPlaylist,
		Fetch: p.generate,
	})
	p.created = register(p.Orchestrator, slice.Config[domain.PlaylistCreation]{
		Name:  constants.SliceKeys.CreatedPlaylist,
		Fetch: p.save,
	})
	return p
}

// Activate resolves the profile and starts the sonification load. Generation
// waits for the user.
func (p *PlaylistScreen) Activate(ctx context.Context) {
	if !p.beginActivation(ctx) {
		return
	}

	p.profile = p.deps.Profiles.Resolve(ctx)
	p.genres = p.deps.Profiles.GenrePreferences(ctx)
	p.setProfile(p.profile)

	p.sonification = register(p.Orchestrator, slice.Config[domain.Sonification]{
		Name:     constants.SliceKeys.Sonification,
		CacheKey: chartKey(constants.SliceKeys.Sonification, p.profile),
		Validity: cache.Indefinite,
		Fetch: func(ctx context.Context) (*domain.Sonification, error) {
			return p.deps.Remote.FetchUserSonification(ctx, p.profile)
		},
	})
	p.goLoad(p.sonification.Load)
}

// Generate asks the backend for a new playlist.
func (p *PlaylistScreen) Generate(ctx context.Context) error {
	return p.intent(ctx, constants.SliceKeys.GeneratedPlaylist)
}

// Save creates the generated playlist on Spotify and opens it.
func (p *PlaylistScreen) Save(ctx context.Context) error {
	return p.intent(ctx, constants.SliceKeys.CreatedPlaylist)
}

func (p *PlaylistScreen) intent(ctx context.Context, name string) error {
	if !p.Alive() {
		return ErrClosed
	}
	if !p.profileReady() {
		return ErrNotActivated
	}
	return p.Retry(ctx, name)
}

// Request builds the generation request. Signs come from the sonification
// when it is ready; otherwise the sun sign is computed from the birth date
// and the rest falls back to the defaults table.
func (p *PlaylistScreen) Request() domain.PlaylistRequest {
	d := p.deps.Defaults
	req := domain.PlaylistRequest{
		Profile:    p.profile,
		SunSign:    d.Signs.Sun,
		MoonSign:   d.Signs.Moon,
		RisingSign: d.Signs.Rising,
		Genres:     p.genres,
		BPM:        d.BPM,
	}
	if len(req.Genres) == 0 {
		req.Genres = d.Playlist.Genres
	}
	if birth, err := p.profile.BirthTime(); err == nil {
		req.SunSign = string(domain.SunSign(birth))
	}

	var son domain.Sonification
	ok := false
	if p.sonification != nil {
		son, ok = p.sonification.Value()
	}
	if !ok {
		return req
	}
	req.SunSign = signOr(son.SunSign, req.SunSign)
	req.MoonSign = signOr(son.MoonSign, req.MoonSign)
	req.RisingSign = signOr(son.RisingSign, req.RisingSign)
	if son.BPM > 0 {
		req.BPM = domain.BPMRange{Min: max(son.BPM-bpmSpread, 1), Max: son.BPM + bpmSpread}
	}
	return req
}

func signOr(name, fallback string) string {
	if sign, ok := domain.ParseZodiacSign(name); ok {
		return string(sign)
	}
	return fallback
}

func (p *PlaylistScreen) generate(ctx context.Context) (*domain.Playlist, error) {
	req := p.Request()
	p.logger.Info("Generating playlist",
		zap.String("sun", req.SunSign),
		zap.String("moon", req.MoonSign),
		zap.String("rising", req.RisingSign),
	)
	return p.deps.Remote.GeneratePlaylist(ctx, req)
}

func (p *PlaylistScreen) save(ctx context.Context) (*domain.PlaylistCreation, error) {
	pl, ok := p.generated.Value()
	if !ok {
		return nil, apperrors.NewServiceError(msgGenerateFirst, "playlist", "save", 0)
	}

	req := p.Request()
	name := util.TruncateString(p.playlistName(pl, req), constants.StringLimits.PlaylistName)
	description := pl.Description
	if description == "" {
		description = p.deps.Defaults.Playlist.Description
	}
	description = util.TruncateString(description, constants.StringLimits.PlaylistDescription)

	created, err := p.deps.Remote.CreateRemotePlaylist(ctx, pl.Tracks, name, description)
	if err != nil {
		return nil, err
	}

	pl.Name = name
	pl.Description = description
	pl.URL = created.URL
	if err := cache.PutJSON(ctx, p.deps.Cache, constants.SliceKeys.CachedPlaylist, pl, cache.Indefinite); err != nil {
		p.logger.Warn("Failed to store cached playlist", zap.Error(err))
	}

	// The playlist exists at this point; a browser that fails to open is
	// not a failed save.
	if err := p.deps.Remote.OpenExternal(ctx, created.URL); err != nil {
		p.logger.Warn("Failed to open playlist", zap.String("url", created.URL), zap.Error(err))
	}
	return created, nil
}

func (p *PlaylistScreen) playlistName(pl domain.Playlist, req domain.PlaylistRequest) string {
	if strings.TrimSpace(pl.Name) != "" {
		return pl.Name
	}
	name, err := renderName(p.deps.Defaults.Playlist.NameTemplate, req)
	if err != nil {
		p.logger.Warn("Invalid playlist name template", zap.Error(err))
		return "Astro.FM · " + req.SunSign
	}
	return name
}

func renderName(tmpl string, req domain.PlaylistRequest) (string, error) {
	if tmpl == "" {
		return "", errors.New("empty template")
	}
	t, err := template.New("playlist_name").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	err = t.Execute(&b, struct{ Sun, Moon, Rising string }{req.SunSign, req.MoonSign, req.RisingSign})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
