package ai

import (
	"context"
	"time"

	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/prompt"
	"github.com/kapu/astrofm-go/internal/util"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"go.uber.org/zap"
)

// JSONGenerator is satisfied by *ModelManager.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, prompt string, preset ModelPreset, dest any, opts *GenerateOptions) (*GenerateMetadata, error)
}

// NarrativeGenerator writes the daily reading and the monthly note straight
// from an LLM instead of the backend.
type NarrativeGenerator struct {
	gen    JSONGenerator
	now    func() time.Time
	logger *zap.Logger
}

func NewNarrativeGenerator(gen JSONGenerator, logger *zap.Logger) *NarrativeGenerator {
	return &NarrativeGenerator{gen: gen, now: time.Now, logger: logger}
}

// WithClock dates prompts with now instead of the process clock.
func (n *NarrativeGenerator) WithClock(now func() time.Time) *NarrativeGenerator {
	if now != nil {
		n.now = now
	}
	return n
}

type narrativeResponse struct {
	Headline string   `json:"headline"`
	Reading  string   `json:"reading"`
	Themes   []string `json:"themes"`
}

type seasonalResponse struct {
	Guidance string   `json:"guidance"`
	Focus    []string `json:"focus"`
}

func (n *NarrativeGenerator) FetchDailyNarrative(ctx context.Context, p domain.Profile) (*domain.DailyNarrative, error) {
	sun := sunSignOf(p)
	today := n.now().Format(time.DateOnly)

	text, err := prompt.BuildDailyNarrative(prompt.DailyNarrativeData{
		Date:      today,
		Birth:     p.Datetime,
		Latitude:  p.Latitude,
		Longitude: p.Longitude,
		Timezone:  p.Timezone,
		SunSign:   string(sun),
		Element:   sun.Element(),
	})
	if err != nil {
		return nil, err
	}

	var resp narrativeResponse
	meta, err := n.gen.GenerateJSON(ctx, text, PresetCreative, &resp, nil)
	if err != nil {
		return nil, err
	}
	if resp.Reading == "" {
		return nil, apperrors.NewTransportError("narrative response missing reading", "daily_narrative", nil)
	}

	n.logger.Debug("Daily narrative generated",
		zap.String("provider", meta.Provider),
		zap.Bool("fallback", meta.UsedFallback),
	)
	return &domain.DailyNarrative{
		Date:      today,
		Headline:  resp.Headline,
		Reading:   resp.Reading,
		Themes:    resp.Themes,
		Generator: meta.Provider + "/" + meta.Model,
	}, nil
}

func (n *NarrativeGenerator) FetchSeasonalGuidance(ctx context.Context, p domain.Profile) (*domain.SeasonalGuidance, error) {
	now := n.now()
	sun := sunSignOf(p)

	text, err := prompt.BuildSeasonalNote(prompt.SeasonalNoteData{
		Month:   now.Month().String(),
		SunSign: string(sun),
	})
	if err != nil {
		return nil, err
	}

	var resp seasonalResponse
	if _, err := n.gen.GenerateJSON(ctx, text, PresetBalanced, &resp, nil); err != nil {
		return nil, err
	}
	if resp.Guidance == "" {
		return nil, apperrors.NewTransportError("seasonal response missing guidance", "seasonal_guidance", nil)
	}

	return &domain.SeasonalGuidance{
		Season:   seasonOf(now.Month()),
		Month:    now.Month().String(),
		Guidance: resp.Guidance,
		Focus:    util.UniqueStrings(resp.Focus),
	}, nil
}

func sunSignOf(p domain.Profile) domain.ZodiacSign {
	birth, err := p.BirthTime()
	if err != nil {
		return ""
	}
	return domain.SunSign(birth)
}

// seasonOf names the northern-hemisphere meteorological season.
func seasonOf(m time.Month) string {
	switch m {
	case time.December, time.January, time.February:
		return "Winter"
	case time.March, time.April, time.May:
		return "Spring"
	case time.June, time.July, time.August:
		return "Summer"
	default:
		return "Autumn"
	}
}
