package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/kapu/astrofm-go/internal/util"
	apperrors "github.com/kapu/astrofm-go/pkg/errors"
	"go.uber.org/zap"
)

type fakeProvider struct {
	name    string
	mu      sync.Mutex
	calls   int
	prompts []string
	text    string
	err     error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) Generate(_ context.Context, prompt string, _ ModelPreset, opts *GenerateOptions) (ProviderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, prompt)
	if opts == nil || !opts.JSONMode {
		return ProviderResult{}, errors.New("json mode not requested")
	}
	if f.err != nil {
		return ProviderResult{}, f.err
	}
	return ProviderResult{Text: f.text, Model: f.name + "-model"}, nil
}

func (f *fakeProvider) Ping(context.Context) bool { return false }

var testProfile = domain.Profile{
	Datetime:  "1995-03-15T14:30:00",
	Latitude:  37.7749,
	Longitude: -122.4194,
	Timezone:  "America/Los_Angeles",
}

func TestGenerateJSONStripsCodeFence(t *testing.T) {
	primary := &fakeProvider{name: "Gemini", text: "```json\n{\"headline\":\"Tide\"}\n```"}
	mm := newModelManager(primary, nil, zap.NewNop())

	var out narrativeResponse
	meta, err := mm.GenerateJSON(context.Background(), "p", PresetCreative, &out, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Headline != "Tide" || meta.Provider != "Gemini" || meta.UsedFallback {
		t.Fatalf("unexpected result %+v %+v", out, meta)
	}
}

func TestGenerateJSONUsesFallback(t *testing.T) {
	primary := &fakeProvider{name: "Gemini", err: errors.New("googleapi: Error 503: overloaded")}
	fallback := &fakeProvider{name: "OpenAI", text: `{"headline":"Drift"}`}
	mm := newModelManager(primary, fallback, zap.NewNop())

	var out narrativeResponse
	meta, err := mm.GenerateJSON(context.Background(), "p", PresetCreative, &out, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !meta.UsedFallback || out.Headline != "Drift" {
		t.Fatalf("expected fallback result, got %+v %+v", out, meta)
	}
}

func TestGenerateJSONFailuresAreTransportAndOpenCircuit(t *testing.T) {
	primary := &fakeProvider{name: "Gemini", err: errors.New("googleapi: Error 500: internal")}
	mm := newModelManager(primary, nil, zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		var out narrativeResponse
		if _, err := mm.GenerateJSON(ctx, "p", PresetCreative, &out, nil); !apperrors.IsTransport(err) {
			t.Fatalf("attempt %d: expected TransportError, got %v", i, err)
		}
	}
	if mm.GetCircuitStatus().State != util.CircuitStateOpen {
		t.Fatalf("expected open circuit, got %v", mm.GetCircuitStatus().State)
	}

	var out narrativeResponse
	if _, err := mm.GenerateJSON(ctx, "p", PresetCreative, &out, nil); !apperrors.IsTransport(err) {
		t.Fatalf("expected fail-fast TransportError, got %v", err)
	}
	if primary.calls != 3 {
		t.Fatalf("open circuit must not call the provider, got %d calls", primary.calls)
	}
}

func TestRequestErrorsDoNotTripCircuit(t *testing.T) {
	primary := &fakeProvider{name: "Gemini", err: errors.New("400 invalid argument")}
	mm := newModelManager(primary, nil, zap.NewNop())

	for i := 0; i < 5; i++ {
		var out narrativeResponse
		_, _ = mm.GenerateJSON(context.Background(), "p", PresetCreative, &out, nil)
	}
	if mm.GetCircuitStatus().State != util.CircuitStateClosed {
		t.Fatalf("client errors should not open the circuit")
	}
}

func TestInvalidJSONIsTransportError(t *testing.T) {
	mm := newModelManager(&fakeProvider{name: "Gemini", text: "Sure! Here is your reading"}, nil, zap.NewNop())
	var out narrativeResponse
	if _, err := mm.GenerateJSON(context.Background(), "p", PresetCreative, &out, nil); !apperrors.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestNarrativeGeneratorDailyNarrative(t *testing.T) {
	primary := &fakeProvider{name: "Gemini", text: `{"headline":"Deep water","reading":"Let the tide carry you.","themes":["flow"]}`}
	gen := NewNarrativeGenerator(newModelManager(primary, nil, zap.NewNop()), zap.NewNop())
	gen.now = func() time.Time { return time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC) }

	got, err := gen.FetchDailyNarrative(context.Background(), testProfile)
	if err != nil {
		t.Fatal(err)
	}
	if got.Date != "2026-10-14" || got.Reading != "Let the tide carry you." || got.Generator != "Gemini/Gemini-model" {
		t.Fatalf("unexpected narrative %+v", got)
	}
	if !strings.Contains(primary.prompts[0], "Pisces (Water)") {
		t.Fatalf("prompt should carry the locally computed sun sign:\n%s", primary.prompts[0])
	}
}

func TestNarrativeGeneratorRejectsEmptyReading(t *testing.T) {
	primary := &fakeProvider{name: "Gemini", text: `{"headline":"x"}`}
	gen := NewNarrativeGenerator(newModelManager(primary, nil, zap.NewNop()), zap.NewNop())

	if _, err := gen.FetchDailyNarrative(context.Background(), testProfile); !apperrors.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestNarrativeGeneratorSeasonalGuidance(t *testing.T) {
	primary := &fakeProvider{name: "Gemini", text: `{"guidance":"Rest before the push.","focus":["rest","Rest","plan"]}`}
	gen := NewNarrativeGenerator(newModelManager(primary, nil, zap.NewNop()), zap.NewNop())
	gen.now = func() time.Time { return time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC) }

	got, err := gen.FetchSeasonalGuidance(context.Background(), testProfile)
	if err != nil {
		t.Fatal(err)
	}
	if got.Season != "Autumn" || got.Month != "October" || len(got.Focus) != 2 {
		t.Fatalf("unexpected guidance %+v", got)
	}
}

func TestUnknownPresetFallsBackToBalanced(t *testing.T) {
	if GetPresetConfig("unknown") != GetPresetConfig(PresetBalanced) {
		t.Fatalf("unknown preset should use balanced gemini settings")
	}
	if GetOpenAIPresetConfig("unknown") != GetOpenAIPresetConfig(PresetBalanced) {
		t.Fatalf("unknown preset should use balanced openai settings")
	}
	if GetPresetConfig(PresetCreative).Temperature <= GetPresetConfig(PresetBalanced).Temperature {
		t.Fatalf("creative preset should sample hotter than balanced")
	}
}
