package ai

// ModelPreset picks sampling settings by what the text is for.
type ModelPreset string

const (
	// PresetCreative writes the daily narrative.
	PresetCreative ModelPreset = "creative"
	// PresetBalanced writes the seasonal guidance; it is also the fallback
	// for unknown presets.
	PresetBalanced ModelPreset = "balanced"
)

// ModelConfig holds Gemini sampling settings.
type ModelConfig struct {
	Temperature      float32
	TopP             float32
	TopK             int
	MaxOutputTokens  int
	ResponseMimeType string // "application/json" or "text/plain"
}

// OpenAIConfig holds OpenAI sampling settings.
type OpenAIConfig struct {
	Temperature float32
	MaxTokens   int
	TopP        float32
}

// GenerateMetadata reports which provider answered.
type GenerateMetadata struct {
	Provider     string
	Model        string
	UsedFallback bool
}

type GenerateOptions struct {
	Model     string
	JSONMode  bool
	Overrides *ModelConfig
}

type presetSettings struct {
	gemini ModelConfig
	openai OpenAIConfig
}

// Readings are short; both presets cap output well below provider limits.
var presets = map[ModelPreset]presetSettings{
	PresetCreative: {
		gemini: ModelConfig{Temperature: 0.9, TopP: 0.95, TopK: 40, MaxOutputTokens: 1024},
		openai: OpenAIConfig{Temperature: 0.9, TopP: 0.95, MaxTokens: 1024},
	},
	PresetBalanced: {
		gemini: ModelConfig{Temperature: 0.5, TopP: 0.95, TopK: 40, MaxOutputTokens: 768},
		openai: OpenAIConfig{Temperature: 0.5, TopP: 0.95, MaxTokens: 768},
	},
}

func settingsFor(preset ModelPreset) presetSettings {
	if s, ok := presets[preset]; ok {
		return s
	}
	return presets[PresetBalanced]
}

// GetPresetConfig returns the Gemini settings for a preset.
func GetPresetConfig(preset ModelPreset) ModelConfig {
	return settingsFor(preset).gemini
}

// GetOpenAIPresetConfig returns the OpenAI settings for a preset.
func GetOpenAIPresetConfig(preset ModelPreset) OpenAIConfig {
	return settingsFor(preset).openai
}
