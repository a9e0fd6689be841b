package prompt

type DailyNarrativeData struct {
	Date      string
	Birth     string
	Latitude  float64
	Longitude float64
	Timezone  string
	SunSign   string
	Element   string
}

type SeasonalNoteData struct {
	Month   string
	SunSign string
	Themes  []string
}

func BuildDailyNarrative(data DailyNarrativeData) (string, error) {
	return DefaultPromptBuilder().Render(TemplateDailyNarrative, data)
}

func BuildSeasonalNote(data SeasonalNoteData) (string, error) {
	return DefaultPromptBuilder().Render(TemplateSeasonalNote, data)
}
