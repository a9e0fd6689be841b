package domain

// MoodCategory names an energy/valence quadrant for display.
type MoodCategory struct {
	Name        string  `json:"name"`
	Energy      float64 `json:"energy"`
	Valence     float64 `json:"valence"`
	Description string  `json:"description"`
}

// ClassifyMood maps audio features onto the 2x2 energy/valence grid. High
// acousticness appends an "(Acoustic)" modifier to the name.
func ClassifyMood(f AudioFeatures) MoodCategory {
	highEnergy := f.Energy > 0.6
	highValence := f.Valence > 0.5

	var name, description string
	switch {
	case highEnergy && highValence:
		name = "Upbeat Party"
		description = "High-energy, positive vibes"
	case highEnergy:
		name = "Intense & Dark"
		description = "Driving energy with darker emotional tones"
	case highValence:
		name = "Chill & Happy"
		description = "Relaxed and uplifting"
	default:
		name = "Reflective & Melancholy"
		description = "Contemplative and introspective"
	}

	if f.Acousticness > 0.6 {
		name += " (Acoustic)"
	}

	return MoodCategory{
		Name:        name,
		Energy:      f.Energy,
		Valence:     f.Valence,
		Description: description,
	}
}
