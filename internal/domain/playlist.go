package domain

// AudioFeatures mirrors the subset of the music service's analysis we use.
type AudioFeatures struct {
	Energy       float64 `json:"energy"`
	Valence      float64 `json:"valence"`
	Tempo        float64 `json:"tempo"`
	Acousticness float64 `json:"acousticness"`
}

type Track struct {
	ID         string        `json:"id"`
	URI        string        `json:"uri"`
	Title      string        `json:"title"`
	Artist     string        `json:"artist"`
	Album      string        `json:"album,omitempty"`
	DurationMs int           `json:"durationMs,omitempty"`
	Features   AudioFeatures `json:"features"`
}

type Playlist struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Tracks      []Track `json:"tracks"`
	URL         string  `json:"url,omitempty"`
	Mood        string  `json:"mood,omitempty"`
}

// BPMRange bounds the tempo of generated tracks.
type BPMRange struct {
	Min int `json:"min" toml:"min"`
	Max int `json:"max" toml:"max"`
}

// PlaylistRequest is what the backend needs to generate a chart playlist.
type PlaylistRequest struct {
	Profile    Profile  `json:"profile"`
	SunSign    string   `json:"sunSign"`
	MoonSign   string   `json:"moonSign"`
	RisingSign string   `json:"risingSign"`
	Genres     []string `json:"genres"`
	BPM        BPMRange `json:"bpm"`
}

// PlaylistCreation is the result of saving a playlist to the music service.
type PlaylistCreation struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// AverageMood averages the tracks' features and names the quadrant.
func (p Playlist) AverageMood() MoodCategory {
	if len(p.Tracks) == 0 {
		return MoodCategory{}
	}
	var sum AudioFeatures
	for _, t := range p.Tracks {
		sum.Energy += t.Features.Energy
		sum.Valence += t.Features.Valence
		sum.Acousticness += t.Features.Acousticness
	}
	n := float64(len(p.Tracks))
	return ClassifyMood(AudioFeatures{
		Energy:       sum.Energy / n,
		Valence:      sum.Valence / n,
		Acousticness: sum.Acousticness / n,
	})
}
