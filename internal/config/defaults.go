package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/kapu/astrofm-go/internal/domain"
	"github.com/pelletier/go-toml/v2"
)

//go:embed defaults.toml
var embeddedDefaults []byte

// Defaults is the single table of fallback values. Slices that degrade
// gracefully read from here instead of carrying their own literals.
type Defaults struct {
	Profile  domain.Profile   `toml:"profile"`
	Signs    SignDefaults     `toml:"signs"`
	BPM      domain.BPMRange  `toml:"bpm"`
	Playlist PlaylistDefaults `toml:"playlist"`
	Copy     CopyDefaults     `toml:"copy"`
}

type SignDefaults struct {
	Sun    string `toml:"sun"`
	Moon   string `toml:"moon"`
	Rising string `toml:"rising"`
}

type PlaylistDefaults struct {
	Genres       []string `toml:"genres"`
	NameTemplate string   `toml:"name_template"`
	Description  string   `toml:"description"`
}

type CopyDefaults struct {
	ConnectSpotify string `toml:"connect_spotify"`
	GenericError   string `toml:"generic_error"`
}

// LoadDefaults parses the embedded table and overlays path when given. Keys
// missing from the override file keep their embedded values.
func LoadDefaults(path string) (*Defaults, error) {
	d := &Defaults{}
	if err := toml.Unmarshal(embeddedDefaults, d); err != nil {
		return nil, fmt.Errorf("parse embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read defaults file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, d); err != nil {
			return nil, fmt.Errorf("parse defaults file %s: %w", path, err)
		}
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// MustDefaults returns the embedded table, panicking if it is broken.
func MustDefaults() *Defaults {
	d, err := LoadDefaults("")
	if err != nil {
		panic(err)
	}
	return d
}

func (d *Defaults) Validate() error {
	if err := d.Profile.Validate(); err != nil {
		return fmt.Errorf("defaults: fallback profile: %w", err)
	}
	for field, name := range map[string]string{"sun": d.Signs.Sun, "moon": d.Signs.Moon, "rising": d.Signs.Rising} {
		if _, ok := domain.ParseZodiacSign(name); !ok {
			return fmt.Errorf("defaults: unknown %s sign %q", field, name)
		}
	}
	if d.BPM.Min <= 0 || d.BPM.Max < d.BPM.Min {
		return fmt.Errorf("defaults: invalid bpm range %d-%d", d.BPM.Min, d.BPM.Max)
	}
	if d.Copy.ConnectSpotify == "" {
		return fmt.Errorf("defaults: copy.connect_spotify is required")
	}
	return nil
}
