package ai

import (
	"embed"
	"encoding/json"
	"fmt"
	"math/rand"
	"sort"

	"serpent-arena/server/internal/arena"
)

//go:embed presets/*.json
var embeddedPresets embed.FS

// Preset is one authored personality bundled with the server. Presets are
// data, not code: designers tune the JSON files without touching the
// scorer.
type Preset struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Traits      arena.Personality `json:"traits"`
}

// Library holds the compiled presets indexed by id. Construct one with
// LoadLibrary and pass it where it is needed; there is no package-level
// instance.
type Library struct {
	presetsByID map[string]Preset
	ids         []string
}

// LoadLibrary parses and validates the embedded presets.
func LoadLibrary() (*Library, error) {
	entries, err := embeddedPresets.ReadDir("presets")
	if err != nil {
		return nil, fmt.Errorf("ai: read embedded presets: %w", err)
	}

	lib := &Library{presetsByID: make(map[string]Preset, len(entries))}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := "presets/" + entry.Name()
		data, err := embeddedPresets.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("ai: read preset %s: %w", name, err)
		}
		var preset Preset
		if err := json.Unmarshal(data, &preset); err != nil {
			return nil, fmt.Errorf("ai: parse preset %s: %w", name, err)
		}
		if preset.ID == "" {
			return nil, fmt.Errorf("ai: preset %s has no id", name)
		}
		if _, exists := lib.presetsByID[preset.ID]; exists {
			return nil, fmt.Errorf("ai: duplicate preset id %q in %s", preset.ID, name)
		}
		if err := preset.Traits.Validate(); err != nil {
			return nil, fmt.Errorf("ai: preset %q: %w", preset.ID, err)
		}
		lib.presetsByID[preset.ID] = preset
		lib.ids = append(lib.ids, preset.ID)
	}
	sort.Strings(lib.ids)
	return lib, nil
}

// MustLoadLibrary is LoadLibrary for wiring paths where a broken embedded
// preset is a programming error.
func MustLoadLibrary() *Library {
	lib, err := LoadLibrary()
	if err != nil {
		panic(err)
	}
	return lib
}

// Preset looks up a preset by id.
func (l *Library) Preset(id string) (Preset, bool) {
	if l == nil {
		return Preset{}, false
	}
	p, ok := l.presetsByID[id]
	return p, ok
}

// IDs returns the preset ids in sorted order.
func (l *Library) IDs() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.ids...)
}

// Len returns the number of presets.
func (l *Library) Len() int {
	if l == nil {
		return 0
	}
	return len(l.ids)
}

// Random picks a preset using the supplied RNG, reporting false when the
// library is empty.
func (l *Library) Random(rng *rand.Rand) (Preset, bool) {
	if l == nil || len(l.ids) == 0 || rng == nil {
		return Preset{}, false
	}
	id := l.ids[rng.Intn(len(l.ids))]
	return l.presetsByID[id], true
}
