package arena

import (
	"errors"
	"fmt"
)

// ErrTraitRange reports a personality trait outside the closed unit
// interval.
var ErrTraitRange = errors.New("arena: personality trait outside [0,1]")

// Personality biases the heuristic scoring of movement decisions. All
// traits live in [0,1]; construction through NewPersonality keeps that
// invariant so the scorer never has to defend against wild weights.
type Personality struct {
	Aggression   float64 `json:"aggression"`
	Intelligence float64 `json:"intelligence"`
	Patience     float64 `json:"patience"`
}

// NewPersonality validates the traits and returns the value object.
func NewPersonality(aggression, intelligence, patience float64) (Personality, error) {
	p := Personality{
		Aggression:   aggression,
		Intelligence: intelligence,
		Patience:     patience,
	}
	if err := p.Validate(); err != nil {
		return Personality{}, err
	}
	return p, nil
}

// Validate checks every trait against the unit interval.
func (p Personality) Validate() error {
	for _, trait := range []struct {
		name  string
		value float64
	}{
		{"aggression", p.Aggression},
		{"intelligence", p.Intelligence},
		{"patience", p.Patience},
	} {
		if trait.value < 0 || trait.value > 1 {
			return fmt.Errorf("%w: %s=%v", ErrTraitRange, trait.name, trait.value)
		}
	}
	return nil
}

// Clamp saturates out-of-range traits instead of rejecting them. Used
// where the input is programmatic rather than authored.
func (p Personality) Clamp() Personality {
	return Personality{
		Aggression:   clampUnit(p.Aggression),
		Intelligence: clampUnit(p.Intelligence),
		Patience:     clampUnit(p.Patience),
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
