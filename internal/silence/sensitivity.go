package silence

import "fmt"

// Sensitivity selects the dBFS level below which audio counts as silence.
type Sensitivity string

const (
	Relaxed    Sensitivity = "relaxed"
	Balanced   Sensitivity = "balanced"
	Strict     Sensitivity = "strict"
	VeryStrict Sensitivity = "very_strict"
)

var thresholds = map[Sensitivity]float64{
	Relaxed:    -50,
	Balanced:   -45,
	Strict:     -40,
	VeryStrict: -35,
}

// ParseSensitivity validates a configured level.
func ParseSensitivity(value string) (Sensitivity, error) {
	s := Sensitivity(value)
	if _, ok := thresholds[s]; !ok {
		return "", fmt.Errorf("unknown silence sensitivity %q", value)
	}
	return s, nil
}

// ThresholdDB returns the level's threshold, falling back to Balanced.
func (s Sensitivity) ThresholdDB() float64 {
	if db, ok := thresholds[s]; ok {
		return db
	}
	return thresholds[Balanced]
}
