package llm

import "strings"

// Family groups models that accept the same request parameters.
type Family string

const (
	FamilyReasoning Family = "reasoning"
	FamilyStandard  Family = "standard"
)

// Profile lists the generation parameters a family accepts. Zero values are
// left out of the request body.
type Profile struct {
	Family          Family
	ReasoningEffort string
	TextVerbosity   string
	Temperature     *float64
	MaxOutputTokens int
}

var standardTemperature = 0.2

var profiles = map[Family]Profile{
	FamilyReasoning: {
		Family:          FamilyReasoning,
		ReasoningEffort: "minimal",
		TextVerbosity:   "low",
	},
	FamilyStandard: {
		Family:          FamilyStandard,
		Temperature:     &standardTemperature,
		MaxOutputTokens: 420,
	},
}

var familyPrefixes = []struct {
	prefix string
	family Family
}{
	{prefix: "gpt-5", family: FamilyReasoning},
}

// ProfileFor picks the capability profile for a model id. Unknown models get
// the standard profile.
func ProfileFor(model string) Profile {
	id := strings.ToLower(strings.TrimSpace(model))
	for _, entry := range familyPrefixes {
		if strings.HasPrefix(id, entry.prefix) {
			return profiles[entry.family]
		}
	}
	return profiles[FamilyStandard]
}
