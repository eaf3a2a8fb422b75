// Package journal defines the health-journal analysis features: the typed
// records the app stores, the schemas provider responses must satisfy, and
// the analyzer that turns free-form journal input into validated records.
package journal

import "github.com/0Reliance/maeple/internal/parse"

// Analysis kinds, used as journal record kinds, sync payload tags, and
// parse contexts.
const (
	KindMood        = "mood_analysis"
	KindObservation = "observation"
	KindActionUnits = "facial_action_units"
)

// MoodStates is the closed vocabulary for mood classification. Free-form
// mood labels from the model are rejected, not coerced.
var MoodStates = []string{"calm", "anxious", "low", "energized", "irritable", "neutral"}

// MoodRecord is the result of analyzing a journal entry's emotional tone.
type MoodRecord struct {
	Mood      string   `json:"mood"`
	Intensity float64  `json:"intensity"` // 0..1
	Triggers  []string `json:"triggers,omitempty"`
	Summary   string   `json:"summary"`
}

// MoodSchema describes the shape a mood analysis response must have.
func MoodSchema() parse.Schema {
	return parse.Schema{
		Name: KindMood,
		Fields: map[string]parse.Field{
			"mood":      {Type: parse.TypeEnum, Required: true, Enum: MoodStates},
			"intensity": {Type: parse.TypeNumber, Required: true},
			"triggers":  {Type: parse.TypeArray, Elem: &parse.Field{Type: parse.TypeString}},
			"summary":   {Type: parse.TypeString, Required: true},
		},
	}
}

// ObservationCategories is the closed vocabulary for objective observations.
var ObservationCategories = []string{"sleep", "nutrition", "hydration", "movement", "medication", "symptom"}

// ObservationRecord is a single objective observation extracted from an
// entry, kept strictly separate from interpretation: Evidence quotes the
// entry, Interpretation may be null when the model has none to offer.
type ObservationRecord struct {
	Category       string  `json:"category"`
	Evidence       string  `json:"evidence"`
	Interpretation *string `json:"interpretation"`
}

// ObservationSchema describes one observation object.
func ObservationSchema() parse.Schema {
	return parse.Schema{
		Name: KindObservation,
		Fields: map[string]parse.Field{
			"category":       {Type: parse.TypeEnum, Required: true, Enum: ObservationCategories},
			"evidence":       {Type: parse.TypeString, Required: true},
			"interpretation": {Type: parse.TypeString, Nullable: true},
		},
	}
}

// ActionUnit is one facial action unit detected in a photo, FACS-coded.
type ActionUnit struct {
	Code      string  `json:"code"` // e.g. "AU12"
	Intensity float64 `json:"intensity"`
	Evidence  string  `json:"evidence"`
}

// ActionUnitsRecord is the result of facial expression analysis.
type ActionUnitsRecord struct {
	Units      []ActionUnit `json:"units"`
	Expression string       `json:"expression"`
	Confidence float64      `json:"confidence"`
}

// ActionUnitsSchema describes the facial analysis response shape.
func ActionUnitsSchema() parse.Schema {
	return parse.Schema{
		Name: KindActionUnits,
		Fields: map[string]parse.Field{
			"units": {Type: parse.TypeArray, Required: true, Elem: &parse.Field{
				Type: parse.TypeObject,
				Object: &parse.Schema{
					Name: "action_unit",
					Fields: map[string]parse.Field{
						"code":      {Type: parse.TypeString, Required: true},
						"intensity": {Type: parse.TypeNumber, Required: true},
						"evidence":  {Type: parse.TypeString, Required: true},
					},
				},
			}},
			"expression": {Type: parse.TypeString, Required: true},
			"confidence": {Type: parse.TypeNumber, Required: true},
		},
	}
}
