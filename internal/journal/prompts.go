package journal

import (
	"fmt"
	"strings"
)

// Prompts ask for bare JSON, but responses are still normalized and
// validated downstream; models wrap output in fences and prose anyway.

func moodPrompt(entryText string) string {
	return fmt.Sprintf(`Analyze the emotional tone of this health journal entry.

Respond with a single JSON object, no markdown, no commentary:
{
  "mood": one of [%s],
  "intensity": number from 0.0 to 1.0,
  "triggers": array of short strings naming likely triggers (may be empty),
  "summary": one sentence summarizing the emotional state
}

Journal entry:
%s`, quoteList(MoodStates), entryText)
}

func observationPrompt(entryText string) string {
	return fmt.Sprintf(`Extract the single most significant objective observation from this health journal entry. Report only what the entry states; do not infer.

Respond with a single JSON object, no markdown, no commentary:
{
  "category": one of [%s],
  "evidence": a direct quote from the entry supporting the observation,
  "interpretation": a short neutral note, or null if none is warranted
}

Journal entry:
%s`, quoteList(ObservationCategories), entryText)
}

func actionUnitsPrompt(imageDescription string) string {
	return fmt.Sprintf(`You are given a structured description of a facial photo. Identify the facial action units (FACS) visible in it.

Respond with a single JSON object, no markdown, no commentary:
{
  "units": [{"code": "AU12", "intensity": number from 0.0 to 5.0, "evidence": short string}],
  "expression": one short phrase naming the overall expression,
  "confidence": number from 0.0 to 1.0
}

Photo description:
%s`, imageDescription)
}

func quoteList(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = `"` + v + `"`
	}
	return strings.Join(quoted, ", ")
}
