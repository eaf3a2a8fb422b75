package parse

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNormalize_Robustness(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "clean JSON",
			input: `{"mood":"calm"}`,
			want:  `{"mood":"calm"}`,
		},
		{
			name:  "json fence",
			input: "```json\n{\"mood\":\"calm\"}\n```",
			want:  `{"mood":"calm"}`,
		},
		{
			name:  "bare fence",
			input: "```\n{\"mood\":\"calm\"}\n```",
			want:  `{"mood":"calm"}`,
		},
		{
			name:  "fence with surrounding whitespace",
			input: "  \n\t```json\n  {\"mood\":\"calm\"}  \n```  \n",
			want:  `{"mood":"calm"}`,
		},
		{
			name:  "leading prose",
			input: `Here is the analysis you asked for: {"mood":"calm"}`,
			want:  `{"mood":"calm"}`,
		},
		{
			name:  "trailing prose",
			input: `{"mood":"calm"} Let me know if you need anything else.`,
			want:  `{"mood":"calm"}`,
		},
		{
			name:  "prose on both sides",
			input: `Sure! {"mood":"calm"} Hope that helps.`,
			want:  `{"mood":"calm"}`,
		},
		{
			name:  "array payload",
			input: "```json\n[{\"unit\":\"AU12\"}]\n```",
			want:  `[{"unit":"AU12"}]`,
		},
		{
			name:  "braces inside string values",
			input: `Note: {"text":"a {weird} value","n":1} end`,
			want:  `{"text":"a {weird} value","n":1}`,
		},
		{
			name:  "escaped quote inside string",
			input: `{"text":"she said \"hi\" {","n":2}`,
			want:  `{"text":"she said \"hi\" {","n":2}`,
		},
		{
			name:  "no JSON structure returns trimmed input",
			input: "  I could not produce an analysis.  ",
			want:  "I could not produce an analysis.",
		},
		{
			name:  "unbalanced braces returned as-is",
			input: `{"mood":"calm"`,
			want:  `{"mood":"calm"`,
		},
		{
			name:  "empty input",
			input: "",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.input)
			if got != tt.want {
				t.Errorf("Normalize() = %q, want %q", got, tt.want)
			}
		})
	}
}

// Any JSON value wrapped in fences with arbitrary whitespace must survive
// Normalize followed by a structural decode exactly.
func TestNormalize_FencedRoundTrip(t *testing.T) {
	values := []interface{}{
		map[string]interface{}{"mood": "calm", "confidence": 0.9},
		map[string]interface{}{"nested": map[string]interface{}{"a": []interface{}{"x", "y"}}},
		[]interface{}{"one", "two"},
		map[string]interface{}{"text": "fenced ``` inside", "ok": true},
	}

	for _, original := range values {
		encoded, err := json.Marshal(original)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		wrapped := "\n\t  ```json\n" + string(encoded) + "\n```  \n "
		normalized := Normalize(wrapped)

		var decoded interface{}
		if err := json.Unmarshal([]byte(normalized), &decoded); err != nil {
			t.Fatalf("decode after Normalize failed: %v (normalized=%q)", err, normalized)
		}
		if diff := cmp.Diff(original, decoded); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestNormalize_IsPure(t *testing.T) {
	input := "```json\n{\"a\":1}\n```"
	first := Normalize(input)
	second := Normalize(input)
	if first != second {
		t.Errorf("Normalize not deterministic: %q vs %q", first, second)
	}
}
