package planner

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

// FuzzParseDecision asserts the parser never panics and never returns a
// half-built decision on arbitrary model output.
func FuzzParseDecision(f *testing.F) {
	f.Add(`{"thought":"t","action":{"tool":"pointer_click","params":{"element_id":1}}}`)
	f.Add(`{"terminate":{"verdict":"success","message":"done"}}`)
	f.Add(`{"clarify":{"question":"which window?"}}`)
	f.Add("```json\n{\"terminate\":{\"verdict\":\"failure\",\"message\":\"stuck\"}}\n```")
	f.Add(`not json at all`)
	f.Add(``)

	f.Fuzz(func(t *testing.T, raw string) {
		d, err := ParseDecision(raw, "fuzz-session", map[int]bool{1: true})
		if err != nil {
			if schemas.CodeOf(err) != schemas.ErrCodePlannerSchema {
				t.Fatalf("unexpected error class: %v", err)
			}
			return
		}

		branches := 0
		if d.Intent != nil {
			branches++
		}
		if d.Termination != nil {
			branches++
		}
		if d.Clarification != nil {
			branches++
		}
		if branches != 1 {
			t.Fatalf("accepted decision with %d branches set", branches)
		}
	})
}

// FuzzParseDecisionStructured drives the parser with structurally generated
// wire payloads rather than raw bytes.
func FuzzParseDecisionStructured(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		fuzzConsumer := fuzz.NewConsumer(data)

		var wire wireDecision
		if err := fuzzConsumer.GenerateStruct(&wire); err != nil {
			return
		}
		encoded, err := json.MarshalToString(wire)
		if err != nil {
			return
		}

		if _, err := ParseDecision(encoded, "fuzz-session", nil); err != nil {
			if schemas.CodeOf(err) != schemas.ErrCodePlannerSchema {
				t.Fatalf("unexpected error class: %v", err)
			}
		}
	})
}
