package planner

import (
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// wireDecision is the raw model output shape. Exactly one of Action,
// Terminate or Clarify must be present.
type wireDecision struct {
	Thought   string           `json:"thought"`
	Action    *wireAction      `json:"action"`
	Terminate *wireTermination `json:"terminate"`
	Clarify   *wireClarify     `json:"clarify"`
}

type wireAction struct {
	Tool   string     `json:"tool"`
	Params wireParams `json:"params"`
}

type wireParams struct {
	ElementID    *int     `json:"element_id"`
	X            *float64 `json:"x"`
	Y            *float64 `json:"y"`
	FromX        *float64 `json:"from_x"`
	FromY        *float64 `json:"from_y"`
	Text         string   `json:"text"`
	Key          string   `json:"key"`
	Keys         []string `json:"keys"`
	Button       string   `json:"button"`
	Clicks       int      `json:"clicks"`
	ScrollAmount int      `json:"scroll_amount"`
	Direction    string   `json:"direction"`
	AppName      string   `json:"app_name"`
	URL          string   `json:"url"`
	Rationale    string   `json:"rationale"`
}

type wireTermination struct {
	Verdict string `json:"verdict"`
	Message string `json:"message"`
}

type wireClarify struct {
	Question string `json:"question"`
}

// ParseDecision turns raw model output into a validated decision. Models
// frequently wrap JSON in markdown fences; those are tolerated. Every other
// deviation from the schema is a PLANNER_SCHEMA_ERROR: the decision is
// rejected before anything downstream can act on it. candidateIDs is the set
// of element ids the model was shown; an intent may only reference those.
func ParseDecision(raw string, sessionID string, candidateIDs map[int]bool) (schemas.PlannerDecision, error) {
	var d wireDecision
	if err := json.UnmarshalFromString(stripFences(raw), &d); err != nil {
		return schemas.PlannerDecision{}, schemas.NewCoreError(schemas.ErrCodePlannerSchema, "decision is not valid JSON: %v", err)
	}

	set := 0
	for _, present := range []bool{d.Action != nil, d.Terminate != nil, d.Clarify != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return schemas.PlannerDecision{}, schemas.NewCoreError(schemas.ErrCodePlannerSchema, "decision must contain exactly one of action, terminate or clarify (got %d)", set)
	}

	switch {
	case d.Terminate != nil:
		verdict := schemas.TerminationVerdict(d.Terminate.Verdict)
		if verdict != schemas.TerminationSuccess && verdict != schemas.TerminationFailure {
			return schemas.PlannerDecision{}, schemas.NewCoreError(schemas.ErrCodePlannerSchema, "unknown termination verdict %q", d.Terminate.Verdict)
		}
		return schemas.PlannerDecision{Termination: &schemas.Termination{
			Verdict: verdict,
			Message: d.Terminate.Message,
		}}, nil

	case d.Clarify != nil:
		if strings.TrimSpace(d.Clarify.Question) == "" {
			return schemas.PlannerDecision{}, schemas.NewCoreError(schemas.ErrCodePlannerSchema, "clarification without a question")
		}
		return schemas.PlannerDecision{Clarification: &schemas.ClarificationRequest{
			Question: d.Clarify.Question,
		}}, nil

	default:
		intent, err := buildIntent(d, sessionID, candidateIDs)
		if err != nil {
			return schemas.PlannerDecision{}, err
		}
		return schemas.PlannerDecision{Intent: intent}, nil
	}
}

func buildIntent(d wireDecision, sessionID string, candidateIDs map[int]bool) (*schemas.ActionIntent, error) {
	kind := schemas.ActionKind(d.Action.Tool)
	known := false
	for _, k := range schemas.ActionKinds() {
		if k == kind {
			known = true
			break
		}
	}
	if !known {
		return nil, schemas.NewCoreError(schemas.ErrCodePlannerSchema, "unknown tool %q", d.Action.Tool)
	}

	p := d.Action.Params
	intent := &schemas.ActionIntent{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Kind:      kind,
		Thought:   d.Thought,
		Rationale: p.Rationale,
		Timestamp: time.Now().UTC(),
	}

	if p.ElementID != nil {
		if !candidateIDs[*p.ElementID] {
			return nil, schemas.NewCoreError(schemas.ErrCodePlannerSchema, "element_id %d is not among the offered candidates", *p.ElementID)
		}
		intent.ElementID = p.ElementID
	}
	if p.X != nil && p.Y != nil {
		intent.Target = &schemas.Point{X: *p.X, Y: *p.Y}
	} else if p.X != nil || p.Y != nil {
		return nil, schemas.NewCoreError(schemas.ErrCodePlannerSchema, "target coordinates require both x and y")
	}
	if p.FromX != nil && p.FromY != nil {
		intent.DragFrom = &schemas.Point{X: *p.FromX, Y: *p.FromY}
	} else if p.FromX != nil || p.FromY != nil {
		return nil, schemas.NewCoreError(schemas.ErrCodePlannerSchema, "drag origin requires both from_x and from_y")
	}

	switch kind {
	case schemas.ActionPointerMove:
		if intent.ElementID == nil && intent.Target == nil {
			return nil, missingParam(kind, "element_id or x/y")
		}

	case schemas.ActionPointerClick:
		if intent.ElementID == nil && intent.Target == nil {
			return nil, missingParam(kind, "element_id or x/y")
		}
		intent.Button = schemas.ButtonLeft
		if p.Button != "" {
			b := schemas.MouseButton(p.Button)
			if b != schemas.ButtonLeft && b != schemas.ButtonRight && b != schemas.ButtonMiddle {
				return nil, schemas.NewCoreError(schemas.ErrCodePlannerSchema, "unknown mouse button %q", p.Button)
			}
			intent.Button = b
		}
		intent.Clicks = p.Clicks
		if intent.Clicks <= 0 {
			intent.Clicks = 1
		}

	case schemas.ActionPointerDrag:
		if intent.ElementID == nil && intent.Target == nil {
			return nil, missingParam(kind, "element_id or x/y")
		}
		if intent.DragFrom == nil {
			return nil, missingParam(kind, "from_x/from_y")
		}
		intent.Button = schemas.ButtonLeft

	case schemas.ActionKeyPress:
		if p.Key == "" {
			return nil, missingParam(kind, "key")
		}
		intent.Key = p.Key

	case schemas.ActionHotkeyCombo:
		if len(p.Keys) == 0 {
			return nil, missingParam(kind, "keys")
		}
		intent.Keys = p.Keys

	case schemas.ActionTextEntry:
		if p.Text == "" {
			return nil, missingParam(kind, "text")
		}
		intent.Text = p.Text
		intent.Key = p.Key // Optional terminator, e.g. "enter".

	case schemas.ActionScroll:
		dir := schemas.ScrollDirection(p.Direction)
		if dir != schemas.ScrollUp && dir != schemas.ScrollDown {
			return nil, schemas.NewCoreError(schemas.ErrCodePlannerSchema, "unknown scroll direction %q", p.Direction)
		}
		intent.Direction = dir
		intent.ScrollAmount = p.ScrollAmount
		if intent.ScrollAmount <= 0 {
			return nil, missingParam(kind, "scroll_amount")
		}

	case schemas.ActionLaunchApp:
		if p.AppName == "" {
			return nil, missingParam(kind, "app_name")
		}
		intent.AppName = p.AppName

	case schemas.ActionOpenURL:
		if p.URL == "" {
			return nil, missingParam(kind, "url")
		}
		intent.URL = p.URL
	}

	return intent, nil
}

func missingParam(kind schemas.ActionKind, param string) error {
	return schemas.NewCoreError(schemas.ErrCodePlannerSchema, "%s requires %s", kind, param)
}

// stripFences removes a surrounding markdown code fence, with or without a
// language tag.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.IndexByte(s, '\n'); idx >= 0 && !strings.HasPrefix(s, "{") {
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
