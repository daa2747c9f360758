package schemas

import "context"

// Detector is the boundary to the external UI-element detection service. It
// turns a screenshot into the element set of one observation. Implementations
// own retry policy; a returned error is terminal for the call.
type Detector interface {
	Detect(ctx context.Context, screenshotPath string, displayID int) (Observation, error)
}

// PlanRequest carries everything the planner may consider for one decision.
type PlanRequest struct {
	Goal       string
	Summary    ObservationSummary
	History    []HistoryEntry // Bounded window, most recent last.
	Candidates []Element      // Filtered candidate set; element ids are from Summary's observation.
	// AvoidPointer biases the planner away from pointer primitives. Set while
	// a session is escalating after repeated contradicted verdicts.
	AvoidPointer bool
	SessionID    string
}

// Planner is the boundary to the external reasoning capability. The returned
// decision is schema-validated by the caller before any use; an intent that
// fails validation is a planner error, not an execution candidate.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (PlannerDecision, error)
}

// Verifier compares pre- and post-action observations against the claimed
// intent.
type Verifier interface {
	Verify(ctx context.Context, pre, post ObservationSummary, claimed ActionIntent) (Verdict, error)
}

// ConfirmationGate is the synchronous human-approval boundary for sensitive
// actions. Implementations must default to rejection on timeout.
type ConfirmationGate interface {
	Confirm(ctx context.Context, intent ActionIntent, reason string) (bool, error)
}

// ModelTier selects between the fast and powerful reasoning models.
type ModelTier string

const (
	TierFast     ModelTier = "fast"
	TierPowerful ModelTier = "powerful"
)

// GenerationOptions tunes one LLM call.
type GenerationOptions struct {
	Temperature     float64 `json:"temperature"`
	ForceJSONFormat bool    `json:"force_json_format"`
	MaxTokens       int     `json:"max_tokens"`
}

// GenerationRequest is one complete request to the LLM.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	Tier         ModelTier         `json:"tier"`
	Options      GenerationOptions `json:"options"`
}

// LLMClient abstracts the underlying language-model provider.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	Close() error
}
