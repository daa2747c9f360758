// Package planner adapts the external reasoning model into schema-validated
// decisions. Model output is untrusted text; nothing leaves this package
// without passing the decision schema.
package planner

import (
	"context"

	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

// LLMPlanner implements schemas.Planner on top of the tiered LLM client.
// Planning always uses the powerful tier.
type LLMPlanner struct {
	llm    schemas.LLMClient
	logger *zap.Logger
}

// NewLLMPlanner builds the planner adapter.
func NewLLMPlanner(llm schemas.LLMClient, logger *zap.Logger) *LLMPlanner {
	return &LLMPlanner{
		llm:    llm,
		logger: logger.Named("planner"),
	}
}

// Plan requests one decision for the current situation. A response that
// fails schema validation is returned as a PLANNER_SCHEMA_ERROR; the caller
// owns the consecutive-failure budget.
func (p *LLMPlanner) Plan(ctx context.Context, req schemas.PlanRequest) (schemas.PlannerDecision, error) {
	system := systemPrompt
	if req.AvoidPointer {
		system += avoidPointerNote
	}

	raw, err := p.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: system,
		UserPrompt:   buildUserPrompt(req),
		Tier:         schemas.TierPowerful,
		Options: schemas.GenerationOptions{
			Temperature:     0.2,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return schemas.PlannerDecision{}, err
	}

	candidateIDs := make(map[int]bool, len(req.Candidates))
	for _, el := range req.Candidates {
		candidateIDs[el.ID] = true
	}

	decision, err := ParseDecision(raw, req.SessionID, candidateIDs)
	if err != nil {
		p.logger.Warn("Planner produced an invalid decision",
			zap.String("session_id", req.SessionID),
			zap.Error(err))
		return schemas.PlannerDecision{}, err
	}

	switch {
	case decision.Intent != nil:
		p.logger.Info("Planner decided on an action",
			zap.String("session_id", req.SessionID),
			zap.String("kind", string(decision.Intent.Kind)))
	case decision.Termination != nil:
		p.logger.Info("Planner declared termination",
			zap.String("session_id", req.SessionID),
			zap.String("verdict", string(decision.Termination.Verdict)))
	default:
		p.logger.Info("Planner requested clarification",
			zap.String("session_id", req.SessionID))
	}

	return decision, nil
}
