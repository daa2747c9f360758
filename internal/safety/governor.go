// Package safety gates sensitive actions behind human approval and provides
// the always-available emergency stop.
package safety

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
	"github.com/TomBraudo/windows-assistant/internal/config"
)

// Governor classifies intents and routes sensitive ones through the
// confirmation gate before they may execute.
type Governor struct {
	keywords []string
	kinds    map[schemas.ActionKind]bool
	gate     schemas.ConfirmationGate
	logger   *zap.Logger
}

// NewGovernor builds a governor with the configured sensitive kind and
// keyword lists.
func NewGovernor(cfg config.SafetyConfig, gate schemas.ConfirmationGate, logger *zap.Logger) *Governor {
	keywords := make([]string, len(cfg.SensitiveKeywords))
	for i, kw := range cfg.SensitiveKeywords {
		keywords[i] = strings.ToLower(kw)
	}
	kinds := make(map[schemas.ActionKind]bool, len(cfg.SensitiveKinds))
	for _, k := range cfg.SensitiveKinds {
		kinds[schemas.ActionKind(strings.ToLower(k))] = true
	}
	return &Governor{
		keywords: keywords,
		kinds:    kinds,
		gate:     gate,
		logger:   logger.Named("safety"),
	}
}

// Classify reports whether the intent is sensitive and why. Kind matches
// apply to every intent of that kind; keyword matches are checked against
// the intent's text, app name, URL and targetDescription, the detected
// description of the element the intent resolves to (empty when the intent
// has no element target).
func (g *Governor) Classify(intent schemas.ActionIntent, targetDescription string) (bool, string) {
	if g.kinds[intent.Kind] {
		return true, "action kind \"" + string(intent.Kind) + "\" is configured sensitive"
	}

	fields := []string{
		intent.Text,
		intent.AppName,
		intent.URL,
		targetDescription,
	}
	for _, field := range fields {
		lowered := strings.ToLower(field)
		for _, kw := range g.keywords {
			if kw != "" && strings.Contains(lowered, kw) {
				return true, "matches sensitive keyword \"" + kw + "\""
			}
		}
	}
	return false, ""
}

// Authorize blocks until the intent is cleared for execution. Non-sensitive
// intents pass immediately; sensitive ones require gate approval. Denial and
// gate failure both surface as SAFETY_REJECTED.
func (g *Governor) Authorize(ctx context.Context, intent schemas.ActionIntent, targetDescription string) error {
	sensitive, reason := g.Classify(intent, targetDescription)
	if !sensitive {
		return nil
	}

	g.logger.Warn("Sensitive action requires confirmation",
		zap.String("intent_id", intent.ID),
		zap.String("kind", string(intent.Kind)),
		zap.String("reason", reason))

	approved, err := g.gate.Confirm(ctx, intent, reason)
	if err != nil {
		return schemas.NewCoreError(schemas.ErrCodeSafetyRejected, "confirmation failed: %v", err)
	}
	if !approved {
		return schemas.NewCoreError(schemas.ErrCodeSafetyRejected, "action denied: %s", reason)
	}

	g.logger.Info("Sensitive action approved", zap.String("intent_id", intent.ID))
	return nil
}
