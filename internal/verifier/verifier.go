// Package verifier checks whether an executed action had its claimed effect
// by comparing the observations taken before and after it.
package verifier

import (
	"context"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const systemPrompt = `You judge whether a desktop action had its claimed effect.
You receive the screen state before the action, the screen state after it, and
the action that was performed.

Respond with a single JSON object and nothing else:
  {"verdict": "confirmed" | "unconfirmed" | "contradicted", "reason": "..."}

- "confirmed": the after-state clearly shows the expected effect.
- "contradicted": the after-state clearly shows the effect did not happen.
- "unconfirmed": the evidence is insufficient either way.`

type wireVerdict struct {
	Verdict string `json:"verdict"`
	Reason  string `json:"reason"`
}

// LLMVerifier implements schemas.Verifier on the fast model tier. A response
// that cannot be parsed, or a transport failure, degrades to unconfirmed:
// verification can stall progress but never blesses an unproven effect.
type LLMVerifier struct {
	llm    schemas.LLMClient
	logger *zap.Logger
}

// NewLLMVerifier builds the verifier adapter.
func NewLLMVerifier(llm schemas.LLMClient, logger *zap.Logger) *LLMVerifier {
	return &LLMVerifier{
		llm:    llm,
		logger: logger.Named("verifier"),
	}
}

// Verify compares pre and post against the claimed intent.
func (v *LLMVerifier) Verify(ctx context.Context, pre, post schemas.ObservationSummary, claimed schemas.ActionIntent) (schemas.Verdict, error) {
	raw, err := v.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   buildPrompt(pre, post, claimed),
		Tier:         schemas.TierFast,
		Options: schemas.GenerationOptions{
			Temperature:     0.0,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return schemas.VerdictUnconfirmed, schemas.NewCoreError(schemas.ErrCodeTimeout, "verification: %v", err)
		}
		v.logger.Warn("Verifier call failed, degrading to unconfirmed", zap.Error(err))
		return schemas.VerdictUnconfirmed, nil
	}

	verdict, reason, ok := parseVerdict(raw)
	if !ok {
		v.logger.Warn("Verifier returned malformed verdict, degrading to unconfirmed",
			zap.String("response", raw))
		return schemas.VerdictUnconfirmed, nil
	}

	v.logger.Debug("Verification complete",
		zap.String("verdict", string(verdict)),
		zap.String("reason", reason))
	return verdict, nil
}

func parseVerdict(raw string) (schemas.Verdict, string, bool) {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.IndexByte(s, '\n'); idx >= 0 && !strings.HasPrefix(s, "{") {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}

	var w wireVerdict
	if err := json.UnmarshalFromString(s, &w); err != nil {
		return "", "", false
	}
	switch verdict := schemas.Verdict(w.Verdict); verdict {
	case schemas.VerdictConfirmed, schemas.VerdictUnconfirmed, schemas.VerdictContradicted:
		return verdict, w.Reason, true
	}
	return "", "", false
}

func buildPrompt(pre, post schemas.ObservationSummary, claimed schemas.ActionIntent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "ACTION: %s", claimed.Kind)
	if claimed.Text != "" {
		fmt.Fprintf(&b, " text=%q", claimed.Text)
	}
	if claimed.Key != "" {
		fmt.Fprintf(&b, " key=%q", claimed.Key)
	}
	if len(claimed.Keys) > 0 {
		fmt.Fprintf(&b, " keys=%v", claimed.Keys)
	}
	if claimed.AppName != "" {
		fmt.Fprintf(&b, " app=%q", claimed.AppName)
	}
	if claimed.URL != "" {
		fmt.Fprintf(&b, " url=%q", claimed.URL)
	}
	if claimed.Thought != "" {
		fmt.Fprintf(&b, "\nINTENT: %s", claimed.Thought)
	}

	b.WriteString("\n\nBEFORE:\n")
	writeSummary(&b, pre)
	b.WriteString("\nAFTER:\n")
	writeSummary(&b, post)
	b.WriteString("\nDid the action have its claimed effect?")
	return b.String()
}

func writeSummary(b *strings.Builder, s schemas.ObservationSummary) {
	fmt.Fprintf(b, "  display %d, %d elements\n", s.DisplayID, s.ElementCount)
	for _, el := range s.Elements {
		c := el.BBox.Center()
		fmt.Fprintf(b, "  [%d] %s at (%.0f,%.0f): %s\n", el.ID, el.Kind, c.X, c.Y, el.Description)
	}
}
