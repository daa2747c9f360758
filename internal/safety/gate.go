package safety

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
	"github.com/TomBraudo/windows-assistant/internal/config"
)

// ConsoleGate asks a human on the terminal. No answer within the configured
// timeout means no: silence can never approve an action.
type ConsoleGate struct {
	in          io.Reader
	out         io.Writer
	timeout     time.Duration
	autoApprove bool
	logger      *zap.Logger
}

// NewConsoleGate builds the gate over the given streams, normally stdin and
// stderr. With cfg.AutoApprove the prompt is skipped and every request is
// approved; the timeout default-reject still applies when it is off.
func NewConsoleGate(cfg config.SafetyConfig, in io.Reader, out io.Writer, logger *zap.Logger) *ConsoleGate {
	return &ConsoleGate{
		in:          in,
		out:         out,
		timeout:     cfg.ConfirmationTimeout,
		autoApprove: cfg.AutoApprove,
		logger:      logger.Named("safety.gate"),
	}
}

// Confirm prompts and waits for an explicit yes.
func (g *ConsoleGate) Confirm(ctx context.Context, intent schemas.ActionIntent, reason string) (bool, error) {
	if g.autoApprove {
		g.logger.Info("Auto-approving sensitive action", zap.String("intent_id", intent.ID))
		return true, nil
	}

	fmt.Fprintf(g.out, "\nSensitive action: %s (%s)\nApprove? [y/N] (auto-deny in %s): ",
		intent.Kind, reason, g.timeout)

	type answer struct {
		approved bool
		err      error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(g.in).ReadString('\n')
		if err != nil && line == "" {
			ch <- answer{err: err}
			return
		}
		trimmed := strings.ToLower(strings.TrimSpace(line))
		ch <- answer{approved: trimmed == "y" || trimmed == "yes"}
	}()

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case a := <-ch:
		if a.err != nil {
			return false, fmt.Errorf("read confirmation: %w", a.err)
		}
		return a.approved, nil
	case <-timer.C:
		fmt.Fprintln(g.out, "\nNo answer, denying.")
		g.logger.Warn("Confirmation timed out, denying", zap.String("intent_id", intent.ID))
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}
