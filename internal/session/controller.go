// Package session owns the perceive-plan-act-verify loop. The controller is
// a finite-state scheduler: it spends iteration and wall-clock budgets,
// serializes access to the shared input resource, gates sensitive actions,
// and guarantees a terminal status no matter how the external services
// misbehave.
package session

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/TomBraudo/windows-assistant/api/schemas"
	"github.com/TomBraudo/windows-assistant/internal/config"
	"github.com/TomBraudo/windows-assistant/internal/filter"
	"github.com/TomBraudo/windows-assistant/internal/screen"
)

// Executor performs one validated intent against the current observation.
type Executor interface {
	Execute(ctx context.Context, intent schemas.ActionIntent, obs schemas.Observation) schemas.ActionResult
}

// Authorizer clears an intent for execution, blocking on human confirmation
// when the intent is sensitive.
type Authorizer interface {
	Authorize(ctx context.Context, intent schemas.ActionIntent, targetDescription string) error
}

// Archiver persists terminal reports. May be nil on the controller; a failed
// archive never changes the session outcome.
type Archiver interface {
	SaveReport(ctx context.Context, report schemas.SessionReport) error
}

// InputLock serializes pointer/keyboard access across concurrent sessions.
// Share one lock per process.
type InputLock = *semaphore.Weighted

// NewInputLock returns the process-wide exclusive input resource.
func NewInputLock() InputLock { return semaphore.NewWeighted(1) }

// Controller runs sessions. It is safe to run multiple sessions from one
// controller as long as they share the input lock.
type Controller struct {
	cfg       config.SessionConfig
	filterCfg config.FilterConfig

	env      *screen.Environment
	capturer screen.Capturer
	detector schemas.Detector
	planner  schemas.Planner
	verifier schemas.Verifier
	executor Executor
	auth     Authorizer
	archiver Archiver
	lock     InputLock
	logger   *zap.Logger
}

// NewController wires the loop's collaborators together.
func NewController(
	cfg config.SessionConfig,
	filterCfg config.FilterConfig,
	env *screen.Environment,
	capturer screen.Capturer,
	detector schemas.Detector,
	planner schemas.Planner,
	verifier schemas.Verifier,
	executor Executor,
	auth Authorizer,
	archiver Archiver,
	lock InputLock,
	logger *zap.Logger,
) *Controller {
	return &Controller{
		cfg:       cfg,
		filterCfg: filterCfg,
		env:       env,
		capturer:  capturer,
		detector:  detector,
		planner:   planner,
		verifier:  verifier,
		executor:  executor,
		auth:      auth,
		archiver:  archiver,
		lock:      lock,
		logger:    logger.Named("session"),
	}
}

// session is the mutable state of one run, touched only by the loop
// goroutine.
type session struct {
	id        string
	goal      string
	displayID int
	status    schemas.SessionStatus
	iteration int
	startedAt time.Time

	history       []schemas.HistoryEntry
	lastSummary   *schemas.ObservationSummary
	clarification string

	schemaFailures int // Consecutive planner schema rejections.
	stallCount     int // Contradicted verdicts since last confirmed.
	avoidPointer   bool
	targetFailures map[string]int // Consecutive failures per target.
}

// Run executes one session to a terminal status. The returned report always
// carries the full history; the error is non-nil only when the session could
// not start at all.
func (c *Controller) Run(ctx context.Context, goal string, displayID int) (schemas.SessionReport, error) {
	if strings.TrimSpace(goal) == "" {
		return schemas.SessionReport{}, fmt.Errorf("goal must not be empty")
	}
	if _, err := c.env.Display(displayID); err != nil {
		return schemas.SessionReport{}, fmt.Errorf("cannot start session: %w", err)
	}

	s := &session{
		id:             uuid.NewString(),
		goal:           goal,
		displayID:      displayID,
		status:         schemas.StatusInit,
		startedAt:      time.Now().UTC(),
		targetFailures: make(map[string]int),
	}

	c.logger.Info("Session starting",
		zap.String("session_id", s.id),
		zap.String("goal", goal),
		zap.Int("display_id", displayID),
		zap.Int("max_iterations", c.cfg.MaxIterations))

	c.loop(ctx, s)

	report := c.report(s)
	c.archive(report)
	c.logger.Info("Session finished",
		zap.String("session_id", s.id),
		zap.String("status", string(report.Status)),
		zap.Int("iterations_used", report.IterationsUsed))
	return report, nil
}

func (c *Controller) loop(ctx context.Context, s *session) {
	for s.iteration < c.cfg.MaxIterations {
		if c.aborted(ctx, s) {
			return
		}
		if c.cfg.Budget > 0 && time.Since(s.startedAt) > c.cfg.Budget {
			c.fail(s, "wall-clock budget exhausted")
			return
		}

		s.iteration++
		if !c.iterate(ctx, s) {
			return
		}
	}

	if !s.status.Terminal() {
		c.fail(s, "iteration budget exhausted")
	}
}

// iterate runs one perceive-plan-act-verify cycle under the exclusive input
// resource. It returns false once the session is terminal.
func (c *Controller) iterate(ctx context.Context, s *session) bool {
	if err := c.lock.Acquire(ctx, 1); err != nil {
		c.abort(s, "cancelled while waiting for input resource")
		return false
	}
	defer c.lock.Release(1)

	// PLANNING: acquire a fresh observation.
	s.status = schemas.StatusPlanning
	obs, ok := c.observe(ctx, s)
	if !ok {
		return false
	}
	summary := obs.Summarize(c.cfg.SummaryElements)
	s.lastSummary = &summary

	if c.aborted(ctx, s) {
		return false
	}

	// FILTERING: narrow candidates, then consult the planner.
	s.status = schemas.StatusFiltering
	candidates := c.filterElements(s, obs)

	decision, ok, terminal := c.plan(ctx, s, summary, candidates)
	if terminal {
		return false
	}
	if !ok {
		return true // Schema failure inside budget; spend the iteration.
	}

	switch {
	case decision.Termination != nil:
		if decision.Termination.Verdict == schemas.TerminationSuccess {
			c.logger.Info("Planner declared the goal reached",
				zap.String("session_id", s.id),
				zap.String("message", decision.Termination.Message))
			s.status = schemas.StatusDone
		} else {
			c.fail(s, "planner declared failure: "+decision.Termination.Message)
		}
		return false

	case decision.Clarification != nil:
		s.clarification = decision.Clarification.Question
		c.abort(s, "planner requested clarification")
		return false
	}

	intent := decision.Intent

	// ACTING.
	if c.aborted(ctx, s) {
		return false
	}
	s.status = schemas.StatusActing

	if err := c.auth.Authorize(ctx, *intent, c.targetDescription(intent, obs)); err != nil {
		s.history = append(s.history, schemas.HistoryEntry{
			Iteration: s.iteration,
			Intent:    *intent,
			Result: schemas.ActionResult{
				IntentID: intent.ID,
				Status:   schemas.ActionFailed,
				Error:    &schemas.CoreError{Code: schemas.ErrCodeSafetyRejected, Detail: err.Error()},
			},
		})
		c.abort(s, "safety rejected: "+err.Error())
		return false
	}

	result := c.executor.Execute(ctx, *intent, obs)

	if result.Status == schemas.ActionFailed {
		s.history = append(s.history, schemas.HistoryEntry{
			Iteration: s.iteration,
			Intent:    *intent,
			Result:    result,
		})
		return c.handleActionFailure(ctx, s, intent, result)
	}

	// VERIFYING. An executed action is recorded even when the abort lands
	// between action and verification.
	if c.aborted(ctx, s) {
		s.history = append(s.history, schemas.HistoryEntry{
			Iteration: s.iteration,
			Intent:    *intent,
			Result:    result,
		})
		return false
	}
	s.status = schemas.StatusVerifying

	verdict := c.verify(ctx, s, summary, *intent)
	if verdict == schemas.VerdictContradicted {
		// The injection succeeded but its claimed effect did not appear.
		// Record the taxonomy code so the planner sees the contradiction in
		// the history alongside the verdict.
		result.Error = &schemas.CoreError{
			Code:   schemas.ErrCodeVerificationContradiction,
			Detail: "claimed effect not visible after the action",
		}
	}
	s.history = append(s.history, schemas.HistoryEntry{
		Iteration: s.iteration,
		Intent:    *intent,
		Result:    result,
		Verdict:   verdict,
	})
	delete(s.targetFailures, targetKey(intent))

	switch verdict {
	case schemas.VerdictConfirmed:
		s.stallCount = 0
	case schemas.VerdictContradicted:
		s.stallCount++
		if s.stallCount >= c.cfg.StallThreshold {
			return c.escalate(s, "verification keeps contradicting pointer effects")
		}
	}

	return true
}

// observe captures and detects, retrying transient perception failures with
// backoff. A false return means the session reached a terminal status.
func (c *Controller) observe(ctx context.Context, s *session) (schemas.Observation, bool) {
	var obs schemas.Observation

	operation := func() error {
		path, err := c.capturer.Capture(s.displayID)
		if err != nil {
			return schemas.NewCoreError(schemas.ErrCodePerception, "capture failed: %v", err)
		}
		defer os.Remove(path)

		callCtx, cancel := context.WithTimeout(ctx, c.cfg.PerceptionTimeout)
		defer cancel()

		obs, err = c.detector.Detect(callCtx, path, s.displayID)
		if err != nil {
			switch schemas.CodeOf(err) {
			case schemas.ErrCodePerception, schemas.ErrCodeTimeout:
				if ctx.Err() != nil {
					return backoff.Permanent(err)
				}
				c.logger.Warn("Observation failed, retrying",
					zap.String("session_id", s.id), zap.Error(err))
				return err
			default:
				return backoff.Permanent(err)
			}
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 5 * time.Second
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.RetryMax)), ctx))
	if err != nil {
		if ctx.Err() != nil {
			c.abort(s, "cancelled during observation")
		} else {
			c.fail(s, "observation failed after retries: "+err.Error())
		}
		return schemas.Observation{}, false
	}
	return obs, true
}

// filterElements narrows the observation to the planner's candidate budget.
// Goal words act as soft keywords; the relaxation path drops them whenever
// they would eliminate every element.
func (c *Controller) filterElements(s *session, obs schemas.Observation) []schemas.Element {
	display, err := c.env.Display(s.displayID)
	if err != nil {
		return nil
	}

	f := filter.New(display.Bounds.Width(), display.Bounds.Height(), c.logger)
	res := f.Apply(obs.Elements, filter.Spec{
		Keywords: goalKeywords(s.goal),
		Strict:   c.filterCfg.Strict,
	}, c.filterCfg.Budget)

	c.logger.Debug("Candidates selected",
		zap.String("session_id", s.id),
		zap.Int("candidates", len(res.Candidates)),
		zap.Int("relaxed", len(res.Relaxed)))
	return res.Candidates
}

// plan consults the planner once. ok reports a usable decision; terminal
// reports that the session ended here.
func (c *Controller) plan(ctx context.Context, s *session, summary schemas.ObservationSummary, candidates []schemas.Element) (schemas.PlannerDecision, bool, bool) {
	history := s.history
	if len(history) > c.cfg.HistoryWindow {
		history = history[len(history)-c.cfg.HistoryWindow:]
	}

	req := schemas.PlanRequest{
		Goal:         s.goal,
		Summary:      summary,
		History:      history,
		Candidates:   candidates,
		AvoidPointer: s.avoidPointer,
		SessionID:    s.id,
	}

	var decision schemas.PlannerDecision
	operation := func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.cfg.PlanTimeout)
		defer cancel()

		var err error
		decision, err = c.planner.Plan(callCtx, req)
		if err != nil {
			if schemas.CodeOf(err) == schemas.ErrCodePlannerSchema || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			c.logger.Warn("Planner call failed, retrying",
				zap.String("session_id", s.id), zap.Error(err))
			return err
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = 5 * time.Second
	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.RetryMax)), ctx))
	if err != nil {
		if ctx.Err() != nil {
			c.abort(s, "cancelled during planning")
			return schemas.PlannerDecision{}, false, true
		}
		if schemas.CodeOf(err) == schemas.ErrCodePlannerSchema {
			s.schemaFailures++
			c.logger.Warn("Planner schema failure",
				zap.String("session_id", s.id),
				zap.Int("consecutive", s.schemaFailures),
				zap.Error(err))
			if s.schemaFailures >= c.cfg.PlannerFailureBudget {
				c.fail(s, "planner schema failure budget exhausted")
				return schemas.PlannerDecision{}, false, true
			}
			return schemas.PlannerDecision{}, false, false
		}
		c.fail(s, "planner unavailable: "+err.Error())
		return schemas.PlannerDecision{}, false, true
	}

	s.schemaFailures = 0
	return decision, true, false
}

// verify re-observes and asks the verifier to judge the claimed effect.
// Verification trouble degrades to unconfirmed; it never ends the session by
// itself.
func (c *Controller) verify(ctx context.Context, s *session, pre schemas.ObservationSummary, claimed schemas.ActionIntent) schemas.Verdict {
	path, err := c.capturer.Capture(s.displayID)
	if err != nil {
		c.logger.Warn("Post-action capture failed", zap.String("session_id", s.id), zap.Error(err))
		return schemas.VerdictUnconfirmed
	}
	defer os.Remove(path)

	obsCtx, cancel := context.WithTimeout(ctx, c.cfg.PerceptionTimeout)
	post, err := c.detector.Detect(obsCtx, path, s.displayID)
	cancel()
	if err != nil {
		c.logger.Warn("Post-action observation failed", zap.String("session_id", s.id), zap.Error(err))
		return schemas.VerdictUnconfirmed
	}

	postSummary := post.Summarize(c.cfg.SummaryElements)
	s.lastSummary = &postSummary

	verifyCtx, cancel := context.WithTimeout(ctx, c.cfg.VerifyTimeout)
	defer cancel()

	verdict, err := c.verifier.Verify(verifyCtx, pre, postSummary, claimed)
	if err != nil {
		c.logger.Warn("Verification errored, treating as unconfirmed",
			zap.String("session_id", s.id), zap.Error(err))
		return schemas.VerdictUnconfirmed
	}
	return verdict
}

// handleActionFailure feeds an execution failure back into the loop. Safety
// and rate failures have their own policies; recurring failures against the
// same target escalate instead of looping forever.
func (c *Controller) handleActionFailure(ctx context.Context, s *session, intent *schemas.ActionIntent, result schemas.ActionResult) bool {
	code := schemas.ErrorCode("")
	if result.Error != nil {
		code = result.Error.Code
	}
	c.logger.Warn("Action failed",
		zap.String("session_id", s.id),
		zap.String("kind", string(intent.Kind)),
		zap.String("code", string(code)))

	if ctx.Err() != nil {
		c.abort(s, "cancelled during action")
		return false
	}

	switch code {
	case schemas.ErrCodeCoordinateOutOfBounds, schemas.ErrCodeActionExecution:
		key := targetKey(intent)
		s.targetFailures[key]++
		if s.targetFailures[key] >= c.cfg.RepeatTargetLimit {
			return c.escalate(s, "same target keeps failing")
		}
		// A display change can invalidate coordinates mid-session.
		if code == schemas.ErrCodeCoordinateOutOfBounds {
			if err := c.env.Invalidate(); err != nil {
				c.fail(s, "display environment became invalid: "+err.Error())
				return false
			}
		}
		return true

	case schemas.ErrCodeRateLimit:
		return true // The result is already in history; the planner sees it.

	default:
		return true
	}
}

// escalate crosses into ESCALATING: first by biasing the planner away from
// pointer actions, then, if already biased, by giving up.
func (c *Controller) escalate(s *session, why string) bool {
	s.status = schemas.StatusEscalating
	if !s.avoidPointer {
		c.logger.Warn("Escalating: biasing away from pointer actions",
			zap.String("session_id", s.id), zap.String("reason", why))
		s.avoidPointer = true
		s.stallCount = 0
		for k := range s.targetFailures {
			delete(s.targetFailures, k)
		}
		return true
	}
	c.fail(s, "escalation exhausted: "+why)
	return false
}

func (c *Controller) targetDescription(intent *schemas.ActionIntent, obs schemas.Observation) string {
	if intent.ElementID == nil {
		return ""
	}
	for _, el := range obs.Elements {
		if el.ID == *intent.ElementID {
			return el.Description
		}
	}
	return ""
}

func (c *Controller) aborted(ctx context.Context, s *session) bool {
	if ctx.Err() != nil {
		c.abort(s, "external cancellation")
		return true
	}
	return false
}

func (c *Controller) abort(s *session, why string) {
	c.logger.Warn("Session aborted", zap.String("session_id", s.id), zap.String("reason", why))
	s.status = schemas.StatusAborted
}

func (c *Controller) fail(s *session, why string) {
	c.logger.Warn("Session failed", zap.String("session_id", s.id), zap.String("reason", why))
	s.status = schemas.StatusFailed
}

func (c *Controller) report(s *session) schemas.SessionReport {
	return schemas.SessionReport{
		SessionID:      s.id,
		Goal:           s.goal,
		Status:         s.status,
		IterationsUsed: s.iteration,
		History:        s.history,
		FinalSummary:   s.lastSummary,
		StartedAt:      s.startedAt,
		EndedAt:        time.Now().UTC(),
		Clarification:  s.clarification,
	}
}

// archive persists the report on teardown. Uses its own context: the session
// context is often already cancelled when an abort report is written.
func (c *Controller) archive(report schemas.SessionReport) {
	if c.archiver == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.archiver.SaveReport(ctx, report); err != nil {
		c.logger.Error("Failed to archive session report",
			zap.String("session_id", report.SessionID), zap.Error(err))
	}
}

// targetKey identifies what an intent aimed at, for repeat-failure tracking.
func targetKey(intent *schemas.ActionIntent) string {
	switch {
	case intent.ElementID != nil:
		return fmt.Sprintf("el:%d", *intent.ElementID)
	case intent.Target != nil:
		return fmt.Sprintf("pt:%.0f,%.0f", intent.Target.X, intent.Target.Y)
	default:
		return "kind:" + string(intent.Kind)
	}
}

// goalKeywords extracts soft ranking keywords from the goal text.
func goalKeywords(goal string) []string {
	words := strings.Fields(strings.ToLower(goal))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.Trim(w, ".,!?\"'()")
		if len(w) >= 3 {
			out = append(out, w)
		}
	}
	return out
}
