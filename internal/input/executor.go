package input

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/TomBraudo/windows-assistant/api/schemas"
	"github.com/TomBraudo/windows-assistant/internal/config"
	"github.com/TomBraudo/windows-assistant/internal/screen"
)

// Executor turns validated intents into driver calls. It owns the action
// rate cap, coordinate resolution against the current observation, and the
// pre-injection revalidation of every pointer coordinate.
type Executor struct {
	driver  Driver
	env     *screen.Environment
	limiter *rate.Limiter
	cfg     config.InputConfig
	logger  *zap.Logger
}

// NewExecutor builds the executor. The rate cap is enforced across every
// action the executor performs, regardless of session.
func NewExecutor(driver Driver, env *screen.Environment, cfg config.InputConfig, logger *zap.Logger) *Executor {
	perSecond := rate.Limit(float64(cfg.RatePerMinute) / 60.0)
	return &Executor{
		driver:  driver,
		env:     env,
		limiter: rate.NewLimiter(perSecond, 1),
		cfg:     cfg,
		logger:  logger.Named("input"),
	}
}

// Execute performs one intent against the elements of obs. The outcome is
// always reported through the result; a failed attempt carries the error
// code the planner will see on the next iteration.
func (e *Executor) Execute(ctx context.Context, intent schemas.ActionIntent, obs schemas.Observation) schemas.ActionResult {
	start := time.Now()
	result := schemas.ActionResult{IntentID: intent.ID, Status: schemas.ActionFailed}

	if err := e.waitForSlot(ctx); err != nil {
		result.Error = err
		result.Duration = time.Since(start)
		return result
	}

	target, dragFrom, coreErr := e.resolve(intent, obs)
	if coreErr != nil {
		result.Error = coreErr
		result.Duration = time.Since(start)
		return result
	}

	// Display geometry may have changed between resolution and injection.
	for _, p := range []*schemas.Point{target, dragFrom} {
		if p == nil {
			continue
		}
		if err := e.env.Revalidate(*p, obs.DisplayID); err != nil {
			result.Error = asCoreError(err, schemas.ErrCodeCoordinateOutOfBounds)
			result.Duration = time.Since(start)
			return result
		}
	}

	effect, err := e.dispatch(ctx, intent, target, dragFrom)
	if err != nil {
		e.logger.Warn("Action failed",
			zap.String("intent_id", intent.ID),
			zap.String("kind", string(intent.Kind)),
			zap.Error(err))
		result.Error = asCoreError(err, schemas.ErrCodeActionExecution)
		result.Duration = time.Since(start)
		return result
	}

	e.settle(ctx)

	result.Status = schemas.ActionOK
	result.Effect = effect
	result.Resolved = target
	result.Duration = time.Since(start)

	e.logger.Info("Action executed",
		zap.String("intent_id", intent.ID),
		zap.String("kind", string(intent.Kind)),
		zap.Duration("duration", result.Duration))
	return result
}

// PointerPosition exposes the driver's pointer read for the emergency-stop
// monitor.
func (e *Executor) PointerPosition() (int, int) {
	return e.driver.PointerPosition()
}

// waitForSlot blocks for a rate-limiter slot, bounded by the configured
// queue wait. Exceeding the bound is a RATE_LIMIT_EXCEEDED failure, not an
// indefinite stall.
func (e *Executor) waitForSlot(ctx context.Context) *schemas.CoreError {
	waitCtx, cancel := context.WithTimeout(ctx, e.cfg.MaxQueueWait)
	defer cancel()

	if err := e.limiter.Wait(waitCtx); err != nil {
		if ctx.Err() != nil {
			return schemas.NewCoreError(schemas.ErrCodeTimeout, "rate wait interrupted: %v", ctx.Err())
		}
		return schemas.NewCoreError(schemas.ErrCodeRateLimit, "no rate slot within %s", e.cfg.MaxQueueWait)
	}
	return nil
}

// resolve maps the intent's element reference or explicit coordinates into
// global physical points. Resolution never clamps; anything outside the
// display is rejected.
func (e *Executor) resolve(intent schemas.ActionIntent, obs schemas.Observation) (target, dragFrom *schemas.Point, _ *schemas.CoreError) {
	if intent.ElementID != nil {
		var el *schemas.Element
		for i := range obs.Elements {
			if obs.Elements[i].ID == *intent.ElementID {
				el = &obs.Elements[i]
				break
			}
		}
		if el == nil {
			return nil, nil, schemas.NewCoreError(schemas.ErrCodeActionExecution, "element %d not present in observation %s", *intent.ElementID, obs.ID)
		}
		p, err := e.env.ResolveBBoxCenter(el.BBox, screen.SpacePhysical, obs.DisplayID)
		if err != nil {
			return nil, nil, asCoreError(err, schemas.ErrCodeCoordinateOutOfBounds)
		}
		target = &p
	} else if intent.Target != nil {
		p, err := e.env.Resolve(*intent.Target, screen.SpacePhysical, obs.DisplayID)
		if err != nil {
			return nil, nil, asCoreError(err, schemas.ErrCodeCoordinateOutOfBounds)
		}
		target = &p
	}

	if intent.DragFrom != nil {
		p, err := e.env.Resolve(*intent.DragFrom, screen.SpacePhysical, obs.DisplayID)
		if err != nil {
			return nil, nil, asCoreError(err, schemas.ErrCodeCoordinateOutOfBounds)
		}
		dragFrom = &p
	}
	return target, dragFrom, nil
}

// dispatch performs the primitive. Multi-step primitives settle between
// their sub-steps so the UI can react before the next injection.
func (e *Executor) dispatch(ctx context.Context, intent schemas.ActionIntent, target, dragFrom *schemas.Point) (string, error) {
	switch intent.Kind {
	case schemas.ActionPointerMove:
		if err := e.driver.Move(int(target.X), int(target.Y), e.cfg.MoveDuration); err != nil {
			return "", err
		}
		return fmt.Sprintf("pointer moved to (%.0f,%.0f)", target.X, target.Y), nil

	case schemas.ActionPointerClick:
		if err := e.driver.Click(int(target.X), int(target.Y), intent.Button, intent.Clicks); err != nil {
			return "", err
		}
		return fmt.Sprintf("%s click at (%.0f,%.0f)", intent.Button, target.X, target.Y), nil

	case schemas.ActionPointerDrag:
		if err := e.driver.Drag(int(dragFrom.X), int(dragFrom.Y), int(target.X), int(target.Y), e.cfg.DragDuration); err != nil {
			return "", err
		}
		return fmt.Sprintf("dragged (%.0f,%.0f) to (%.0f,%.0f)", dragFrom.X, dragFrom.Y, target.X, target.Y), nil

	case schemas.ActionKeyPress:
		if err := e.driver.KeyTap(intent.Key); err != nil {
			return "", err
		}
		return fmt.Sprintf("pressed %s", intent.Key), nil

	case schemas.ActionHotkeyCombo:
		// robotgo convention: the last key is primary, the rest modify it.
		primary := intent.Keys[len(intent.Keys)-1]
		if err := e.driver.KeyTap(primary, intent.Keys[:len(intent.Keys)-1]...); err != nil {
			return "", err
		}
		return fmt.Sprintf("pressed combo %v", intent.Keys), nil

	case schemas.ActionTextEntry:
		if err := e.driver.TypeText(intent.Text, e.cfg.TypeInterval); err != nil {
			return "", err
		}
		if intent.Key != "" {
			e.settle(ctx)
			if err := e.driver.KeyTap(intent.Key); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("typed %d characters", len(intent.Text)), nil

	case schemas.ActionScroll:
		if err := e.driver.Scroll(intent.ScrollAmount, intent.Direction); err != nil {
			return "", err
		}
		return fmt.Sprintf("scrolled %s by %d", intent.Direction, intent.ScrollAmount), nil

	case schemas.ActionLaunchApp:
		if err := e.driver.LaunchApp(intent.AppName); err != nil {
			return "", err
		}
		return fmt.Sprintf("launched %s", intent.AppName), nil

	case schemas.ActionOpenURL:
		if err := e.driver.OpenURL(intent.URL); err != nil {
			return "", err
		}
		return fmt.Sprintf("opened %s", intent.URL), nil

	default:
		return "", fmt.Errorf("unhandled action kind %q", intent.Kind)
	}
}

// settle gives the UI time to react before the next observation.
func (e *Executor) settle(ctx context.Context) {
	if e.cfg.SettleDelay <= 0 {
		return
	}
	t := time.NewTimer(e.cfg.SettleDelay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

func asCoreError(err error, fallback schemas.ErrorCode) *schemas.CoreError {
	var ce *schemas.CoreError
	if errors.As(err, &ce) {
		return ce
	}
	return &schemas.CoreError{Code: fallback, Detail: err.Error()}
}
