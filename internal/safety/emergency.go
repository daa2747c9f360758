package safety

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/internal/config"
	"github.com/TomBraudo/windows-assistant/internal/screen"
)

// PointerFunc reports the current global pointer position in physical pixels.
type PointerFunc func() (x, y int)

// EmergencyStop watches for the human slamming the pointer into the reserved
// top-left corner of the primary display and cancels the session when it
// happens. The corner stays reserved for the whole session, including while
// actions are in flight.
type EmergencyStop struct {
	pointer  PointerFunc
	margin   float64
	interval time.Duration
	display  screen.Display
	logger   *zap.Logger
}

// NewEmergencyStop builds the monitor for the given display.
func NewEmergencyStop(cfg config.SafetyConfig, pointer PointerFunc, display screen.Display, logger *zap.Logger) *EmergencyStop {
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &EmergencyStop{
		pointer:  pointer,
		margin:   float64(cfg.FailSafeMargin),
		interval: interval,
		display:  display,
		logger:   logger.Named("safety.estop"),
	}
}

// Watch polls the pointer until ctx ends, calling stop once if the pointer
// enters the fail-safe corner. Run it in its own goroutine; it returns when
// ctx is done or the stop fired.
func (e *EmergencyStop) Watch(ctx context.Context, stop context.CancelFunc) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.triggered() {
				e.logger.Warn("Emergency stop: pointer in fail-safe corner")
				stop()
				return
			}
		}
	}
}

func (e *EmergencyStop) triggered() bool {
	x, y := e.pointer()
	return float64(x) < e.display.Bounds.X0+e.margin &&
		float64(y) < e.display.Bounds.Y0+e.margin
}
