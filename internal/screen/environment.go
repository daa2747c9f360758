package screen

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

// Display describes one physical display: its identifier, its bounds in the
// global physical-pixel space, and the measured scale factor between the
// logical (DPI-scaled) coordinate space and physical pixels.
type Display struct {
	ID     int
	Bounds schemas.BBox // Global physical pixels; half-open on X1/Y1.
	Scale  float64      // physical / logical. 1.0 means no scaling.
}

// LogicalWidth returns the display width in logical units.
func (d Display) LogicalWidth() float64 { return d.Bounds.Width() / d.Scale }

// LogicalHeight returns the display height in logical units.
func (d Display) LogicalHeight() float64 { return d.Bounds.Height() / d.Scale }

// Contains reports whether the global physical point lies within the display,
// treating the right and bottom edges as exclusive.
func (d Display) Contains(p schemas.Point) bool {
	return p.X >= d.Bounds.X0 && p.X < d.Bounds.X1 &&
		p.Y >= d.Bounds.Y0 && p.Y < d.Bounds.Y1
}

// Prober measures the attached display geometry. The production prober asks
// the OS; tests inject fixed layouts.
type Prober interface {
	Probe() ([]Display, error)
}

// Environment is the process-wide snapshot of display geometry. It is probed
// once at construction and re-probed only through Invalidate, so every
// resolution within one session sees a consistent layout.
type Environment struct {
	prober Prober
	logger *zap.Logger

	mu       sync.RWMutex
	displays map[int]Display
}

// NewEnvironment probes the display layout and returns the environment.
func NewEnvironment(prober Prober, logger *zap.Logger) (*Environment, error) {
	e := &Environment{
		prober: prober,
		logger: logger.Named("screen"),
	}
	if err := e.Invalidate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Invalidate re-probes display geometry. Call after a detected
// display-configuration change; in-flight resolutions keep the layout they
// started with.
func (e *Environment) Invalidate() error {
	displays, err := e.prober.Probe()
	if err != nil {
		return fmt.Errorf("failed to probe display geometry: %w", err)
	}
	if len(displays) == 0 {
		return fmt.Errorf("no displays detected")
	}

	m := make(map[int]Display, len(displays))
	for _, d := range displays {
		if d.Scale <= 0 {
			return fmt.Errorf("display %d reports non-positive scale %.3f", d.ID, d.Scale)
		}
		if d.Bounds.Width() <= 0 || d.Bounds.Height() <= 0 {
			return fmt.Errorf("display %d reports degenerate bounds", d.ID)
		}
		m[d.ID] = d
	}

	e.mu.Lock()
	e.displays = m
	e.mu.Unlock()

	e.logger.Info("Probed display geometry", zap.Int("displays", len(m)))
	return nil
}

// Display returns the geometry of one display.
func (e *Environment) Display(id int) (Display, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	d, ok := e.displays[id]
	if !ok {
		return Display{}, fmt.Errorf("unknown display id %d", id)
	}
	return d, nil
}

// Displays returns every probed display, keyed by id.
func (e *Environment) Displays() map[int]Display {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[int]Display, len(e.displays))
	for id, d := range e.displays {
		out[id] = d
	}
	return out
}

// Primary returns the display containing the global origin, or the lowest id
// when none does.
func (e *Environment) Primary() Display {
	e.mu.RLock()
	defer e.mu.RUnlock()

	best, found := Display{}, false
	for _, d := range e.displays {
		if d.Contains(schemas.Point{X: 0, Y: 0}) {
			return d
		}
		if !found || d.ID < best.ID {
			best, found = d, true
		}
	}
	return best
}
