// Package input injects primitive pointer and keyboard operations into the
// OS. The Driver interface isolates the platform layer; everything above it
// is deterministic and testable.
package input

import (
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/go-vgo/robotgo"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

// Driver is the raw injection surface. Coordinates are global physical
// pixels; callers validate them before the driver sees them.
type Driver interface {
	Move(x, y int, duration time.Duration) error
	Click(x, y int, button schemas.MouseButton, clicks int) error
	Drag(fromX, fromY, toX, toY int, duration time.Duration) error
	KeyTap(key string, modifiers ...string) error
	TypeText(text string, interval time.Duration) error
	Scroll(amount int, direction schemas.ScrollDirection) error
	LaunchApp(name string) error
	OpenURL(url string) error
	PointerPosition() (x, y int)
}

// RobotgoDriver drives the real OS input stack.
type RobotgoDriver struct{}

// NewRobotgoDriver returns the production driver.
func NewRobotgoDriver() *RobotgoDriver { return &RobotgoDriver{} }

func (d *RobotgoDriver) Move(x, y int, duration time.Duration) error {
	low, high := smoothSpeed(duration)
	robotgo.MoveSmooth(x, y, low, high)
	return nil
}

// smoothSpeed converts a travel time into robotgo's per-step sleep bounds.
// The smooth movers take speed factors, not a total duration; spread the
// configured duration over their roughly hundred steps.
func smoothSpeed(duration time.Duration) (low, high float64) {
	if duration <= 0 {
		return 1.0, 3.0
	}
	perStep := float64(duration.Milliseconds()) / 100.0
	if perStep < 1.0 {
		perStep = 1.0
	}
	return perStep, perStep * 2
}

func (d *RobotgoDriver) Click(x, y int, button schemas.MouseButton, clicks int) error {
	robotgo.Move(x, y)
	robotgo.Click(string(button), clicks >= 2)
	return nil
}

func (d *RobotgoDriver) Drag(fromX, fromY, toX, toY int, duration time.Duration) error {
	robotgo.Move(fromX, fromY)
	low, high := smoothSpeed(duration)
	robotgo.DragSmooth(toX, toY, low, high)
	return nil
}

func (d *RobotgoDriver) KeyTap(key string, modifiers ...string) error {
	args := make([]interface{}, len(modifiers))
	for i, m := range modifiers {
		args[i] = m
	}
	return robotgo.KeyTap(key, args...)
}

func (d *RobotgoDriver) TypeText(text string, interval time.Duration) error {
	if interval <= 0 {
		robotgo.TypeStr(text)
		return nil
	}
	for _, r := range text {
		robotgo.TypeStr(string(r))
		robotgo.MilliSleep(int(interval.Milliseconds()))
	}
	return nil
}

func (d *RobotgoDriver) Scroll(amount int, direction schemas.ScrollDirection) error {
	switch direction {
	case schemas.ScrollUp:
		robotgo.ScrollDir(amount, "up")
	case schemas.ScrollDown:
		robotgo.ScrollDir(amount, "down")
	default:
		return fmt.Errorf("unknown scroll direction %q", direction)
	}
	return nil
}

func (d *RobotgoDriver) LaunchApp(name string) error {
	if err := exec.Command(name).Start(); err != nil {
		return fmt.Errorf("launch %q: %w", name, err)
	}
	return nil
}

func (d *RobotgoDriver) OpenURL(url string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		cmd = exec.Command("open", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("open %q: %w", url, err)
	}
	return nil
}

func (d *RobotgoDriver) PointerPosition() (int, int) {
	return robotgo.Location()
}
