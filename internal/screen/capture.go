package screen

import (
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/kbinani/screenshot"
)

// Capturer takes full-display screenshots and persists them as PNG files.
// Screenshots are transient inputs to perception; callers remove them once
// the observation is built.
type Capturer interface {
	Capture(displayID int) (string, error)
}

// OSCapturer captures via the platform screenshot API into dir.
type OSCapturer struct {
	dir string
}

// NewOSCapturer writes screenshots under dir, defaulting to the system temp
// directory.
func NewOSCapturer(dir string) *OSCapturer {
	if dir == "" {
		dir = os.TempDir()
	}
	return &OSCapturer{dir: dir}
}

// Capture grabs the full extent of the given display and returns the path of
// the written PNG.
func (c *OSCapturer) Capture(displayID int) (string, error) {
	if displayID < 0 || displayID >= screenshot.NumActiveDisplays() {
		return "", fmt.Errorf("capture: no active display %d", displayID)
	}
	img, err := screenshot.CaptureDisplay(displayID)
	if err != nil {
		return "", fmt.Errorf("capture display %d: %w", displayID, err)
	}

	path := filepath.Join(c.dir, fmt.Sprintf("wassist-%s.png", uuid.NewString()))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create screenshot file: %w", err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encode screenshot: %w", err)
	}
	return path, nil
}
