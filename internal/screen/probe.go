package screen

import (
	"fmt"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

// OSProber measures display geometry from the operating system. Physical
// bounds come from the capture library; the DPI scale factor from the input
// library, so both sides of the pipeline agree on the same numbers.
type OSProber struct{}

// NewOSProber returns the production prober.
func NewOSProber() *OSProber { return &OSProber{} }

// Probe implements Prober.
func (p *OSProber) Probe() ([]Display, error) {
	n := screenshot.NumActiveDisplays()
	if n <= 0 {
		return nil, fmt.Errorf("no active displays reported")
	}

	displays := make([]Display, 0, n)
	for i := 0; i < n; i++ {
		r := screenshot.GetDisplayBounds(i)
		scale := robotgo.ScaleF(i)
		if scale <= 0 {
			scale = 1.0
		}
		displays = append(displays, Display{
			ID: i,
			Bounds: schemas.BBox{
				X0: float64(r.Min.X),
				Y0: float64(r.Min.Y),
				X1: float64(r.Max.X),
				Y1: float64(r.Max.Y),
			},
			Scale: scale,
		})
	}
	return displays, nil
}
