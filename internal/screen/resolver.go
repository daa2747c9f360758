package screen

import (
	"github.com/TomBraudo/windows-assistant/api/schemas"
)

// Space declares which coordinate space an incoming point is expressed in.
// Every resolution names its source space explicitly; nothing is guessed from
// magnitudes.
type Space string

const (
	// SpacePhysical: display-relative physical pixels.
	SpacePhysical Space = "physical"
	// SpaceLogical: display-relative logical (DPI-scaled) units, the space
	// most perception sources report in.
	SpaceLogical Space = "logical"
	// SpaceNormalized: display-relative [0,1) fractions.
	SpaceNormalized Space = "normalized"
)

// Resolve maps a display-relative point in the declared space to a global
// physical-pixel coordinate on the addressed display. The result is
// guaranteed to lie within that display's bounds; a transformed point that
// falls outside fails with COORDINATE_OUT_OF_BOUNDS rather than being
// clamped. A point resolved against one display is never valid against
// another.
func (e *Environment) Resolve(p schemas.Point, space Space, displayID int) (schemas.Point, error) {
	d, err := e.Display(displayID)
	if err != nil {
		return schemas.Point{}, schemas.NewCoreError(schemas.ErrCodeCoordinateOutOfBounds,
			"cannot resolve against display %d: %v", displayID, err)
	}

	var local schemas.Point
	switch space {
	case SpacePhysical:
		local = p
	case SpaceLogical:
		local = schemas.Point{X: p.X * d.Scale, Y: p.Y * d.Scale}
	case SpaceNormalized:
		local = schemas.Point{X: p.X * d.Bounds.Width(), Y: p.Y * d.Bounds.Height()}
	default:
		return schemas.Point{}, schemas.NewCoreError(schemas.ErrCodeCoordinateOutOfBounds,
			"unknown coordinate space %q", space)
	}

	global := schemas.Point{X: d.Bounds.X0 + local.X, Y: d.Bounds.Y0 + local.Y}
	if !d.Contains(global) {
		return schemas.Point{}, schemas.NewCoreError(schemas.ErrCodeCoordinateOutOfBounds,
			"point (%.1f, %.1f) in %s space resolves to (%.1f, %.1f), outside display %d bounds [%.0f,%.0f)x[%.0f,%.0f)",
			p.X, p.Y, space, global.X, global.Y, d.ID,
			d.Bounds.X0, d.Bounds.X1, d.Bounds.Y0, d.Bounds.Y1)
	}
	return global, nil
}

// ResolveBBoxCenter resolves the center of a bounding box expressed in the
// declared space.
func (e *Environment) ResolveBBoxCenter(b schemas.BBox, space Space, displayID int) (schemas.Point, error) {
	return e.Resolve(b.Center(), space, displayID)
}

// Revalidate confirms that an already-resolved global physical coordinate is
// still within the addressed display. The executor calls this immediately
// before injection to defend against stale coordinates computed from a prior
// observation or an intervening display-configuration change.
func (e *Environment) Revalidate(p schemas.Point, displayID int) error {
	d, err := e.Display(displayID)
	if err != nil {
		return schemas.NewCoreError(schemas.ErrCodeCoordinateOutOfBounds,
			"cannot revalidate against display %d: %v", displayID, err)
	}
	if !d.Contains(p) {
		return schemas.NewCoreError(schemas.ErrCodeCoordinateOutOfBounds,
			"coordinate (%.1f, %.1f) no longer within display %d bounds", p.X, p.Y, d.ID)
	}
	return nil
}
