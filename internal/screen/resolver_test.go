package screen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

type fakeProber struct {
	displays []Display
	err      error
}

func (p *fakeProber) Probe() ([]Display, error) { return p.displays, p.err }

func scaledEnv(t *testing.T) *Environment {
	t.Helper()
	env, err := NewEnvironment(&fakeProber{displays: []Display{
		{ID: 0, Bounds: schemas.BBox{X0: 0, Y0: 0, X1: 2560, Y1: 1440}, Scale: 1.5},
		{ID: 1, Bounds: schemas.BBox{X0: 2560, Y0: 0, X1: 4480, Y1: 1080}, Scale: 1.0},
	}}, zap.NewNop())
	require.NoError(t, err)
	return env
}

func TestResolveLogicalAppliesScale(t *testing.T) {
	env := scaledEnv(t)

	// 150% scaling: a logical point maps to 1.5x the physical pixels.
	got, err := env.Resolve(schemas.Point{X: 1200, Y: 900}, SpaceLogical, 0)
	require.NoError(t, err)
	assert.Equal(t, schemas.Point{X: 1800, Y: 1350}, got)
}

func TestResolvePhysicalOffsetsSecondaryDisplay(t *testing.T) {
	env := scaledEnv(t)

	got, err := env.Resolve(schemas.Point{X: 100, Y: 50}, SpacePhysical, 1)
	require.NoError(t, err)
	assert.Equal(t, schemas.Point{X: 2660, Y: 50}, got)
}

func TestResolveNormalized(t *testing.T) {
	env := scaledEnv(t)

	got, err := env.Resolve(schemas.Point{X: 0.5, Y: 0.5}, SpaceNormalized, 0)
	require.NoError(t, err)
	assert.Equal(t, schemas.Point{X: 1280, Y: 720}, got)
}

func TestResolveOutOfBoundsNeverClamps(t *testing.T) {
	env := scaledEnv(t)

	tests := []struct {
		name    string
		p       schemas.Point
		space   Space
		display int
	}{
		{"beyond right edge", schemas.Point{X: 2560, Y: 100}, SpacePhysical, 0}, // Right edge is exclusive.
		{"negative", schemas.Point{X: -1, Y: 100}, SpacePhysical, 0},
		{"logical overflow", schemas.Point{X: 1750, Y: 100}, SpaceLogical, 0},
		{"normalized overflow", schemas.Point{X: 1.0, Y: 0.5}, SpaceNormalized, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Resolve(tc.p, tc.space, tc.display)
			require.Error(t, err)
			assert.Equal(t, schemas.ErrCodeCoordinateOutOfBounds, schemas.CodeOf(err))
		})
	}
}

func TestResolveUnknownDisplayAndSpace(t *testing.T) {
	env := scaledEnv(t)

	_, err := env.Resolve(schemas.Point{X: 1, Y: 1}, SpacePhysical, 7)
	require.Error(t, err)
	assert.Equal(t, schemas.ErrCodeCoordinateOutOfBounds, schemas.CodeOf(err))

	_, err = env.Resolve(schemas.Point{X: 1, Y: 1}, Space("polar"), 0)
	require.Error(t, err)
	assert.Equal(t, schemas.ErrCodeCoordinateOutOfBounds, schemas.CodeOf(err))
}

func TestResolveBBoxCenter(t *testing.T) {
	env := scaledEnv(t)

	got, err := env.ResolveBBoxCenter(schemas.BBox{X0: 90, Y0: 190, X1: 110, Y1: 210}, SpacePhysical, 0)
	require.NoError(t, err)
	assert.Equal(t, schemas.Point{X: 100, Y: 200}, got)
}

func TestRevalidateDetectsStaleCoordinates(t *testing.T) {
	prober := &fakeProber{displays: []Display{
		{ID: 0, Bounds: schemas.BBox{X0: 0, Y0: 0, X1: 2560, Y1: 1440}, Scale: 1.0},
	}}
	env, err := NewEnvironment(prober, zap.NewNop())
	require.NoError(t, err)

	p := schemas.Point{X: 2000, Y: 1000}
	require.NoError(t, env.Revalidate(p, 0))

	// The display shrinks; a previously valid coordinate must now fail.
	prober.displays = []Display{
		{ID: 0, Bounds: schemas.BBox{X0: 0, Y0: 0, X1: 1920, Y1: 1080}, Scale: 1.0},
	}
	require.NoError(t, env.Invalidate())

	err = env.Revalidate(p, 0)
	require.Error(t, err)
	assert.Equal(t, schemas.ErrCodeCoordinateOutOfBounds, schemas.CodeOf(err))
}

func TestInvalidateRejectsDegenerateGeometry(t *testing.T) {
	_, err := NewEnvironment(&fakeProber{displays: []Display{
		{ID: 0, Bounds: schemas.BBox{X0: 0, Y0: 0, X1: 1920, Y1: 1080}, Scale: 0},
	}}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewEnvironment(&fakeProber{displays: []Display{
		{ID: 0, Bounds: schemas.BBox{X0: 100, Y0: 0, X1: 100, Y1: 1080}, Scale: 1.0},
	}}, zap.NewNop())
	assert.Error(t, err)
}

func TestDisplayLogicalExtent(t *testing.T) {
	d := Display{Bounds: schemas.BBox{X0: 0, Y0: 0, X1: 2560, Y1: 1440}, Scale: 1.5}
	assert.InDelta(t, 1706.67, d.LogicalWidth(), 0.01)
	assert.InDelta(t, 960.0, d.LogicalHeight(), 0.01)
}
