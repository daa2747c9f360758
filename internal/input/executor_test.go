package input

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TomBraudo/windows-assistant/api/schemas"
	"github.com/TomBraudo/windows-assistant/internal/config"
	"github.com/TomBraudo/windows-assistant/internal/screen"
)

type mockDriver struct {
	mock.Mock
}

func (m *mockDriver) Move(x, y int, duration time.Duration) error {
	return m.Called(x, y, duration).Error(0)
}

func (m *mockDriver) Click(x, y int, button schemas.MouseButton, clicks int) error {
	return m.Called(x, y, button, clicks).Error(0)
}

func (m *mockDriver) Drag(fromX, fromY, toX, toY int, duration time.Duration) error {
	return m.Called(fromX, fromY, toX, toY, duration).Error(0)
}

func (m *mockDriver) KeyTap(key string, modifiers ...string) error {
	return m.Called(key, modifiers).Error(0)
}

func (m *mockDriver) TypeText(text string, interval time.Duration) error {
	return m.Called(text, interval).Error(0)
}

func (m *mockDriver) Scroll(amount int, direction schemas.ScrollDirection) error {
	return m.Called(amount, direction).Error(0)
}

func (m *mockDriver) LaunchApp(name string) error { return m.Called(name).Error(0) }
func (m *mockDriver) OpenURL(url string) error    { return m.Called(url).Error(0) }

func (m *mockDriver) PointerPosition() (int, int) {
	args := m.Called()
	return args.Int(0), args.Int(1)
}

type fixedProber struct {
	displays []screen.Display
}

func (p *fixedProber) Probe() ([]screen.Display, error) { return p.displays, nil }

func testEnv(t *testing.T) *screen.Environment {
	t.Helper()
	env, err := screen.NewEnvironment(&fixedProber{displays: []screen.Display{
		{ID: 0, Bounds: schemas.BBox{X0: 0, Y0: 0, X1: 1920, Y1: 1080}, Scale: 1.0},
	}}, zap.NewNop())
	require.NoError(t, err)
	return env
}

func inputConfig() config.InputConfig {
	return config.InputConfig{
		RatePerMinute: 6000, // Effectively unlimited for unit tests.
		MaxQueueWait:  time.Second,
		SettleDelay:   0,
	}
}

func intPtr(v int) *int { return &v }

func observation() schemas.Observation {
	return schemas.Observation{
		ID:        "obs-1",
		DisplayID: 0,
		Elements: []schemas.Element{
			{ID: 3, BBox: schemas.BBox{X0: 90, Y0: 190, X1: 110, Y1: 210}, Description: "OK button"},
		},
	}
}

func TestExecuteClickResolvesElementCenter(t *testing.T) {
	driver := new(mockDriver)
	driver.On("Click", 100, 200, schemas.ButtonLeft, 1).Return(nil)

	e := NewExecutor(driver, testEnv(t), inputConfig(), zap.NewNop())
	res := e.Execute(context.Background(), schemas.ActionIntent{
		ID:        "a1",
		Kind:      schemas.ActionPointerClick,
		ElementID: intPtr(3),
		Button:    schemas.ButtonLeft,
		Clicks:    1,
	}, observation())

	assert.Equal(t, schemas.ActionOK, res.Status)
	require.NotNil(t, res.Resolved)
	assert.Equal(t, schemas.Point{X: 100, Y: 200}, *res.Resolved)
	driver.AssertExpectations(t)
}

func TestExecuteOutOfBoundsTargetNeverReachesDriver(t *testing.T) {
	driver := new(mockDriver)

	e := NewExecutor(driver, testEnv(t), inputConfig(), zap.NewNop())
	res := e.Execute(context.Background(), schemas.ActionIntent{
		ID:     "a2",
		Kind:   schemas.ActionPointerClick,
		Target: &schemas.Point{X: 5000, Y: 200},
		Button: schemas.ButtonLeft,
		Clicks: 1,
	}, observation())

	assert.Equal(t, schemas.ActionFailed, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, schemas.ErrCodeCoordinateOutOfBounds, res.Error.Code)
	driver.AssertNotCalled(t, "Click", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteUnknownElementFails(t *testing.T) {
	driver := new(mockDriver)

	e := NewExecutor(driver, testEnv(t), inputConfig(), zap.NewNop())
	res := e.Execute(context.Background(), schemas.ActionIntent{
		ID:        "a3",
		Kind:      schemas.ActionPointerMove,
		ElementID: intPtr(42),
	}, observation())

	assert.Equal(t, schemas.ActionFailed, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, schemas.ErrCodeActionExecution, res.Error.Code)
}

func TestExecuteDriverFailureIsExecutionError(t *testing.T) {
	driver := new(mockDriver)
	driver.On("KeyTap", "enter", mock.Anything).Return(errors.New("injection blocked"))

	e := NewExecutor(driver, testEnv(t), inputConfig(), zap.NewNop())
	res := e.Execute(context.Background(), schemas.ActionIntent{
		ID:   "a4",
		Kind: schemas.ActionKeyPress,
		Key:  "enter",
	}, observation())

	assert.Equal(t, schemas.ActionFailed, res.Status)
	require.NotNil(t, res.Error)
	assert.Equal(t, schemas.ErrCodeActionExecution, res.Error.Code)
}

func TestExecuteRateLimitExceeded(t *testing.T) {
	driver := new(mockDriver)
	driver.On("KeyTap", "a", mock.Anything).Return(nil)

	cfg := inputConfig()
	cfg.RatePerMinute = 6 // One slot, then a ten second refill.
	cfg.MaxQueueWait = 20 * time.Millisecond

	e := NewExecutor(driver, testEnv(t), cfg, zap.NewNop())
	intent := schemas.ActionIntent{ID: "a5", Kind: schemas.ActionKeyPress, Key: "a"}

	first := e.Execute(context.Background(), intent, observation())
	require.Equal(t, schemas.ActionOK, first.Status)

	second := e.Execute(context.Background(), intent, observation())
	assert.Equal(t, schemas.ActionFailed, second.Status)
	require.NotNil(t, second.Error)
	assert.Equal(t, schemas.ErrCodeRateLimit, second.Error.Code)
}

func TestExecuteHotkeyModifierOrder(t *testing.T) {
	driver := new(mockDriver)
	driver.On("KeyTap", "s", []string{"ctrl", "shift"}).Return(nil)

	e := NewExecutor(driver, testEnv(t), inputConfig(), zap.NewNop())
	res := e.Execute(context.Background(), schemas.ActionIntent{
		ID:   "a6",
		Kind: schemas.ActionHotkeyCombo,
		Keys: []string{"ctrl", "shift", "s"},
	}, observation())

	assert.Equal(t, schemas.ActionOK, res.Status)
	driver.AssertExpectations(t)
}

func TestExecuteTextEntryWithTerminator(t *testing.T) {
	driver := new(mockDriver)
	driver.On("TypeText", "hello", mock.Anything).Return(nil)
	driver.On("KeyTap", "enter", mock.Anything).Return(nil)

	e := NewExecutor(driver, testEnv(t), inputConfig(), zap.NewNop())
	res := e.Execute(context.Background(), schemas.ActionIntent{
		ID:   "a7",
		Kind: schemas.ActionTextEntry,
		Text: "hello",
		Key:  "enter",
	}, observation())

	assert.Equal(t, schemas.ActionOK, res.Status)
	driver.AssertExpectations(t)
}

func TestExecuteTextEntrySettlesBeforeTerminator(t *testing.T) {
	cfg := inputConfig()
	cfg.SettleDelay = 60 * time.Millisecond
	cfg.TypeInterval = 25 * time.Millisecond

	var typed, tapped time.Time
	driver := new(mockDriver)
	// The configured inter-character interval reaches the driver unchanged.
	driver.On("TypeText", "hello", 25*time.Millisecond).Run(func(mock.Arguments) {
		typed = time.Now()
	}).Return(nil)
	driver.On("KeyTap", "enter", mock.Anything).Run(func(mock.Arguments) {
		tapped = time.Now()
	}).Return(nil)

	e := NewExecutor(driver, testEnv(t), cfg, zap.NewNop())
	res := e.Execute(context.Background(), schemas.ActionIntent{
		ID:   "a9",
		Kind: schemas.ActionTextEntry,
		Text: "hello",
		Key:  "enter",
	}, observation())

	require.Equal(t, schemas.ActionOK, res.Status)
	driver.AssertExpectations(t)

	// The settle delay separates the typed text from its terminator.
	assert.GreaterOrEqual(t, tapped.Sub(typed), cfg.SettleDelay)
}

func TestExecuteDrag(t *testing.T) {
	driver := new(mockDriver)
	driver.On("Drag", 50, 60, 100, 200, mock.Anything).Return(nil)

	e := NewExecutor(driver, testEnv(t), inputConfig(), zap.NewNop())
	res := e.Execute(context.Background(), schemas.ActionIntent{
		ID:        "a8",
		Kind:      schemas.ActionPointerDrag,
		DragFrom:  &schemas.Point{X: 50, Y: 60},
		ElementID: intPtr(3),
		Button:    schemas.ButtonLeft,
	}, observation())

	assert.Equal(t, schemas.ActionOK, res.Status)
	driver.AssertExpectations(t)
}
