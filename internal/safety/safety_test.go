package safety

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
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

type mockGate struct {
	mock.Mock
}

func (m *mockGate) Confirm(ctx context.Context, intent schemas.ActionIntent, reason string) (bool, error) {
	args := m.Called(ctx, intent, reason)
	return args.Bool(0), args.Error(1)
}

func safetyConfig() config.SafetyConfig {
	return config.SafetyConfig{
		SensitiveKeywords:   []string{"delete", "password", "bank"},
		SensitiveKinds:      []string{"launch_app"},
		ConfirmationTimeout: 200 * time.Millisecond,
		FailSafeMargin:      10,
		PollInterval:        10 * time.Millisecond,
	}
}

func TestClassify(t *testing.T) {
	g := NewGovernor(safetyConfig(), nil, zap.NewNop())

	sensitive, reason := g.Classify(schemas.ActionIntent{Kind: schemas.ActionPointerClick}, "Delete all files")
	assert.True(t, sensitive)
	assert.Contains(t, reason, "delete")

	sensitive, _ = g.Classify(schemas.ActionIntent{Kind: schemas.ActionTextEntry, Text: "my PASSWORD here"}, "")
	assert.True(t, sensitive)

	sensitive, _ = g.Classify(schemas.ActionIntent{Kind: schemas.ActionOpenURL, URL: "https://bank.example.com"}, "")
	assert.True(t, sensitive)

	sensitive, _ = g.Classify(schemas.ActionIntent{Kind: schemas.ActionPointerClick}, "New Tab button")
	assert.False(t, sensitive)
}

func TestClassifySensitiveKind(t *testing.T) {
	g := NewGovernor(safetyConfig(), nil, zap.NewNop())

	// A configured kind is sensitive even with a harmless target.
	sensitive, reason := g.Classify(schemas.ActionIntent{Kind: schemas.ActionLaunchApp, AppName: "notepad"}, "")
	assert.True(t, sensitive)
	assert.Contains(t, reason, "launch_app")

	// The same harmless text on a non-configured kind stays clean.
	sensitive, _ = g.Classify(schemas.ActionIntent{Kind: schemas.ActionTextEntry, Text: "notepad"}, "")
	assert.False(t, sensitive)
}

func TestAuthorizeSensitiveKindRequiresGate(t *testing.T) {
	gate := new(mockGate)
	gate.On("Confirm", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	g := NewGovernor(safetyConfig(), gate, zap.NewNop())

	err := g.Authorize(context.Background(), schemas.ActionIntent{Kind: schemas.ActionLaunchApp, AppName: "calc"}, "")
	require.Error(t, err)
	assert.Equal(t, schemas.ErrCodeSafetyRejected, schemas.CodeOf(err))
	gate.AssertExpectations(t)
}

func TestAuthorizeNonSensitiveSkipsGate(t *testing.T) {
	gate := new(mockGate)
	g := NewGovernor(safetyConfig(), gate, zap.NewNop())

	err := g.Authorize(context.Background(), schemas.ActionIntent{Kind: schemas.ActionScroll}, "article text")
	require.NoError(t, err)
	gate.AssertNotCalled(t, "Confirm", mock.Anything, mock.Anything, mock.Anything)
}

func TestAuthorizeDenialIsSafetyRejected(t *testing.T) {
	gate := new(mockGate)
	gate.On("Confirm", mock.Anything, mock.Anything, mock.Anything).Return(false, nil)
	g := NewGovernor(safetyConfig(), gate, zap.NewNop())

	err := g.Authorize(context.Background(), schemas.ActionIntent{Kind: schemas.ActionPointerClick}, "Delete account")
	require.Error(t, err)
	assert.Equal(t, schemas.ErrCodeSafetyRejected, schemas.CodeOf(err))
}

func TestAuthorizeApproved(t *testing.T) {
	gate := new(mockGate)
	gate.On("Confirm", mock.Anything, mock.Anything, mock.Anything).Return(true, nil)
	g := NewGovernor(safetyConfig(), gate, zap.NewNop())

	err := g.Authorize(context.Background(), schemas.ActionIntent{Kind: schemas.ActionPointerClick}, "Delete draft")
	assert.NoError(t, err)
	gate.AssertExpectations(t)
}

func TestConsoleGateTimeoutDefaultsToReject(t *testing.T) {
	// A reader that never delivers a line.
	var out bytes.Buffer

	gate := NewConsoleGate(safetyConfig(), &blockedReader{ch: make(chan struct{})}, &out, zap.NewNop())
	approved, err := gate.Confirm(context.Background(), schemas.ActionIntent{Kind: schemas.ActionPointerClick}, "test")
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Contains(t, out.String(), "Approve?")
}

func TestConsoleGateAnswers(t *testing.T) {
	tests := []struct {
		input    string
		approved bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"n\n", false},
		{"\n", false},
		{"whatever\n", false},
	}
	for _, tc := range tests {
		var out bytes.Buffer
		gate := NewConsoleGate(safetyConfig(), strings.NewReader(tc.input), &out, zap.NewNop())
		approved, err := gate.Confirm(context.Background(), schemas.ActionIntent{}, "test")
		require.NoError(t, err)
		assert.Equal(t, tc.approved, approved, "input %q", tc.input)
	}
}

func TestConsoleGateAutoApprove(t *testing.T) {
	cfg := safetyConfig()
	cfg.AutoApprove = true

	gate := NewConsoleGate(cfg, &blockedReader{ch: make(chan struct{})}, &bytes.Buffer{}, zap.NewNop())
	approved, err := gate.Confirm(context.Background(), schemas.ActionIntent{}, "test")
	require.NoError(t, err)
	assert.True(t, approved)
}

func TestEmergencyStopTriggersInCorner(t *testing.T) {
	display := screen.Display{
		ID:     0,
		Bounds: schemas.BBox{X0: 0, Y0: 0, X1: 1920, Y1: 1080},
		Scale:  1.0,
	}

	var inCorner atomic.Bool
	pointer := func() (int, int) {
		if inCorner.Load() {
			return 2, 3
		}
		return 960, 540
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopped := make(chan struct{})
	e := NewEmergencyStop(safetyConfig(), pointer, display, zap.NewNop())
	go func() {
		e.Watch(ctx, cancel)
		close(stopped)
	}()

	// Let a few polls pass outside the corner, then enter it.
	time.Sleep(30 * time.Millisecond)
	require.NoError(t, ctx.Err())
	inCorner.Store(true)

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("emergency stop did not fire")
	}
	assert.Error(t, ctx.Err())
}

// blockedReader never delivers a line, forcing the timeout path.
type blockedReader struct {
	ch chan struct{}
}

func (r *blockedReader) Read(p []byte) (int, error) {
	<-r.ch
	return 0, nil
}
