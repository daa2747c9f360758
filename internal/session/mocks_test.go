package session

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

// -- Capturer mock --

type MockCapturer struct {
	mock.Mock
}

func (m *MockCapturer) Capture(displayID int) (string, error) {
	args := m.Called(displayID)
	return args.String(0), args.Error(1)
}

// -- Detector mock --

type MockDetector struct {
	mock.Mock
}

func (m *MockDetector) Detect(ctx context.Context, screenshotPath string, displayID int) (schemas.Observation, error) {
	args := m.Called(ctx, screenshotPath, displayID)
	return args.Get(0).(schemas.Observation), args.Error(1)
}

// -- Planner mock --

type MockPlanner struct {
	mock.Mock
}

func (m *MockPlanner) Plan(ctx context.Context, req schemas.PlanRequest) (schemas.PlannerDecision, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(schemas.PlannerDecision), args.Error(1)
}

// -- Verifier mock --

type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) Verify(ctx context.Context, pre, post schemas.ObservationSummary, claimed schemas.ActionIntent) (schemas.Verdict, error) {
	args := m.Called(ctx, pre, post, claimed)
	return args.Get(0).(schemas.Verdict), args.Error(1)
}

// -- Executor mock --

type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, intent schemas.ActionIntent, obs schemas.Observation) schemas.ActionResult {
	args := m.Called(ctx, intent, obs)
	return args.Get(0).(schemas.ActionResult)
}

// -- Authorizer mock --

type MockAuthorizer struct {
	mock.Mock
}

func (m *MockAuthorizer) Authorize(ctx context.Context, intent schemas.ActionIntent, targetDescription string) error {
	return m.Called(ctx, intent, targetDescription).Error(0)
}

// -- Archiver mock --

type MockArchiver struct {
	mock.Mock
}

func (m *MockArchiver) SaveReport(ctx context.Context, report schemas.SessionReport) error {
	return m.Called(ctx, report).Error(0)
}
