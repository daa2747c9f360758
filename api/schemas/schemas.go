package schemas

import "time"

// SessionStatus tracks a session through its state machine. Transitions are
// one-directional until a terminal status is reached.
type SessionStatus string

const (
	StatusInit       SessionStatus = "INIT"       // Validating goal and safety configuration.
	StatusPlanning   SessionStatus = "PLANNING"   // Acquiring a fresh observation of the screen.
	StatusFiltering  SessionStatus = "FILTERING"  // Narrowing candidates and consulting the planner.
	StatusActing     SessionStatus = "ACTING"     // Executing the schema-valid intent.
	StatusVerifying  SessionStatus = "VERIFYING"  // Comparing pre/post observations.
	StatusEscalating SessionStatus = "ESCALATING" // Stall threshold crossed; biasing or terminating.
	StatusDone       SessionStatus = "DONE"       // Terminal: planner declared success.
	StatusFailed     SessionStatus = "FAILED"     // Terminal: failure verdict or exhausted budget.
	StatusAborted    SessionStatus = "ABORTED"    // Terminal: cancellation, emergency stop or safety rejection.
)

// Terminal reports whether the status ends the session.
func (s SessionStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusAborted
}

// BBox is an axis-aligned bounding box. Coordinates are in the space the
// producer declares; detected elements carry physical-pixel boxes.
type BBox struct {
	X0 float64 `json:"x0"`
	Y0 float64 `json:"y0"`
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
}

// Width returns the horizontal extent of the box.
func (b BBox) Width() float64 { return b.X1 - b.X0 }

// Height returns the vertical extent of the box.
func (b BBox) Height() float64 { return b.Y1 - b.Y0 }

// Area returns the area of the box.
func (b BBox) Area() float64 { return b.Width() * b.Height() }

// Center returns the midpoint of the box.
func (b BBox) Center() Point {
	return Point{X: (b.X0 + b.X1) / 2, Y: (b.Y0 + b.Y1) / 2}
}

// Point is a 2D coordinate in a declared space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ElementKind categorizes a detected UI element.
type ElementKind string

const (
	ElementText    ElementKind = "text"
	ElementIcon    ElementKind = "icon"
	ElementImage   ElementKind = "image"
	ElementUnknown ElementKind = "unknown"
)

// Element is one UI element detected in a single observation. IDs are unique
// only within the observation that produced them and are never persisted
// across observations.
type Element struct {
	ID          int         `json:"id"`
	Kind        ElementKind `json:"kind"`
	BBox        BBox        `json:"bbox"`
	Description string      `json:"description"`
	Confidence  float64     `json:"confidence"`
}

// Observation is one perception snapshot: a screenshot reference plus the
// element set detected from it. The full image is discarded after use; only
// the summary survives in history.
type Observation struct {
	ID             string    `json:"id"`
	ScreenshotPath string    `json:"screenshot_path"`
	DisplayID      int       `json:"display_id"`
	Elements       []Element `json:"elements"`
	Timestamp      time.Time `json:"timestamp"`
}

// Summarize produces the bounded view of the observation retained in history
// and forwarded to the planner. At most limit elements are kept.
func (o Observation) Summarize(limit int) ObservationSummary {
	s := ObservationSummary{
		ObservationID: o.ID,
		DisplayID:     o.DisplayID,
		ElementCount:  len(o.Elements),
		Timestamp:     o.Timestamp,
	}
	n := len(o.Elements)
	if limit > 0 && n > limit {
		n = limit
	}
	s.Elements = make([]Element, n)
	copy(s.Elements, o.Elements[:n])
	return s
}

// ObservationSummary is the bounded-window view of an observation kept after
// the screenshot is discarded.
type ObservationSummary struct {
	ObservationID string    `json:"observation_id"`
	DisplayID     int       `json:"display_id"`
	ElementCount  int       `json:"element_count"`
	Elements      []Element `json:"elements"`
	Timestamp     time.Time `json:"timestamp"`
}

// ActionKind enumerates the closed set of primitive input operations. Tags
// outside this set are rejected at the schema-validation boundary, never at
// execution time.
type ActionKind string

const (
	ActionPointerMove  ActionKind = "pointer_move"
	ActionPointerClick ActionKind = "pointer_click"
	ActionPointerDrag  ActionKind = "pointer_drag"
	ActionKeyPress     ActionKind = "key_press"
	ActionHotkeyCombo  ActionKind = "hotkey_combo"
	ActionTextEntry    ActionKind = "text_entry"
	ActionScroll       ActionKind = "scroll"
	ActionLaunchApp    ActionKind = "launch_app"
	ActionOpenURL      ActionKind = "open_url"
)

// ActionKinds lists every recognized primitive.
func ActionKinds() []ActionKind {
	return []ActionKind{
		ActionPointerMove, ActionPointerClick, ActionPointerDrag,
		ActionKeyPress, ActionHotkeyCombo, ActionTextEntry,
		ActionScroll, ActionLaunchApp, ActionOpenURL,
	}
}

// ScrollDirection constrains the scroll primitive.
type ScrollDirection string

const (
	ScrollUp   ScrollDirection = "up"
	ScrollDown ScrollDirection = "down"
)

// MouseButton names the pointer button for click and drag primitives.
type MouseButton string

const (
	ButtonLeft   MouseButton = "left"
	ButtonRight  MouseButton = "right"
	ButtonMiddle MouseButton = "middle"
)

// ActionIntent is a schema-validated instruction to perform exactly one
// primitive input operation. An intent referencing ElementID targets a
// candidate from the current observation; otherwise explicit coordinates in
// the perception source space may be given.
type ActionIntent struct {
	ID        string     `json:"id"`
	SessionID string     `json:"session_id"`
	Kind      ActionKind `json:"kind"`

	// Thought and Rationale carry the planner's reasoning; kept for audit,
	// ignored by execution.
	Thought   string `json:"thought,omitempty"`
	Rationale string `json:"rationale,omitempty"`

	// ElementID references a candidate from the current observation. Nil when
	// the intent carries explicit coordinates or needs none.
	ElementID *int   `json:"element_id,omitempty"`
	Target    *Point `json:"target,omitempty"` // Perception-space coordinates.
	DragFrom  *Point `json:"drag_from,omitempty"`

	Text         string          `json:"text,omitempty"` // text_entry payload.
	Key          string          `json:"key,omitempty"`  // key_press key or text_entry terminator.
	Keys         []string        `json:"keys,omitempty"` // hotkey_combo members.
	Button       MouseButton     `json:"button,omitempty"`
	Clicks       int             `json:"clicks,omitempty"`
	ScrollAmount int             `json:"scroll_amount,omitempty"`
	Direction    ScrollDirection `json:"direction,omitempty"`
	AppName      string          `json:"app_name,omitempty"`
	URL          string          `json:"url,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// Pointer reports whether the intent drives the pointer. Used when an
// escalating session biases planning toward non-pointer primitives.
func (a ActionIntent) Pointer() bool {
	switch a.Kind {
	case ActionPointerMove, ActionPointerClick, ActionPointerDrag:
		return true
	}
	return false
}

// ActionStatus reports how an execution attempt ended.
type ActionStatus string

const (
	ActionOK     ActionStatus = "ok"
	ActionFailed ActionStatus = "failed"
)

// ActionResult is the executor's report for one intent.
type ActionResult struct {
	IntentID string       `json:"intent_id"`
	Status   ActionStatus `json:"status"`
	Effect   string       `json:"effect,omitempty"` // Observed-effect summary.
	Error    *CoreError   `json:"error,omitempty"`
	// Resolved is the physical coordinate that was injected, when any.
	Resolved *Point        `json:"resolved,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Verdict is the verifier's judgement of a claimed action effect.
type Verdict string

const (
	VerdictConfirmed    Verdict = "confirmed"
	VerdictUnconfirmed  Verdict = "unconfirmed"
	VerdictContradicted Verdict = "contradicted"
)

// HistoryEntry records one completed iteration. Entries are appended in
// iteration order and never mutated once written.
type HistoryEntry struct {
	Iteration int          `json:"iteration"`
	Intent    ActionIntent `json:"intent"`
	Result    ActionResult `json:"result"`
	Verdict   Verdict      `json:"verdict,omitempty"`
}

// TerminationVerdict is the planner's declared outcome.
type TerminationVerdict string

const (
	TerminationSuccess TerminationVerdict = "success"
	TerminationFailure TerminationVerdict = "failure"
)

// Termination declares the goal satisfied or unreachable.
type Termination struct {
	Verdict TerminationVerdict `json:"verdict"`
	Message string             `json:"message"`
}

// ClarificationRequest asks the caller to disambiguate the goal.
type ClarificationRequest struct {
	Question string `json:"question"`
}

// PlannerDecision is the planner adapter's response: exactly one of Intent,
// Termination or Clarification is non-nil after validation.
type PlannerDecision struct {
	Intent        *ActionIntent         `json:"intent,omitempty"`
	Termination   *Termination          `json:"termination,omitempty"`
	Clarification *ClarificationRequest `json:"clarification,omitempty"`
}

// SessionReport is the outcome of one session: terminal status, the full
// append-only history, and the last observation summary. Nothing is
// truncated.
type SessionReport struct {
	SessionID      string              `json:"session_id"`
	Goal           string              `json:"goal"`
	Status         SessionStatus       `json:"status"`
	IterationsUsed int                 `json:"iterations_used"`
	History        []HistoryEntry      `json:"history"`
	FinalSummary   *ObservationSummary `json:"final_observation_summary,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	EndedAt        time.Time           `json:"ended_at"`
	Clarification  string              `json:"clarification,omitempty"`
}
