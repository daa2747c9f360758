package planner

import (
	"fmt"
	"strings"

	"github.com/TomBraudo/windows-assistant/api/schemas"
)

const systemPrompt = `You are the planning component of a desktop automation agent.
You are given a user goal, a summary of the current screen, a short history of
prior actions with their outcomes, and a numbered list of candidate UI elements.

Respond with a single JSON object and nothing else. The object contains a
"thought" string and exactly one of:

  "action":    {"tool": "<tool>", "params": {...}}
  "terminate": {"verdict": "success"|"failure", "message": "..."}
  "clarify":   {"question": "..."}

Available tools and their params:
  pointer_move   element_id OR x,y
  pointer_click  element_id OR x,y; optional button (left|right|middle), clicks
  pointer_drag   from_x,from_y plus element_id OR x,y
  key_press      key
  hotkey_combo   keys (array)
  text_entry     text; optional key as terminator
  scroll         direction (up|down), scroll_amount
  launch_app     app_name
  open_url       url

Rules:
- element_id must be one of the candidate ids shown to you.
- Coordinates are pixels on the screen described in the summary.
- Choose terminate with verdict "success" only when the screen shows the goal
  is complete, and "failure" when it cannot be reached.
- Choose clarify only when the goal is genuinely ambiguous.`

const avoidPointerNote = `
IMPORTANT: recent pointer actions did not produce their expected effects.
Prefer keyboard tools (key_press, hotkey_combo, text_entry) or launch_app /
open_url over pointer tools for this step.`

// buildUserPrompt renders one decision request. Candidates are listed with
// their ids, kinds, centers and descriptions; history is already bounded by
// the caller.
func buildUserPrompt(req schemas.PlanRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "GOAL: %s\n\n", req.Goal)

	fmt.Fprintf(&b, "SCREEN: display %d, %d elements detected at %s\n\n",
		req.Summary.DisplayID, req.Summary.ElementCount, req.Summary.Timestamp.Format("15:04:05"))

	b.WriteString("CANDIDATES:\n")
	if len(req.Candidates) == 0 {
		b.WriteString("  (none)\n")
	}
	for _, el := range req.Candidates {
		c := el.BBox.Center()
		fmt.Fprintf(&b, "  [%d] %s at (%.0f,%.0f) size %.0fx%.0f: %s\n",
			el.ID, el.Kind, c.X, c.Y, el.BBox.Width(), el.BBox.Height(), el.Description)
	}

	b.WriteString("\nHISTORY (oldest first):\n")
	if len(req.History) == 0 {
		b.WriteString("  (no actions yet)\n")
	}
	for _, h := range req.History {
		fmt.Fprintf(&b, "  #%d %s -> %s", h.Iteration, h.Intent.Kind, h.Result.Status)
		if h.Result.Error != nil {
			fmt.Fprintf(&b, " (%s)", h.Result.Error.Code)
		}
		if h.Verdict != "" {
			fmt.Fprintf(&b, ", verified: %s", h.Verdict)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nDecide the next step.")
	return b.String()
}
