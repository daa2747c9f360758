package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TomBraudo/windows-assistant/internal/observability"
	"github.com/TomBraudo/windows-assistant/internal/screen"
)

// newDisplaysCmd creates the `displays` command, which lists the detected
// display geometry so the user can pick a --display ID.
func newDisplaysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "displays",
		Short: "Lists detected displays with bounds and scale factors",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := screen.NewEnvironment(screen.NewOSProber(), observability.GetLogger())
			if err != nil {
				return fmt.Errorf("failed to probe displays: %w", err)
			}

			displays := env.Displays()
			ids := make([]int, 0, len(displays))
			for id := range displays {
				ids = append(ids, id)
			}
			sort.Ints(ids)

			for _, id := range ids {
				d := displays[id]
				fmt.Printf("display %d: origin (%.0f, %.0f), %.0fx%.0f physical, scale %.2f (%.0fx%.0f logical)\n",
					id, d.Bounds.X0, d.Bounds.Y0,
					d.Bounds.Width(), d.Bounds.Height(), d.Scale,
					d.LogicalWidth(), d.LogicalHeight())
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newDisplaysCmd())
}
