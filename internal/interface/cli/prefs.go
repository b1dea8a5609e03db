package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/neilberkman/rentcheck/internal/core/apperr"
	"github.com/neilberkman/rentcheck/internal/core/session"
)

var prefsCmd = &cobra.Command{
	Use:   "prefs [key [value]]",
	Short: "Show or change display preferences",
	Long: `Show or change display preferences for the watch view.

Keys:
  theme              auto, light or dark
  sidebar_collapsed  true hides the score summary above the report

Examples:
  rentcheck prefs
  rentcheck prefs theme dark
  rentcheck prefs sidebar_collapsed true`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		if len(args) == 2 {
			if err := session.SetPreference(a.db, args[0], args[1]); err != nil {
				return apperr.Validation("prefs", "%v", err)
			}
		}

		prefs, err := session.LoadPreferences(a.db)
		if err != nil {
			return err
		}
		values := map[string]string{
			session.PrefTheme:            prefs.Theme,
			session.PrefSidebarCollapsed: fmt.Sprint(prefs.SidebarCollapsed),
		}
		if len(args) >= 1 {
			v, ok := values[args[0]]
			if !ok {
				return apperr.Validation("prefs", "unknown preference %q (known: %s)", args[0], strings.Join(session.PreferenceKeys(), ", "))
			}
			fmt.Fprintln(out, v)
			return nil
		}
		for _, key := range session.PreferenceKeys() {
			fmt.Fprintf(out, "%-18s %s\n", key, values[key])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(prefsCmd)
}
