package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/paneward/paneward/internal/workspace"
)

var (
	flagTabCorrelation string
	flagTabMeta        []string
)

var tabCmd = &cobra.Command{
	Use:   "tab",
	Short: "Create, focus, and list named tabs",
}

var tabOpenCmd = &cobra.Command{
	Use:     "open <name>",
	Aliases: []string{"create"},
	Short:   "Focus a named tab, creating it if needed",
	Long: `Open focuses the named tab, creating and registering it when absent.
With --correlation-id the tab is named <name>-<id>, so parallel workflows
sharing a logical tab name stay distinct.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		meta, err := parseMeta(flagTabMeta)
		if err != nil {
			return err
		}

		nav := workspace.NewNavigator(a.store, a.mux, a.events, a.log)
		res, err := nav.CreateTab(cmd.Context(), workspace.TabRequest{
			Name:          args[0],
			Session:       a.session,
			CorrelationID: flagTabCorrelation,
			Meta:          meta,
		})
		if err != nil {
			return err
		}
		outcome := "opened"
		if res.Created {
			outcome = "created"
		}
		a.metrics().RecordTabOpen(cmd.Context(), outcome)

		return emit(res, func() {
			fmt.Printf("%s tab %q\n", outcome, res.Record.Name)
		})
	},
}

var tabListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked tabs for the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		recs, err := a.store.ListTabs(cmd.Context(), a.session)
		if err != nil {
			return err
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })

		return emit(recs, func() {
			if len(recs) == 0 {
				fmt.Println("no tracked tabs")
				return
			}
			for _, r := range recs {
				line := fmt.Sprintf("%s  session=%s last-accessed=%s",
					r.Name, r.Session, r.LastAccessed.Format("2006-01-02 15:04:05"))
				if r.CorrelationID != "" {
					line += "  correlation=" + r.CorrelationID
				}
				fmt.Println(line)
			}
		})
	},
}

func init() {
	tabOpenCmd.Flags().StringVar(&flagTabCorrelation, "correlation-id", "", "suffix appended to the tab name")
	tabOpenCmd.Flags().StringArrayVar(&flagTabMeta, "meta", nil, "metadata key=value for the tab record (repeatable)")

	tabCmd.AddCommand(tabOpenCmd, tabListCmd)
	rootCmd.AddCommand(tabCmd)
}
