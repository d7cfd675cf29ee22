package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/paneward/paneward/internal/model"
	"github.com/paneward/paneward/internal/workspace"
)

var (
	flagPaneTab  string
	flagPaneCwd  string
	flagPaneMeta []string

	flagListAll   bool
	flagListStale bool
)

var paneCmd = &cobra.Command{
	Use:   "pane",
	Short: "Open, inspect, and list named panes",
}

var paneOpenCmd = &cobra.Command{
	Use:   "open <name>",
	Short: "Focus a named pane, creating it if needed",
	Long: `Open focuses the named pane wherever it lives. If the pane is not
tracked (or its tab has vanished), it is created in the target tab and
registered in the store. Metadata passed with --meta is merged into the
record on every open.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		meta, err := parseMeta(flagPaneMeta)
		if err != nil {
			return err
		}

		nav := workspace.NewNavigator(a.store, a.mux, a.events, a.log)
		res, err := nav.Open(cmd.Context(), workspace.OpenRequest{
			Name:    args[0],
			Session: a.session,
			Tab:     flagPaneTab,
			Cwd:     flagPaneCwd,
			Meta:    meta,
		})
		if err != nil {
			return err
		}
		a.metrics().RecordPaneOpen(cmd.Context(), openOutcome(res))

		return emit(res, func() {
			switch {
			case res.Recovered:
				fmt.Printf("recreated pane %q in tab %q (previous pane was gone)\n", res.Record.Name, res.Record.Tab)
			case res.Created:
				fmt.Printf("created pane %q in tab %q\n", res.Record.Name, res.Record.Tab)
			default:
				fmt.Printf("opened pane %q in tab %q\n", res.Record.Name, res.Record.Tab)
			}
		})
	},
}

func openOutcome(res *workspace.OpenResult) string {
	switch {
	case res.Recovered:
		return "recovered"
	case res.Created:
		return "created"
	default:
		return "opened"
	}
}

var paneInfoCmd = &cobra.Command{
	Use:   "info <name>",
	Short: "Show the stored record for a pane",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := a.store.GetPane(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("pane %q: %w", args[0], errNotFound)
		}

		return emit(rec, func() { printPane(*rec) })
	},
}

var paneListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked panes for the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		session := a.session
		if flagListAll {
			session = ""
		}
		recs, err := a.store.ListPanes(cmd.Context(), session)
		if err != nil {
			return err
		}
		if !flagListStale {
			live := recs[:0]
			for _, r := range recs {
				if !r.Stale {
					live = append(live, r)
				}
			}
			recs = live
		}
		sort.Slice(recs, func(i, j int) bool { return recs[i].Name < recs[j].Name })

		return emit(recs, func() {
			if len(recs) == 0 {
				fmt.Println("no tracked panes")
				return
			}
			for _, r := range recs {
				printPane(r)
			}
		})
	},
}

func printPane(r model.PaneRecord) {
	flag := ""
	if r.Stale {
		flag = " [stale]"
	}
	fmt.Printf("%s%s  tab=%s pos=%d session=%s last-seen=%s\n",
		r.Name, flag, r.Tab, r.Position, r.Session, r.LastSeen.Format("2006-01-02 15:04:05"))
	if len(r.Meta) > 0 {
		keys := make([]string, 0, len(r.Meta))
		for k := range r.Meta {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("    %s=%s\n", k, r.Meta[k])
		}
	}
}

// parseMeta turns repeated key=value flags into a map.
func parseMeta(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	meta := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		idx := strings.IndexByte(pair, '=')
		if idx <= 0 {
			return nil, fmt.Errorf("invalid --meta %q (want key=value)", pair)
		}
		meta[pair[:idx]] = pair[idx+1:]
	}
	return meta, nil
}

func init() {
	paneOpenCmd.Flags().StringVar(&flagPaneTab, "tab", "", "tab to create the pane in (default: the active tab)")
	paneOpenCmd.Flags().StringVar(&flagPaneCwd, "cwd", "", "working directory for a newly created pane")
	paneOpenCmd.Flags().StringArrayVar(&flagPaneMeta, "meta", nil, "metadata key=value to merge into the record (repeatable)")

	paneListCmd.Flags().BoolVar(&flagListAll, "all", false, "list panes from every session")
	paneListCmd.Flags().BoolVar(&flagListStale, "stale", false, "include stale records")

	paneCmd.AddCommand(paneOpenCmd, paneInfoCmd, paneListCmd)
	rootCmd.AddCommand(paneCmd)
}
