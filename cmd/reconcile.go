package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/paneward/paneward/internal/reconcile"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Check stored pane records against the live session",
	Long: `Reconcile compares every stored pane record for the session with the
live layout. Panes still present are confirmed; panes that vanished are
marked stale (records are never deleted). When the running zellij cannot
report its layout, every record is skipped untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		r := reconcile.New(a.store, a.mux, a.log)
		res, err := r.Run(cmd.Context(), a.session)
		if err != nil {
			return err
		}
		a.metrics().RecordReconcile(cmd.Context(), res)

		return emit(res, func() {
			fmt.Printf("checked %d records: %d confirmed, %d stale, %d skipped\n",
				res.Checked, res.Confirmed, res.Stale, res.Skipped)
			if res.LayoutUnavailable {
				fmt.Println("layout introspection unavailable; nothing was marked stale")
			}
		})
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
