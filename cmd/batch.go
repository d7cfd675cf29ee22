package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paneward/paneward/internal/workspace"
)

var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Open a set of panes from a YAML manifest",
	Long: `Batch opens every pane named in a YAML manifest, sequentially and in
order. Use "-" to read the manifest from stdin.

Manifest format:

  panes:
    - name: editor
      tab: dev
      cwd: /home/dev/api
    - name: build
      tab: dev

Per-pane failures are reported and do not stop the rest of the batch; an
unreachable store aborts.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var data []byte
		var err error
		if args[0] == "-" {
			data, err = io.ReadAll(os.Stdin)
		} else {
			data, err = os.ReadFile(args[0])
		}
		if err != nil {
			return err
		}

		var manifest struct {
			Panes []workspace.BatchItem `yaml:"panes"`
		}
		if err := yaml.Unmarshal(data, &manifest); err != nil {
			return fmt.Errorf("parsing manifest: %w", err)
		}
		if len(manifest.Panes) == 0 {
			return fmt.Errorf("manifest has no panes")
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		nav := workspace.NewNavigator(a.store, a.mux, a.events, a.log)
		results, err := nav.Batch(cmd.Context(), a.session, manifest.Panes)
		if err != nil {
			return err
		}

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
			}
		}
		emitErr := emit(results, func() {
			for _, r := range results {
				if r.Err != nil {
					fmt.Printf("%s: FAILED: %v\n", r.Name, r.Err)
					continue
				}
				fmt.Printf("%s: %s (tab %s)\n", r.Name, openOutcome(r.Result), r.Result.Record.Tab)
			}
		})
		if emitErr != nil {
			return emitErr
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d panes failed", failed, len(results))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)
}
