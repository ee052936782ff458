package cli

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/dashdock/dashdock/internal/pipeline"
)

func newRemoveCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "remove <name>...",
		Short: "Remove installed docsets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			a.printOutcomes()

			var failed int
			var toDelete []string
			for _, name := range args {
				ds, ok := a.reg.Get(name)
				if !ok {
					fmt.Printf("%s %s: not installed\n", red("✗"), name)
					failed++
					continue
				}
				if !yes && !confirm(fmt.Sprintf("Really remove docset %s?", bold(ds.Title))) {
					continue
				}
				toDelete = append(toDelete, name)
			}

			// Disk cleanup is asynchronous; wait for one terminal event per
			// delete started.
			var mu sync.Mutex
			remaining := len(toDelete)
			settled := make(chan struct{}, 1)
			a.subscribe(func(e pipeline.Event) {
				if e.Kind != pipeline.EventDeleteDone {
					return
				}
				mu.Lock()
				remaining--
				done := remaining == 0
				mu.Unlock()
				if done {
					settled <- struct{}{}
				}
			})

			started := 0
			for _, name := range toDelete {
				if err := a.pipe.Delete(name); err != nil {
					mu.Lock()
					remaining--
					mu.Unlock()
					fmt.Printf("%s %s: %v\n", red("✗"), name, err)
					failed++
					continue
				}
				started++
			}

			if started > 0 {
				select {
				case <-settled:
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				}
			}
			if failed > 0 {
				return fmt.Errorf("failed to remove %d docset(s)", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompts")
	return cmd
}
