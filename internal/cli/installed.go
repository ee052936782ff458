package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInstalledCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "installed",
		Short: "List installed docsets",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			docsets, err := a.reg.Docsets()
			if err != nil {
				return err
			}
			if len(docsets) == 0 {
				fmt.Printf("\n%s No docsets installed\n", dim("○"))
				return nil
			}

			fmt.Println("Installed docsets:")
			fmt.Println()
			for _, ds := range docsets {
				line := fmt.Sprintf(" %s  %s", bold(ds.Name), ds.Title)
				if ds.Meta != nil {
					if ds.Meta.Version != "" {
						line += fmt.Sprintf("  %s", dim(ds.Meta.Version))
					}
					if ds.Meta.FeedURL != "" {
						line += fmt.Sprintf("  %s", cyan("(feed)"))
					}
				} else {
					line += fmt.Sprintf("  %s", yellow("(no metadata)"))
				}
				fmt.Println(line)
			}
			return nil
		},
	}
	return cmd
}
