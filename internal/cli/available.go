package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newAvailableCmd() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "available",
		Short: "List docsets offered by the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.loadCatalog(cmd.Context()); err != nil {
				return err
			}

			entries := a.pipe.Catalog()
			if len(entries) == 0 {
				fmt.Printf("\n%s Catalog is empty\n", dim("○"))
				return nil
			}

			fmt.Println("Available docsets:")
			fmt.Println()
			for _, m := range entries {
				if a.reg.Contains(m.Name) {
					if all {
						fmt.Printf(" %s %s %s\n", dim(m.Name), dim(m.Title), dim("(installed)"))
					}
					continue
				}
				line := fmt.Sprintf(" %s  %s", bold(m.Name), m.Title)
				if m.Version != "" {
					line += fmt.Sprintf("  %s", dim(m.Version))
				}
				fmt.Println(line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include already installed docsets")
	return cmd
}
