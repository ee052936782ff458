package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <name>...",
		Short: "Download and install docsets from the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.loadCatalog(cmd.Context()); err != nil {
				return err
			}

			a.printOutcomes()
			a.attachProgressBar("Downloading")

			if err := a.pipe.Install(args...); err != nil {
				fmt.Printf("%s %v\n", red("✗"), err)
			}
			if err := a.waitSettled(cmd.Context()); err != nil {
				return err
			}

			var failed int
			for _, name := range args {
				if !a.reg.Contains(name) {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("failed to install %d docset(s)", failed)
			}
			return nil
		},
	}
	return cmd
}
