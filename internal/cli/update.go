package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newUpdateCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update feed docsets and re-resolve docsets without metadata",
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

			a.printOutcomes()
			a.attachProgressBar("Updating")

			confirmMissing := func(names []string) bool {
				if yes {
					return true
				}
				return confirm(fmt.Sprintf(
					"Some docsets are missing metadata (%s), redownload them from the catalog?",
					strings.Join(names, ", ")))
			}

			if err := a.pipe.Update(cmd.Context(), confirmMissing); err != nil {
				return err
			}
			return a.waitSettled(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip confirmation prompts")
	return cmd
}
