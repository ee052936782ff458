package cli

import (
	"github.com/spf13/cobra"
)

func newAddFeedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add-feed <url>",
		Short: "Install a docset from a feed URL",
		Long: `Install a docset described by a Dash feed document.

The URL may use the dash-feed:// scheme; the prefix is stripped and the
remainder percent-decoded before fetching.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.Close()

			a.printOutcomes()
			a.attachProgressBar("Downloading")

			if err := a.pipe.AddFeed(args[0]); err != nil {
				return err
			}
			return a.waitSettled(cmd.Context())
		},
	}
	return cmd
}
