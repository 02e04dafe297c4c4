package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/sponsorcards/internal/utils"
	"github.com/sw33tLie/sponsorcards/pkg/polling"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Reconcile local availability with the backend card list",
	RunE: func(cmd *cobra.Command, args []string) error {
		importCards, _ := cmd.Flags().GetBool("import")

		a, closeFn, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		var res *polling.Result
		if importCards {
			res, err = a.ImportFromBackend(cmd.Context())
		} else {
			res, err = a.Sync(cmd.Context())
		}
		if err != nil {
			return err
		}

		fmt.Printf("Fetched %d cards, %d donated upstream, %d newly marked as donated.\n",
			res.Fetched, res.Donated, len(res.Marked))
		for _, id := range res.Marked {
			fmt.Println("  marked:", id)
		}
		for _, ref := range res.Unmatched {
			utils.Log.Warnf("Donated backend card %q matches no local card", ref)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(syncCmd)
	syncCmd.Flags().Bool("import", false, "Refresh the catalog from the backend card list first")
}
