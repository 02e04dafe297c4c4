package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/sponsorcards/internal/utils"
)

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "Manage the local card catalog",
}

var cardsImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import cards from an asset tree (<age band>/<category>/<name>.webp)",
	RunE: func(cmd *cobra.Command, args []string) error {
		assets, _ := cmd.Flags().GetString("assets")
		if assets == "" {
			return fmt.Errorf("--assets is required")
		}
		if st, err := os.Stat(assets); err != nil || !st.IsDir() {
			return fmt.Errorf("assets directory not found: %s", assets)
		}

		a, closeFn, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		n, err := a.ImportAssets(cmd.Context(), os.DirFS(assets))
		if err != nil {
			return err
		}
		utils.Log.Infof("Imported %d cards from %s (%d in catalog)", n, assets, a.Catalog().Len())
		return nil
	},
}

var cardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List catalog cards and whether they are still available",
	RunE: func(cmd *cobra.Command, args []string) error {
		onlyAvailable, _ := cmd.Flags().GetBool("available")

		a, closeFn, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer closeFn()

		cards := a.Cards(onlyAvailable)
		if len(cards) == 0 {
			fmt.Println("No cards in the catalog. Run 'sponsorcards cards import' or 'sponsorcards sync --import'.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tAGE\tCATEGORY\tSTATUS\t")
		for _, c := range cards {
			status := "available"
			if !c.Available {
				status = "donated"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", c.ID, c.DisplayName, c.AgeBand, c.Category, status)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(cardsCmd)
	cardsCmd.AddCommand(cardsImportCmd)
	cardsCmd.AddCommand(cardsListCmd)
	cardsImportCmd.Flags().String("assets", "", "Directory holding the card images")
	cardsListCmd.Flags().Bool("available", false, "Only list cards that can still be sponsored")
}
