package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/sponsorcards/internal/app"
	"github.com/sw33tLie/sponsorcards/pkg/cart"
)

var cartCmd = &cobra.Command{
	Use:   "cart",
	Short: "Show and edit the donor's cart",
}

var cartShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the cart and its totals",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		printCart(a.Cart)
		return nil
	}),
}

var cartAddCmd = &cobra.Command{
	Use:   "add ID AMOUNT",
	Short: "Add a card with a donation amount, or update its amount",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		if err := a.AddToCart(cmd.Context(), args[0], cart.ParseAmount(args[1])); err != nil {
			return err
		}
		printCart(a.Cart)
		return nil
	}),
}

var cartRemoveCmd = &cobra.Command{
	Use:   "remove ID",
	Short: "Remove a card from the cart",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		if err := a.Cart.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		printCart(a.Cart)
		return nil
	}),
}

var cartVoluntaryCmd = &cobra.Command{
	Use:   "voluntary AMOUNT",
	Short: "Set the voluntary donation (e.g. 20.000)",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		if err := a.Cart.SetVoluntaryAmount(cmd.Context(), args[0]); err != nil {
			return err
		}
		printCart(a.Cart)
		return nil
	}),
}

var cartClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Empty the cart",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		return a.Cart.Clear(cmd.Context())
	}),
}

// withApp opens the application for the duration of one command.
func withApp(run func(cmd *cobra.Command, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, closeFn, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer closeFn()
		return run(cmd, a, args)
	}
}

func printCart(c *cart.Cart) {
	items := c.Items()
	if len(items) == 0 {
		fmt.Println("Cart is empty.")
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", it.CardID, it.Name, cart.FormatPrice(it.Amount))
	}
	t := c.Totals()
	fmt.Fprintf(w, "cards\t\t%s\t\n", cart.FormatPrice(t.CardsTotal))
	fmt.Fprintf(w, "voluntary\t\t%s\t\n", cart.FormatPrice(t.VoluntaryTotal))
	fmt.Fprintf(w, "TOTAL\t\t%s\t\n", cart.FormatPrice(t.GrandTotal))
	w.Flush()
}

func init() {
	rootCmd.AddCommand(cartCmd)
	cartCmd.AddCommand(cartShowCmd, cartAddCmd, cartRemoveCmd, cartVoluntaryCmd, cartClearCmd)
}
