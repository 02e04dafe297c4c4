package cmd

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/sponsorcards/internal/app"
	"github.com/sw33tLie/sponsorcards/internal/utils"
	"github.com/sw33tLie/sponsorcards/pkg/cart"
	"github.com/sw33tLie/sponsorcards/pkg/reservation"
)

var checkoutCmd = &cobra.Command{
	Use:   "checkout",
	Short: "Reserve the cart's cards, register the donation and print the payment redirect",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		donor, err := donorFromFlags(cmd)
		if err != nil {
			return err
		}

		res, err := a.Checkout(cmd.Context(), donor)
		if err != nil {
			if res != nil {
				fmt.Printf("Donation %s registered for %s, its cards stay reserved.\n", res.Reference, utils.JoinNames(res.Names))
			}
			return err
		}

		fmt.Printf("Donation %s registered for %s (%s).\n",
			res.Reference, utils.JoinNames(res.Names), cart.FormatPrice(res.Totals.GrandTotal))
		fmt.Println(res.RedirectURL)

		formPath, _ := cmd.Flags().GetString("form")
		if formPath == "" {
			return nil
		}
		f, err := os.Create(formPath)
		if err != nil {
			return err
		}
		defer f.Close()
		if err := a.Payment.RenderForm(f, res.Totals.GrandTotal, res.Reference); err != nil {
			return err
		}
		utils.Log.Infof("Checkout form written to %s", formPath)
		return nil
	}),
}

var callbackCmd = &cobra.Command{
	Use:   "callback",
	Short: "Process the payment result delivered on the redirect back",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		status, _ := cmd.Flags().GetString("status")
		id, _ := cmd.Flags().GetString("id")
		reference, _ := cmd.Flags().GetString("reference")

		out, err := a.HandleCallback(cmd.Context(), url.Values{"status": {status}, "id": {id}, "reference": {reference}})
		if err != nil {
			return err
		}
		fmt.Printf("[%s] %s\n", out.Kind, out.Message)
		return nil
	}),
}

func donorFromFlags(cmd *cobra.Command) (reservation.Donor, error) {
	f := cmd.Flags()
	var d reservation.Donor
	d.Name, _ = f.GetString("name")
	d.IDType, _ = f.GetString("id-type")
	d.IDNumber, _ = f.GetString("id-number")
	d.Email, _ = f.GetString("email")
	d.Address, _ = f.GetString("address")
	d.Phone, _ = f.GetString("phone")
	d.AcceptPolicy, _ = f.GetBool("accept-policy")

	children, _ := f.GetStringArray("child")
	for _, c := range children {
		name, grade, ok := strings.Cut(c, ":")
		if !ok {
			return d, fmt.Errorf("--child must be NAME:GRADE, got %q", c)
		}
		d.Children = append(d.Children, reservation.Child{Name: name, Grade: grade})
	}
	return d, nil
}

func init() {
	rootCmd.AddCommand(checkoutCmd)
	rootCmd.AddCommand(callbackCmd)

	checkoutCmd.Flags().String("name", "", "Donor full name")
	checkoutCmd.Flags().String("id-type", "", "Identification type ("+strings.Join(reservation.IDTypes, ", ")+")")
	checkoutCmd.Flags().String("id-number", "", "Identification number")
	checkoutCmd.Flags().String("email", "", "Donor e-mail")
	checkoutCmd.Flags().String("address", "", "Donor address")
	checkoutCmd.Flags().String("phone", "", "10 digit phone number")
	checkoutCmd.Flags().StringArray("child", nil, "Donor's child at the school as NAME:GRADE (repeatable)")
	checkoutCmd.Flags().Bool("accept-policy", false, "Accept the data processing policy")
	checkoutCmd.Flags().String("form", "", "Also write the auto-submit checkout form to this HTML file")

	callbackCmd.Flags().String("status", "", "Payment status (APPROVED, DECLINED, ERROR)")
	callbackCmd.Flags().String("id", "", "Payment transaction id")
	callbackCmd.Flags().String("reference", "", "Donation reference (optional when only one donation is pending)")
}
