package main

import (
	"context"
	"flag"
	"fmt"

	"github.com/sw33tLie/sponsorcards/internal/app"
	"github.com/sw33tLie/sponsorcards/pkg/backend"
	"github.com/sw33tLie/sponsorcards/pkg/cart"
	"github.com/sw33tLie/sponsorcards/pkg/storage"
)

func main() {
	// Usage: go run main.go -backend "http://localhost:3000"

	backendFlag := flag.String("backend", "", "Backend base URL")

	// Parse the command-line flags
	flag.Parse()

	if *backendFlag == "" {
		fmt.Println("Backend URL is required. Please provide it using -backend flag.")
		return
	}

	ctx := context.Background()

	// In-memory state; use storage.Open for a persistent SQLite file.
	a, err := app.New(ctx, app.Options{
		Persistence: storage.NewMemory(),
		Backend:     backend.New(*backendFlag),
	})
	if err != nil {
		fmt.Println(err)
		return
	}

	if _, err := a.ImportFromBackend(ctx); err != nil {
		fmt.Println(err)
		return
	}

	for _, c := range a.Cards(true) {
		fmt.Println(c.ID, c.DisplayName, c.AgeBand)
	}

	if cards := a.Cards(true); len(cards) > 0 {
		if err := a.AddToCart(ctx, cards[0].ID, cart.MinimumDonation); err != nil {
			fmt.Println(err)
			return
		}
		fmt.Println("Cart total:", cart.FormatPrice(a.Cart.Totals().GrandTotal))
	}
}
