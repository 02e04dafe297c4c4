package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/sponsorcards/internal/app"
	"github.com/sw33tLie/sponsorcards/internal/utils"
	"github.com/sw33tLie/sponsorcards/pkg/backend"
	"github.com/sw33tLie/sponsorcards/pkg/payment"
	"github.com/sw33tLie/sponsorcards/pkg/storage"
)

// openApp opens the local state under the database lock and wires the
// application. The returned func waits for background syncs, closes the
// database and releases the lock.
func openApp(cmd *cobra.Command) (*app.App, func(), error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	absPath, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, nil, err
	}
	lock, err := utils.NewDBLock(absPath)
	if err != nil {
		return nil, nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, nil, err
	}

	db, err := storage.Open(absPath)
	if err != nil {
		lock.Unlock()
		return nil, nil, fmt.Errorf("open %s: %w", absPath, err)
	}

	a, err := app.New(cmd.Context(), app.Options{
		Persistence: db,
		Backend: backend.New(viper.GetString("backend.url"),
			backend.WithRetries(viper.GetInt("backend.retries")),
			backend.WithTimeout(viper.GetDuration("backend.timeout"))),
		Payment:    paymentConfig(),
		SyncExpiry: viper.GetDuration("sync.expiry"),
		Minimum:    viper.GetInt64("donation.minimum"),
		Log:        utils.Log,
	})
	if err != nil {
		db.Close()
		lock.Unlock()
		return nil, nil, err
	}

	closeFn := func() {
		a.Reconciler.Wait()
		if err := db.Close(); err != nil {
			utils.Log.Warnf("Could not close database: %v", err)
		}
		if err := lock.Unlock(); err != nil {
			utils.Log.Warnf("%v", err)
		}
	}
	return a, closeFn, nil
}

func paymentConfig() payment.Config {
	return payment.Config{
		Endpoint:    viper.GetString("payment.checkout_url"),
		PublicKey:   viper.GetString("payment.public_key"),
		Currency:    viper.GetString("payment.currency"),
		RedirectURL: viper.GetString("payment.redirect_url"),
	}
}
