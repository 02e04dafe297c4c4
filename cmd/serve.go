package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sw33tLie/sponsorcards/internal/app"
	"github.com/sw33tLie/sponsorcards/internal/server"
	"github.com/sw33tLie/sponsorcards/internal/utils"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the local storefront API and the background poller",
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		if listenAddr == "" {
			listenAddr = viper.GetString("server.listen")
		}
		interval := viper.GetDuration("sync.interval")

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		go func() {
			if err := a.Reconciler.Run(ctx, interval); err != nil {
				utils.Log.Errorf("Poller stopped: %v", err)
			}
		}()

		user, pass := viper.GetString("server.username"), viper.GetString("server.password")
		if user == "" && pass == "" {
			utils.Log.Warn("Admin endpoints are not protected: set server.username and server.password")
		}
		return server.New(a, user, pass, utils.Log).Start(ctx, listenAddr)
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "", "HTTP listen address (default: server.listen from the config)")
}
