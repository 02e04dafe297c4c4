package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/sponsorcards/internal/utils"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sponsorcards",
	Short: "Sponsor cards storefront: availability, cart and donation handoff.",
	Long: `sponsorcards keeps a local view of which sponsor cards are still available,
manages the donor's cart and hands the donation off to the backend and the
hosted payment checkout.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.sponsorcards.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to SQLite DB file (default: ~/.config/sponsorcards/sponsorcards.sqlite)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetDefault("backend.url", "http://localhost:3000")
	viper.SetDefault("backend.timeout", "10s")
	viper.SetDefault("backend.retries", 3)
	viper.SetDefault("payment.checkout_url", "https://checkout.wompi.co/p/")
	viper.SetDefault("payment.public_key", "")
	viper.SetDefault("payment.currency", "COP")
	viper.SetDefault("payment.redirect_url", "")
	viper.SetDefault("sync.expiry", "5m")
	viper.SetDefault("sync.interval", "30s")
	viper.SetDefault("donation.minimum", 90000)
	viper.SetDefault("server.username", "")
	viper.SetDefault("server.password", "")
	viper.SetDefault("server.listen", ":8080")

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".sponsorcards")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.sponsorcards.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}
