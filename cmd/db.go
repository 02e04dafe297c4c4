package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/sw33tLie/sponsorcards/internal/app"
	"github.com/sw33tLie/sponsorcards/internal/utils"
)

// dbCmd represents the db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect and repair the local sponsorcards state",
}

// shellCmd represents the shell command
var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Start an interactive shell to the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		dbPath, err := utils.GetAbsDBPath(dbPath)
		if err != nil {
			return err
		}

		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return fmt.Errorf("database file not found: %s", dbPath)
		}

		// Check if sqlite3 is in PATH
		sqlitePath, err := exec.LookPath("sqlite3")
		if err != nil {
			return fmt.Errorf("sqlite3 command not found in your PATH. Please install it to use the db shell")
		}

		// Print schema first
		fmt.Println("--> Database schema:")
		schemaCmd := exec.Command(sqlitePath, dbPath, ".schema")
		schemaCmd.Stdout = os.Stdout
		schemaCmd.Stderr = os.Stderr
		if err := schemaCmd.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: couldn't retrieve schema: %v\n", err)
		}
		fmt.Println("\n--> Starting interactive shell... (Ctrl+D to exit)")

		c := exec.Command(sqlitePath, dbPath)
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr

		return c.Run()
	},
}

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints how many cards are donated and available, and when the last sync ran.",
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		st := a.Stats()

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "DONATED\tAVAILABLE\tTOTAL\t")
		fmt.Fprintf(w, "%d\t%d\t%d\t\n", st.Donated, st.Available, st.Total)
		w.Flush()

		if st.Sync.LastSuccess.IsZero() {
			fmt.Println("\nNo successful sync in this process. Run 'sponsorcards sync'.")
		}
		pending, err := a.PendingDonations(cmd.Context())
		if err != nil {
			return err
		}
		for _, info := range pending {
			fmt.Printf("\nAwaiting payment result for %s (%s).", info.Reference, utils.JoinNames(info.Names))
		}
		if len(pending) > 0 {
			fmt.Println()
		}
		return nil
	}),
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Print the donation audit log, newest first",
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		entries, err := a.AuditLog(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("The audit log is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tACTION\tATTEMPT\tCARDS\tDETAIL\t")
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
				e.OccurredAt.Local().Format(time.DateTime), e.Action, e.AttemptID, strings.Join(e.CardIDs, ","), e.Detail)
		}
		return w.Flush()
	}),
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Mark every known card as available again",
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("reset makes every donated card available again; pass --yes to confirm")
		}
		if err := a.Reset(cmd.Context()); err != nil {
			return err
		}
		utils.Log.Infof("All %d cards are available again", a.Stats().Total)
		return nil
	}),
}

var releaseCmd = &cobra.Command{
	Use:   "release ID...",
	Short: "Make cards reserved by an abandoned or failed payment available again",
	Args:  cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, a *app.App, args []string) error {
		if err := a.Release(cmd.Context(), args); err != nil {
			return err
		}
		utils.Log.Infof("Released %s", utils.JoinNames(a.Names(args)))
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(shellCmd, statsCmd, logCmd, resetCmd, releaseCmd)
	logCmd.Flags().Int("limit", 50, "Number of entries to print")
	resetCmd.Flags().Bool("yes", false, "Confirm the reset")
}
