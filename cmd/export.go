package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/report"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/storage"
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export a stored session to CSV and summary",
	Long: `Reads a session from the session database and writes the labels CSV and
companion summary. Without --session the most recent session is exported;
use 'labelscope export --list' to see what is stored.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		if dbPath == "" {
			dbPath = viper.GetString("dbpath")
		}
		if _, err := os.Stat(dbPath); errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("session database not found: %s", dbPath)
		}

		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := context.Background()
		sessions, err := db.ListSessions(ctx)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions stored.")
			return nil
		}

		if list, _ := cmd.Flags().GetBool("list"); list {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tPROTOCOL\tROOT\tANNOTATOR\tSTARTED\t")
			for _, s := range sessions {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n",
					s.ID, s.Protocol, s.Root, s.Annotator, s.StartedAt.Format(report.TimestampLayout))
			}
			return w.Flush()
		}

		target := sessions[0]
		if id, _ := cmd.Flags().GetString("session"); id != "" {
			found := false
			for _, s := range sessions {
				if s.ID == id {
					target, found = s, true
					break
				}
			}
			if !found {
				return fmt.Errorf("session %s not found in %s", id, dbPath)
			}
		}

		entries, err := db.ListEntries(ctx, target.ID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Printf("Session %s has no labels.\n", target.ID)
			return nil
		}

		protocol := labels.Protocol(target.Protocol)
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = target.Protocol + "_labels.csv"
		}

		if err := report.SaveCSV(output, protocol, entries); err != nil {
			return err
		}

		var last time.Time
		for _, e := range entries {
			if e.LabeledAt.After(last) {
				last = e.LabeledAt
			}
		}
		meta := report.Meta{
			Protocol:    protocol,
			Annotator:   target.Annotator,
			StartedAt:   target.StartedAt,
			EndedAt:     last,
			GeneratedAt: last,
			TotalImages: len(entries),
			OutputPath:  output,
		}
		if err := report.SaveSummary(report.SummaryPath(output), meta, entries); err != nil {
			return err
		}

		fmt.Printf("Exported %d labels from session %s to %s\n", len(entries), target.ID, output)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().String("dbpath", "", "Path to the session SQLite DB (default from config)")
	exportCmd.Flags().String("session", "", "Session ID to export (default: most recent)")
	exportCmd.Flags().StringP("output", "o", "", "Output CSV path")
	exportCmd.Flags().Bool("list", false, "List stored sessions instead of exporting")
}
