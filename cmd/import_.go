package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tidwall/gjson"

	"github.com/midas-in/midas-oral-cancer-labelling-app/internal/utils"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/dataset"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/report"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/storage"
)

// firstString returns the first non-empty of several candidate JSON keys,
// so exports from the web reviewer and hand-edited files both load.
func firstString(v gjson.Result, keys ...string) string {
	for _, k := range keys {
		if s := v.Get(k).String(); s != "" {
			return s
		}
	}
	return ""
}

// firstFloat is firstString for numeric fields.
func firstFloat(v gjson.Result, keys ...string) float64 {
	for _, k := range keys {
		if r := v.Get(k); r.Exists() {
			return r.Float()
		}
	}
	return 0
}

// importCmd represents the import command
var importCmd = &cobra.Command{
	Use:   "import [labels.json]",
	Short: "Merge a JSON label export into the session database",
	Long: `Reads labels from a JSON file (either a bare array of label objects or an
object with "session" and "labels" keys) and upserts them into the session
database. Field names are matched leniently; rows failing validation are
skipped with a warning rather than aborting the import.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		if !gjson.ValidBytes(raw) {
			return fmt.Errorf("%s is not valid JSON", args[0])
		}
		doc := gjson.ParseBytes(raw)

		rows := doc.Get("labels")
		if !rows.Exists() && doc.IsArray() {
			rows = doc
		}
		if !rows.IsArray() {
			return fmt.Errorf("%s: expected a label array or a \"labels\" key", args[0])
		}

		protoFlag, _ := cmd.Flags().GetString("protocol")
		if protoFlag == "" {
			protoFlag = firstString(doc, "session.protocol", "protocol")
		}
		protocol, err := labels.ParseProtocol(protoFlag)
		if err != nil {
			return fmt.Errorf("cannot determine protocol, pass --protocol: %w", err)
		}

		dbPath, _ := cmd.Flags().GetString("dbpath")
		if dbPath == "" {
			dbPath = viper.GetString("dbpath")
		}
		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		sessionID := firstString(doc, "session.id")
		if flagID, _ := cmd.Flags().GetString("session"); flagID != "" {
			sessionID = flagID
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		meta := storage.SessionMeta{
			ID:        sessionID,
			Protocol:  string(protocol),
			Root:      firstString(doc, "session.root", "root"),
			Annotator: firstString(doc, "session.annotator", "annotator"),
			StartedAt: time.Now(),
		}
		if started := firstString(doc, "session.started_at"); started != "" {
			if t, err := time.Parse(report.TimestampLayout, started); err == nil {
				meta.StartedAt = t
			}
		}

		var entries []labels.Entry
		skipped := 0
		rows.ForEach(func(_, row gjson.Result) bool {
			e := labels.Entry{
				Case:          firstString(row, "case_id", "case", "Case_ID"),
				Visit:         firstString(row, "visit_id", "visit", "Visit_ID"),
				BodySite:      firstString(row, "body_site", "Body_Site"),
				Magnification: firstString(row, "magnification", "Magnification"),
				File:          firstString(row, "image_file", "file", "filename", "Image_File"),
				Path:          firstString(row, "path", "image_path"),
				Category:      firstString(row, "category", "diagnosis", "label", "Diagnosis"),
				Subtype:       firstString(row, "subtype", "Subtype"),
				Comment:       firstString(row, "comment", "Comment"),
				Annotator:     firstString(row, "annotator", "Annotator"),
				TimeSpent:     firstFloat(row, "time_spent", "Time_Spent_sec"),
			}
			e.MagValue = dataset.ParseMagnification(e.Magnification)
			if e.Annotator == "" {
				e.Annotator = meta.Annotator
			}
			if ts := firstString(row, "timestamp", "labeled_at", "Timestamp"); ts != "" {
				if t, err := time.Parse(report.TimestampLayout, ts); err == nil {
					e.LabeledAt = t
				}
			}
			if e.Path == "" {
				e.Path = e.Case + "/" + e.Visit + "/" + e.File
			}

			if err := e.Validate(protocol); err != nil {
				utils.Log.Warnf("skipping %s: %v", e.File, err)
				skipped++
				return true
			}
			entries = append(entries, e)
			return true
		})

		if len(entries) == 0 {
			return fmt.Errorf("no valid label rows in %s (%d skipped)", args[0], skipped)
		}

		ctx := context.Background()
		if err := db.CreateSession(ctx, meta); err != nil {
			return err
		}
		if err := db.UpsertEntries(ctx, sessionID, entries); err != nil {
			return err
		}

		fmt.Printf("Imported %d labels into session %s (%d skipped)\n", len(entries), sessionID, skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().String("dbpath", "", "Path to the session SQLite DB (default from config)")
	importCmd.Flags().StringP("protocol", "p", "", "Schema of the imported labels: clinical or histopath")
	importCmd.Flags().String("session", "", "Target session ID (default: from the file, or a new one)")
}
