package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/midas-in/midas-oral-cancer-labelling-app/internal/utils"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/dataset"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/report"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/session"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/storage"
)

// labelCmd represents the label command
var labelCmd = &cobra.Command{
	Use:   "label [clinical|histopath] [root]",
	Short: "Run an interactive labelling session in the terminal",
	Long: `Scans the dataset root, then steps through every image in session order
prompting for a label. Commits are validated (NA, Indeterminate and Ungradable
require a comment; Dysplasia needs risk plus grade) and mirrored into the
session database so an interrupted run can be resumed with --resume.`,
	Args: cobra.ExactArgs(2),
	RunE: runLabel,
}

func runLabel(cmd *cobra.Command, args []string) error {
	protocol, err := labels.ParseProtocol(args[0])
	if err != nil {
		return err
	}
	root, err := filepath.Abs(args[1])
	if err != nil {
		return err
	}

	records, err := dataset.Find(string(protocol), root)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matching images found under", root)
		return nil
	}

	out := cmd.OutOrStdout()
	in := bufio.NewScanner(cmd.InOrStdin())

	annotator, _ := cmd.Flags().GetString("annotator")
	if annotator == "" {
		annotator = viper.GetString("annotator")
	}
	for annotator == "" {
		fmt.Fprint(out, "Annotator name: ")
		if !in.Scan() {
			return errors.New("annotator name is required")
		}
		annotator = strings.TrimSpace(in.Text())
	}

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = string(protocol) + "_labels.csv"
	}

	dbPath, _ := cmd.Flags().GetString("dbpath")
	if dbPath == "" {
		dbPath = viper.GetString("dbpath")
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening session database: %w", err)
	}
	defer db.Close()

	ctx := context.Background()
	sess := session.New(protocol, root, annotator, records)

	if resume, _ := cmd.Flags().GetBool("resume"); resume {
		prev, err := db.LatestSession(ctx, string(protocol), root)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			utils.Log.Warn("no earlier session for this root, starting fresh")
		case err != nil:
			return err
		default:
			entries, err := db.ListEntries(ctx, prev.ID)
			if err != nil {
				return err
			}
			sess.ID = prev.ID
			sess.StartedAt = prev.StartedAt
			sess.Restore(entries)
			fmt.Fprintf(out, "Resumed session %s with %d labels.\n", prev.ID, len(entries))
		}
	}

	if err := db.CreateSession(ctx, storage.SessionMeta{
		ID:        sess.ID,
		Protocol:  string(protocol),
		Root:      root,
		Annotator: annotator,
		StartedAt: sess.StartedAt,
	}); err != nil {
		return err
	}

	autosave, _ := cmd.Flags().GetInt("autosave")
	if autosave < 0 {
		// The histopath tool checkpoints every 25 labels; the clinical tool
		// saves on explicit action only.
		if protocol == labels.Histopath {
			autosave = viper.GetInt("autosave_every")
		} else {
			autosave = 0
		}
	}

	saver := &sessionSaver{sess: sess, db: db, output: output}
	sess.AutosaveEvery = autosave
	sess.Autosave = func(s *session.Session) error { return saver.save(true) }

	fmt.Fprintf(out, "Found %d images across %d cases. Output: %s\n\n",
		len(records), countCases(records), output)

	loop := &labelLoop{sess: sess, saver: saver, in: in, out: out}
	return loop.run()
}

// sessionSaver writes the three persistence targets together: labels CSV,
// summary text, and the session database.
type sessionSaver struct {
	sess   *session.Session
	db     *storage.DB
	output string
}

func (sv *sessionSaver) entries() []labels.Entry {
	out := make([]labels.Entry, 0, len(sv.sess.Entries))
	for _, e := range sv.sess.Entries {
		out = append(out, e)
	}
	return out
}

func (sv *sessionSaver) save(partial bool) error {
	entries := sv.entries()
	if err := report.SaveCSV(sv.output, sv.sess.Protocol, entries); err != nil {
		return err
	}
	now := time.Now()
	meta := report.Meta{
		Protocol:    sv.sess.Protocol,
		Annotator:   sv.sess.Annotator,
		StartedAt:   sv.sess.StartedAt,
		EndedAt:     now,
		GeneratedAt: now,
		TotalImages: sv.sess.Len(),
		OutputPath:  sv.output,
		Partial:     partial,
	}
	if err := report.SaveSummary(report.SummaryPath(sv.output), meta, entries); err != nil {
		return err
	}
	return sv.db.UpsertEntries(context.Background(), sv.sess.ID, entries)
}

func init() {
	rootCmd.AddCommand(labelCmd)
	labelCmd.Flags().StringP("output", "o", "", "Output CSV path (default <protocol>_labels.csv)")
	labelCmd.Flags().StringP("annotator", "a", "", "Annotator name (default from config)")
	labelCmd.Flags().String("dbpath", "", "Path to the session SQLite DB (default from config)")
	labelCmd.Flags().Bool("resume", false, "Resume the most recent session for this root")
	labelCmd.Flags().Int("autosave", -1, "Checkpoint every N labels (0 disables; default 25 for histopath)")
}
