package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/midas-in/midas-oral-cancer-labelling-app/internal/server"
	"github.com/midas-in/midas-oral-cancer-labelling-app/internal/utils"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/dataset"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/session"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/storage"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve [clinical|histopath] [root]",
	Short: "Serve a labelling session over a local JSON API",
	Long: `Scans the dataset root and exposes the session over HTTP: records, current
labels, validated label commits, and the live summary. Commits run the same
guards as the terminal loop and are persisted to the session database.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
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
			return fmt.Errorf("no matching images found under %s", root)
		}

		annotator, _ := cmd.Flags().GetString("annotator")
		if annotator == "" {
			annotator = viper.GetString("annotator")
		}
		if annotator == "" {
			annotator = "Anonymous"
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
				utils.Log.Infof("resumed session %s with %d labels", prev.ID, len(entries))
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

		user, pass := "", ""
		if auth, _ := cmd.Flags().GetString("auth"); auth != "" {
			var ok bool
			user, pass, ok = strings.Cut(auth, ":")
			if !ok {
				return errors.New("--auth wants user:password")
			}
		}

		listen, _ := cmd.Flags().GetString("listen")
		return server.New(sess, db, user, pass).Start(listen)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", "127.0.0.1:7333", "HTTP listen address")
	serveCmd.Flags().String("auth", "", "Basic auth credentials as user:password")
	serveCmd.Flags().StringP("annotator", "a", "", "Annotator name (default from config)")
	serveCmd.Flags().String("dbpath", "", "Path to the session SQLite DB (default from config)")
	serveCmd.Flags().Bool("resume", true, "Resume the most recent session for this root")
}
