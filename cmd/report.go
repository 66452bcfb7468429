package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/report"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report [labels.csv]",
	Short: "Recompute the session summary from a labels CSV",
	Long: `Parses a previously written labels CSV and regenerates the summary text
(distribution, per-case counts, timing statistics, flagged-entry log). The
schema is detected from the header; --protocol overrides detection.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		br := bufio.NewReader(f)
		header, _ := br.Peek(16)
		if len(header) == 0 {
			return fmt.Errorf("%s is empty", args[0])
		}

		protocol := labels.Clinical
		if strings.HasPrefix(string(header), "Case_ID") {
			protocol = labels.Histopath
		}
		if flag, _ := cmd.Flags().GetString("protocol"); flag != "" {
			protocol, err = labels.ParseProtocol(flag)
			if err != nil {
				return err
			}
		}

		entries, err := report.ReadCSV(br, protocol)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}
		if len(entries) == 0 {
			fmt.Println("No label rows found.")
			return nil
		}

		// Session bounds come from the row timestamps so the report is
		// reproducible from the CSV alone.
		meta := report.Meta{
			Protocol:    protocol,
			OutputPath:  args[0],
			TotalImages: len(entries),
		}
		for _, e := range entries {
			if meta.Annotator == "" {
				meta.Annotator = e.Annotator
			}
			if !e.LabeledAt.IsZero() {
				if meta.StartedAt.IsZero() || e.LabeledAt.Before(meta.StartedAt) {
					meta.StartedAt = e.LabeledAt
				}
				if e.LabeledAt.After(meta.EndedAt) {
					meta.EndedAt = e.LabeledAt
				}
			}
		}
		meta.GeneratedAt = meta.EndedAt
		if total, _ := cmd.Flags().GetInt("total"); total > len(entries) {
			meta.TotalImages = total
			meta.Partial = true
		}

		outPath, _ := cmd.Flags().GetString("output")
		if outPath == "" {
			return report.RenderSummary(os.Stdout, meta, entries)
		}
		if err := report.SaveSummary(outPath, meta, entries); err != nil {
			return err
		}
		fmt.Println("Summary written to", outPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.Flags().StringP("protocol", "p", "", "Force schema: clinical or histopath")
	reportCmd.Flags().StringP("output", "o", "", "Write summary to a file instead of stdout")
	reportCmd.Flags().Int("total", 0, "Total images in the dataset, for completion statistics")
}
