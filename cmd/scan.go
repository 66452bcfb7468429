package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/dataset"
	"github.com/midas-in/midas-oral-cancer-labelling-app/pkg/labels"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan [clinical|histopath] [root]",
	Short: "Discover labelable images under a dataset root",
	Long: `Walks the dataset tree for the chosen protocol and prints every image
that a labelling session would present, in session order. Useful to verify
folder naming before handing the dataset to an annotator.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		protocol, err := labels.ParseProtocol(args[0])
		if err != nil {
			return err
		}

		records, err := dataset.Find(string(protocol), args[1])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No matching images found.")
			return nil
		}

		table, _ := cmd.Flags().GetBool("table")
		if !table {
			for _, r := range records {
				fmt.Println(r.Path)
			}
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		if protocol == labels.Histopath {
			fmt.Fprintln(w, "CASE\tVISIT\tBODY SITE\tMAG\tFILE\t")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t\n", r.Case, r.Visit, r.BodySite, r.Magnification, r.File)
			}
		} else {
			fmt.Fprintln(w, "CASE\tVISIT\tFILE\t")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t\n", r.Case, r.Visit, r.File)
			}
		}
		w.Flush()

		fmt.Printf("\nFound %d images across %d cases.\n", len(records), countCases(records))
		return nil
	},
}

func countCases(records []dataset.Record) int {
	cases := map[string]bool{}
	for _, r := range records {
		cases[r.Case] = true
	}
	return len(cases)
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolP("table", "t", false, "Print an aligned table instead of bare paths")
}
