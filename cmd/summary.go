package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fsaudit/fist/internal/summary"
)

var summaryCmd = &cobra.Command{
	Use:   "summary [flags] [file]",
	Short: "Aggregate a record stream into per-owner statistics",
	Long: `Summary reads fist records from a file (or stdin) and prints a JSON
report of per-owner usage: object counts by type, sizes, name length and
depth extrema. Lines that do not parse as records are counted and skipped.

Examples:
  fist /data > data.fist && fist summary --histogram data.fist
  fist / | fist summary --human`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		}
		return runSummary(path)
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().Bool("histogram", false, "Include a power-of-two file size histogram")
	summaryCmd.Flags().Bool("human", false, "Print a human-readable footer on stderr")

	viper.BindPFlag("summary.histogram", summaryCmd.Flags().Lookup("histogram"))
	viper.BindPFlag("summary.human", summaryCmd.Flags().Lookup("human"))
}

func runSummary(path string) error {
	in := io.Reader(os.Stdin)
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	report, err := summary.Parse(in, summary.Options{
		Histogram: viper.GetBool("summary.histogram"),
	})
	if err != nil {
		return err
	}
	if err := report.WriteJSON(os.Stdout); err != nil {
		return err
	}
	if viper.GetBool("summary.human") {
		return report.WriteHuman(os.Stderr)
	}
	return nil
}
