package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sys/unix"

	"github.com/fsaudit/fist/internal/scan"
)

var watchCmd = &cobra.Command{
	Use:   "watch [flags] <directory>",
	Short: "Watch a directory and emit a record per change",
	Long: `Watch monitors a directory and prints a fresh metadata record, in the
same format as a scan, for every object a filesystem event names. Removed
or renamed objects cannot be looked up anymore and produce a warning on
stderr instead. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(args[0])
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolP("recursive", "r", false, "Watch subdirectories on the same device too")

	viper.BindPFlag("watch.recursive", watchCmd.Flags().Lookup("recursive"))
}

func runWatch(root string) error {
	logger := newLogger()
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, unix.SIGTERM)
	defer stop()

	return scan.Watch(ctx, root, scan.WatchOptions{
		Output:     os.Stdout,
		Reporter:   &scan.StreamReporter{W: os.Stderr},
		Logger:     logger,
		MaxPathLen: viper.GetInt("max-path"),
		Recursive:  viper.GetBool("watch.recursive"),
	})
}
