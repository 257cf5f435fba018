package cmd

import (
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fsaudit/fist/internal/scan"
)

var version = "0.1.0"

// rootCmd is the scan itself: fist <directory> walks the tree and prints
// one record per object on stdout.
var rootCmd = &cobra.Command{
	Use:   "fist [flags] <directory>",
	Short: "Fast filesystem stat tool",
	Long: `fist walks a directory tree and prints one machine-parseable record per
filesystem object, staying on the device of the root directory:

  blocks:mode:nlinks:uid:gid:size:mtime:atime:ctime:path

Names are percent-encoded so the output stays colon-delimited and byte-safe
whatever the filesystem holds; symlinks are reported (never followed) with a
trailing " -> target". Unreadable entries are skipped with a warning on
stderr and do not affect the exit code unless --strict is given.

The argument is an absolute directory name or ".".`,
	Version:      version,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScan(args[0])
	},
}

// Execute runs the root command and its subcommands.
func Execute() error {
	rootCmd.SetErrPrefix(scan.Tag + ":")
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags().StringP("output", "o", "", "Write records to a file instead of stdout")
	rootCmd.Flags().BoolP("compress", "z", false, "Gzip the record stream")
	rootCmd.Flags().StringSlice("exclude", nil, "Directory patterns to prune (doublestar, relative to the root)")
	rootCmd.Flags().Bool("strict", false, "Exit non-zero when any entry or subtree had to be skipped")
	rootCmd.PersistentFlags().Int("max-path", scan.DefaultMaxPathLen, "Maximum accumulated path length")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().Bool("silent", false, "Disable lifecycle logging entirely")
	rootCmd.PersistentFlags().String("log-file", "", "Write logs to a rotating file instead of stderr")

	viper.BindPFlag("output", rootCmd.Flags().Lookup("output"))
	viper.BindPFlag("compress", rootCmd.Flags().Lookup("compress"))
	viper.BindPFlag("exclude", rootCmd.Flags().Lookup("exclude"))
	viper.BindPFlag("strict", rootCmd.Flags().Lookup("strict"))
	viper.BindPFlag("max-path", rootCmd.PersistentFlags().Lookup("max-path"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("silent", rootCmd.PersistentFlags().Lookup("silent"))
	viper.BindPFlag("log-file", rootCmd.PersistentFlags().Lookup("log-file"))
}

// initConfig reads in the optional config file and matching environment
// variables.
func initConfig() {
	if home, err := os.UserHomeDir(); err == nil {
		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".fist")
	}
	viper.SetEnvPrefix("FIST")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func runScan(root string) error {
	logger := newLogger()
	defer logger.Sync()

	reporter := &scan.StreamReporter{W: os.Stderr}

	out, closeOut, err := openOutput(viper.GetString("output"), viper.GetBool("compress"))
	if err != nil {
		return err
	}

	walker := scan.NewWalker(scan.Options{
		Output:     out,
		Reporter:   reporter,
		Logger:     logger,
		MaxPathLen: viper.GetInt("max-path"),
		Exclude:    viper.GetStringSlice("exclude"),
	})
	err = walker.Run(root)

	if cerr := closeOut(); cerr != nil && err == nil {
		err = cerr
	}

	if errors.Is(err, scan.ErrIncomplete) {
		// Best-effort completion: the warnings are on stderr and the exit
		// code stays zero unless the caller asked for strictness.
		if viper.GetBool("strict") {
			return err
		}
		return nil
	}
	return err
}

// openOutput builds the record destination: stdout by default, a file when
// path is set, gzip-wrapped when compress is set. The returned close
// function finalizes the gzip stream before the file, so a truncated
// stream never reaches disk silently.
func openOutput(path string, compress bool) (io.Writer, func() error, error) {
	out := io.Writer(os.Stdout)
	var file *os.File
	if path != "" {
		f, err := os.Create(filepath.Clean(path))
		if err != nil {
			return nil, nil, err
		}
		file = f
		out = f
	}
	var gz *gzip.Writer
	if compress {
		gz = gzip.NewWriter(out)
		out = gz
	}
	closeOut := func() error {
		var err error
		if gz != nil {
			err = gz.Close()
		}
		if file != nil {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}
		return err
	}
	return out, closeOut, nil
}

// newLogger builds the lifecycle logger from the shared verbosity flags.
// Records own stdout and the parseable diagnostics own stderr, so the
// logger defaults to errors only; --log-file moves it to a rotating file.
func newLogger() *zap.Logger {
	level := zapcore.ErrorLevel
	if viper.GetBool("verbose") {
		level = zapcore.DebugLevel
	}
	if viper.GetBool("silent") {
		level = zapcore.FatalLevel
	}

	if logFile := viper.GetString("log-file"); logFile != "" {
		ws := zapcore.AddSync(&lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    50, // MiB
			MaxBackups: 3,
			MaxAge:     28, // days
		})
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		return zap.New(zapcore.NewCore(enc, ws, level))
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
