package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/numpy/ironsetup/pkg/buildlog"
	"github.com/numpy/ironsetup/pkg/config"
	"github.com/numpy/ironsetup/pkg/platform"
	"github.com/numpy/ironsetup/pkg/shell"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  zerolog.Logger

	// newRunner creates the runner used for external tools
	newRunner = func() *shell.Interp {
		return shell.NewInterp()
	}
)

var rootCmd = &cobra.Command{
	Use:   "ironsetup",
	Short: "Build steps for the IronPython port of NumPy",
	Long: `Without a subcommand, ironsetup checks that it runs under IronPython and then builds the NumpyDotNet
project with msbuild. The other commands declare and build numpy.lib and fetch prebuilt dependencies.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadEnv,
	RunE:              runBuild,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "configuration file (default is "+config.DefaultFile+")")
	rootCmd.PersistentFlags().String("source-root", "", "root of the source tree (default is the working directory)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
}

// loadEnv reads the configuration, applies the global flags and sets up logging
func loadEnv(cmd *cobra.Command, args []string) error {
	files := []string{}
	if cfgFile != "" {
		files = append(files, cfgFile)
	}

	var err error
	cfg, err = config.Load(files...)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("source-root") {
		cfg.SourceRoot, _ = flags.GetString("source-root")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}

	if err = cfg.Validate(); err != nil {
		return err
	}

	logger = newLogger(cfg)
	log.Logger = logger
	return nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	errorTraces = cfg.LogLevel() == zerolog.DebugLevel
	if cfg.Log.JSON {
		return zerolog.New(os.Stderr).Level(cfg.LogLevel()).With().Timestamp().Logger()
	}

	out := NewConsoleWriter()
	out.Verbose = errorTraces
	return zerolog.New(out).Level(cfg.LogLevel())
}

// commandContext returns the context of cmd carrying the configured logger
func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return buildlog.WithLogger(ctx, &logger)
}

// sourceRoot returns the absolute source root
func sourceRoot(cfg *config.Config) (string, error) {
	root := cfg.SourceRoot
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return "", eris.Wrap(err, "failed to determine the working directory")
		}
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return "", eris.Wrapf(err, "failed to resolve %s", root)
	}
	return root, nil
}

// resolvePath returns path relative to root unless it is absolute
func resolvePath(root, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// exitStatus reports err on stderr and returns the process exit code for it
func exitStatus(err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}

	if eris.Is(err, platform.ErrRuntimeMismatch) {
		fmt.Fprintln(stderr, "ERROR: "+platform.ErrRuntimeMismatch.Error())
	} else {
		fmt.Fprintln(stderr, "Error:", err)
	}
	return 1
}

// Execute runs the command line interface and exits with status 1 on errors
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if code := exitStatus(err, os.Stderr); code != 0 {
		os.Exit(code)
	}
}
