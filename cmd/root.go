// Package cmd implements the evergreend command-line interface: flag
// parsing and subcommands, grounded on the teacher's cobra root-command
// pattern (a package-level rootCmd, Execute as the sole main.go entrypoint,
// an init() wiring subcommands).
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"evergreen/pkg/logging"
)

// Exit codes, 1 fatal launch error
// (missing main, cyclic deps, unwritable root, or a bad CLI invocation), 2
// fatal runtime error.
const (
	ExitSuccess      = 0
	ExitLaunchError  = 1
	ExitRuntimeError = 2
)

var (
	inputPath string
	rootPath  string
	logSink   string
)

var rootCmd = &cobra.Command{
	Use:           "evergreend",
	Short:         "Supervise a dependency graph of components from a declarative configuration",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSupervisor,
}

// SetVersion injects the build-time version string, set from main.go.
func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	rootCmd.Flags().StringVarP(&inputPath, "i", "i", "", "input configuration file")
	rootCmd.Flags().StringVarP(&rootPath, "r", "r", "", "root directory for persistence")
	rootCmd.Flags().StringVar(&logSink, "log", "stdout", "log sink: stdout|file")
	rootCmd.SetVersionTemplate("evergreend version {{.Version}}\n")

	viper.SetEnvPrefix("evergreen")
	viper.AutomaticEnv()
	_ = viper.BindEnv("root", "EVERGREEN_ROOT")
	_ = viper.BindEnv("log.level", "EVERGREEN_LOG_LEVEL")
	_ = viper.BindEnv("log.fmt", "EVERGREEN_LOG_FMT")
	_ = viper.BindEnv("log.store", "EVERGREEN_LOG_STORE")
	_ = viper.BindEnv("log.storeName", "EVERGREEN_LOG_STORENAME")

	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newTreeCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// Execute is main.go's sole entrypoint. Unknown flags are cobra's own
// "unknown flag" failures; we translate them to required
// wording and exit code before cobra gets a chance to print its own usage.
func Execute() {
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		fmt.Fprintln(os.Stderr, "Undefined command line argument")
		os.Exit(ExitLaunchError)
		return nil
	})

	if err := rootCmd.Execute(); err != nil {
		logging.Error("cmd", err, "fatal error")
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if _, ok := err.(*launchError); ok {
		return ExitLaunchError
	}
	return ExitRuntimeError
}

// launchError marks an error as occurring before the supervisor started
// running anything, so Execute maps it to exit code 1 rather than 2.
type launchError struct{ error }

func newLaunchError(err error) error { return &launchError{err} }
