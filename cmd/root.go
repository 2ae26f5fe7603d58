// Package cmd provides the root command and CLI setup for zipmirror.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"zipmirror.dev/pkg/zipmirror/internal/adapter"
	"zipmirror.dev/pkg/zipmirror/internal/controller"
	"zipmirror.dev/pkg/zipmirror/internal/domain"
)

var fsAdapter adapter.FileSystemAdapter
var archive adapter.ArchiveAdapter
var passwordStore adapter.PasswordStore
var clock clockwork.Clock
var workflow domain.Workflow
var ui controller.UI

// verboseFlag switches the log file to debug level.
var verboseFlag bool

// logFileFlag overrides log.filename.
var logFileFlag string

func init() {
	configureRootFlags(rootCmd)

	// Initialize shared dependencies.
	ui = controller.NewUI(rootCmd, controller.IsTTY(os.Stdout))
	fsAdapter = adapter.NewLocalFileSystemAdapter()
	archive = adapter.NewLocal7zAdapter(
		viper.GetString(archiveExecutableKey),
		viper.GetInt(archiveLevelKey),
		viper.GetDuration(archiveTimeoutKey),
	)
	passwordStore = adapter.NewKeyringPasswordStore(keyringService)
	clock = clockwork.NewRealClock()
	workflow = domain.NewWorkflow(fsAdapter, archive, ui, clock)
}

const rootLongDescription = `Zipmirror mirrors a directory tree into a destination where every file is
stored in its own password protected 7-Zip archive under a generated name.

The mapping between original and generated names is kept in an encrypted
___INDEX___ archive inside the destination, so the mirror can be uploaded to
untrusted storage and updated incrementally later on.`

const syncLongDescription = `Mirror SOURCE into DESTINATION.

Only files that changed since the previous run are archived again. Archives
of deleted files are removed, and entries in the destination that the index
does not know are deleted. With --dry-run nothing is written.

SOURCE and DESTINATION default to the source and destination config keys.`

const listLongDescription = `List the files recorded in the latest index of DESTINATION together with
the archive each one is stored in.`

// rootCmd represents the base command when called without any subcommands.
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "zipmirror",
		Short:         "Incremental encrypted directory mirror",
		Long:          rootLongDescription,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			configureLogger(viper.GetString(logFilenameKey), viper.GetBool(logVerboseKey))

			if configErr != nil {
				slog.Error("Failed to read config file", "path", viper.ConfigFileUsed(), "error", configErr)
			}

			return configErr
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
}

func configureRootFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVarP(&verboseFlag, verboseFlagName, "v", viper.GetBool(logVerboseKey), "write debug output to the log file")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(verboseFlagName), logVerboseKey)

	cmd.PersistentFlags().StringVar(&logFileFlag, logFileFlagName, viper.GetString(logFilenameKey), "log file path")
	bindFlagToConfig(cmd.PersistentFlags().Lookup(logFileFlagName), logFilenameKey)
}

// bindFlagToConfig wires a Cobra flag to a Viper key so config/env values feed the flag.
func bindFlagToConfig(flag *pflag.Flag, key string) {
	if flag == nil {
		cobra.CheckErr(fmt.Errorf("flag for config key %q not found", key))
		return
	}

	cobra.CheckErr(viper.BindPFlag(key, flag))
}

// exitCodeError carries the exit code of a run that completed with findings.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// exitCode maps the error returned by a command to the process exit code and
// prints it unless the command already reported it.
func exitCode(cmd *cobra.Command, err error) int {
	if err == nil {
		return domain.ExitOK
	}

	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}

	var ue *domain.UserError
	if errors.As(err, &ue) {
		cmd.PrintErrln("Error:", ue.Message)
	} else {
		cmd.PrintErrln("Error:", err)
	}

	return domain.ExitError
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if code := exitCode(rootCmd, err); code != domain.ExitOK {
		os.Exit(code)
	}
}

// expandPath resolves ~ and makes path absolute. Empty stays empty.
func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand %s: %w", path, err)
	}

	return filepath.Abs(expanded)
}
