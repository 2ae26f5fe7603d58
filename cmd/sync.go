package cmd

import (
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"zipmirror.dev/pkg/zipmirror/internal/domain"
)

var dryRunFlag bool
var parallelFlag int
var excludePatterns []string
var autosaveIntervalFlag string
var sourceFlag string
var destinationFlag string
var passwordEnvFlag string
var keyringFlag bool

// syncCmd represents the sync command.
var syncCmd = newSyncCmd()

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync [source destination]",
		Short: "Mirror a directory into an encrypted destination",
		Long:  syncLongDescription,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return &domain.UserError{Message: "sync takes either no arguments or SOURCE and DESTINATION"}
			}

			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := viper.GetString(sourceConfigKey), viper.GetString(destinationConfigKey)
			if len(args) == 2 {
				src, dst = args[0], args[1]
			}

			src, err := expandPath(src)
			if err != nil {
				return err
			}

			dst, err = expandPath(dst)
			if err != nil {
				return err
			}

			if src == "" || dst == "" {
				return &domain.UserError{Message: "both a source and a destination are required"}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hasIndex, err := workflow.HasIndex(dst)
			if err != nil {
				return err
			}

			password, err := resolvePassword(ctx, dst, !hasIndex)
			if err != nil {
				return err
			}

			outcome, err := workflow.Sync(ctx, domain.SyncArgs{
				Source:           src,
				Destination:      dst,
				Password:         password,
				DryRun:           viper.GetBool(dryRunConfigKey),
				Parallel:         viper.GetInt(parallelConfigKey),
				Exclude:          viper.GetStringSlice(excludeConfigKey),
				AutosaveInterval: viper.GetDuration(autosaveIntervalConfigKey),
				Alphabet:         viper.GetString(alphabetConfigKey),
			})
			if err != nil {
				if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
					cmd.PrintErrln("Interrupted.")
					return &exitCodeError{code: domain.ExitError}
				}

				return err
			}

			if outcome.ExitCode != domain.ExitOK {
				return &exitCodeError{code: outcome.ExitCode}
			}

			return nil
		},
	}

	configureSyncFlags(cmd)

	return cmd
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func configureSyncFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&sourceFlag, sourceFlagName, "s", viper.GetString(sourceConfigKey), "directory to mirror")
	bindFlagToConfig(cmd.Flags().Lookup(sourceFlagName), sourceConfigKey)

	cmd.Flags().StringVarP(&destinationFlag, destinationFlagName, "d", viper.GetString(destinationConfigKey), "directory receiving the archives")
	bindFlagToConfig(cmd.Flags().Lookup(destinationFlagName), destinationConfigKey)

	cmd.Flags().BoolVarP(&dryRunFlag, dryRunFlagName, "n", viper.GetBool(dryRunConfigKey), "report what would change without writing anything")
	bindFlagToConfig(cmd.Flags().Lookup(dryRunFlagName), dryRunConfigKey)

	cmd.Flags().IntVarP(&parallelFlag, parallelFlagName, "p", viper.GetInt(parallelConfigKey), "number of files archived at once within a directory")
	bindFlagToConfig(cmd.Flags().Lookup(parallelFlagName), parallelConfigKey)

	cmd.Flags().StringArrayVarP(&excludePatterns, excludeFlagName, "x", viper.GetStringSlice(excludeConfigKey), "exclude source paths matching regex (can be repeated)")
	bindFlagToConfig(cmd.Flags().Lookup(excludeFlagName), excludeConfigKey)

	cmd.Flags().StringVar(&autosaveIntervalFlag, autosaveIntervalFlagName, viper.GetString(autosaveIntervalConfigKey), "minimum time between two index commits during a run (0 disables)")
	bindFlagToConfig(cmd.Flags().Lookup(autosaveIntervalFlagName), autosaveIntervalConfigKey)

	cmd.Flags().StringVar(&passwordEnvFlag, passwordEnvFlagName, viper.GetString(passwordEnvConfigKey), "environment variable holding the password")
	bindFlagToConfig(cmd.Flags().Lookup(passwordEnvFlagName), passwordEnvConfigKey)

	cmd.Flags().BoolVar(&keyringFlag, keyringFlagName, viper.GetBool(passwordKeyringConfigKey), "read the password from the OS keyring")
	bindFlagToConfig(cmd.Flags().Lookup(keyringFlagName), passwordKeyringConfigKey)
}
