package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"zipmirror.dev/pkg/zipmirror/internal/adapter"
	"zipmirror.dev/pkg/zipmirror/internal/controller"
	"zipmirror.dev/pkg/zipmirror/internal/domain"
)

var errPasswordMismatch = errors.New("passwords do not match")

// resolvePassword returns the archive password for destination. It tries the
// configured environment variable, then the keyring when enabled, then asks.
// confirm makes the prompt ask twice.
func resolvePassword(ctx context.Context, destination string, confirm bool) (string, error) {
	if name := viper.GetString(passwordEnvConfigKey); name != "" {
		if pw := os.Getenv(name); pw != "" {
			slog.Debug("Using password from environment", "variable", name)
			return pw, nil
		}
	}

	if viper.GetBool(passwordKeyringConfigKey) {
		pw, err := passwordStore.Get(destination)

		switch {
		case err == nil:
			slog.Debug("Using password from keyring", "destination", destination)
			return pw, nil
		case errors.Is(err, adapter.ErrPasswordNotFound):
			slog.Info("No password stored in keyring", "destination", destination)
		default:
			slog.Warn("Failed to read password from keyring", "error", err)
		}
	}

	return promptPassword(ctx, confirm)
}

func promptPassword(ctx context.Context, confirm bool) (string, error) {
	pw, err := ui.PromptPassword(ctx, "Password")
	if err != nil {
		return "", passwordPromptError(err)
	}

	if pw == "" {
		return "", &domain.UserError{Message: "the password must not be empty"}
	}

	if !confirm {
		return pw, nil
	}

	again, err := ui.PromptPassword(ctx, "Confirm password")
	if err != nil {
		return "", passwordPromptError(err)
	}

	if again != pw {
		return "", &domain.UserError{Message: "the passwords do not match", Err: errPasswordMismatch}
	}

	return pw, nil
}

func passwordPromptError(err error) error {
	if errors.Is(err, controller.ErrPromptCancelled) {
		return &domain.UserError{Message: "no password given", Err: err}
	}

	return fmt.Errorf("failed to read password: %w", err)
}

// destinationArg returns the destination from args or from the config.
func destinationArg(args []string) (string, error) {
	dst := viper.GetString(destinationConfigKey)
	if len(args) > 0 {
		dst = args[0]
	}

	dst, err := expandPath(dst)
	if err != nil {
		return "", err
	}

	if dst == "" {
		return "", &domain.UserError{Message: "a destination is required"}
	}

	return dst, nil
}

var passwordCmd = newPasswordCmd()

func newPasswordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Manage the password stored in the OS keyring",
		Long: `Store or remove the archive password of a destination in the operating
system keyring. Stored passwords are used when password.keyring is enabled.`,
	}

	cmd.AddCommand(newPasswordSetCmd(), newPasswordDeleteCmd())

	return cmd
}

func newPasswordSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [destination]",
		Short: "Store the password for a destination",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := destinationArg(args)
			if err != nil {
				return err
			}

			pw, err := promptPassword(cmd.Context(), true)
			if err != nil {
				return err
			}

			if err := passwordStore.Set(dst, pw); err != nil {
				return err
			}

			cmd.Println("Password stored for", dst)

			return nil
		},
	}
}

func newPasswordDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete [destination]",
		Short: "Remove the stored password of a destination",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := destinationArg(args)
			if err != nil {
				return err
			}

			err = passwordStore.Delete(dst)
			if errors.Is(err, adapter.ErrPasswordNotFound) {
				return &domain.UserError{Message: "no password stored for " + dst}
			}

			if err != nil {
				return err
			}

			cmd.Println("Password removed for", dst)

			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(passwordCmd)
}
