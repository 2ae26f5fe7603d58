package cmd

import (
	"github.com/spf13/cobra"

	"zipmirror.dev/pkg/zipmirror/internal/domain"
)

var listYAMLFlag bool

// listCmd represents the list command.
var listCmd = newListCmd()

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list [destination]",
		Short: "List the files stored in a mirror",
		Long:  listLongDescription,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dst, err := destinationArg(args)
			if err != nil {
				return err
			}

			password, err := resolvePassword(cmd.Context(), dst, false)
			if err != nil {
				return err
			}

			yaml, err := cmd.Flags().GetBool(yamlFlagName)
			if err != nil {
				return err
			}

			return workflow.List(cmd.Context(), domain.ListArgs{
				Destination: dst,
				Password:    password,
				YAML:        yaml,
			})
		},
	}

	cmd.Flags().BoolVar(&listYAMLFlag, yamlFlagName, false, "print the listing as YAML")

	return cmd
}

func init() {
	rootCmd.AddCommand(listCmd)
}
