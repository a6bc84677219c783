package commands

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Display version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeResult(os.Stdout, viper.GetString("output"), &cloudstack.Result{
				Payload: map[string]any{
					"version": version,
					"commit":  commit,
					"built":   date,
				},
			})
		},
	}
}
