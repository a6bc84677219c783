package commands

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show the resolved configuration",
		Long: `Show the effective configuration for the selected region after merging
environment variables, ini files, and CLOUDSTACK_OVERRIDES. The secret is
redacted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := ResolveSettings(viper.GetString("region"), viper.GetString("config"))
			if err != nil {
				return err
			}

			redacted := settings.Redacted()

			payload := map[string]any{
				"region":   redacted.Region,
				"endpoint": redacted.Endpoint,
				"key":      redacted.Key,
				"secret":   redacted.Secret,
				"method":   redacted.Method,
				"timeout":  redacted.Timeout.String(),
				"retry":    float64(redacted.Retry),
			}

			if redacted.Trace {
				payload["trace"] = true
			}

			if redacted.TraceNATS != "" {
				payload["trace_nats"] = redacted.TraceNATS
			}

			if redacted.DangerousNoTLSVerify {
				payload["dangerous_no_tls_verify"] = true
			}

			for _, name := range redacted.SortedHeaderNames() {
				payload["header_"+name] = redacted.Headers[name]
			}

			return writeResult(os.Stdout, viper.GetString("output"),
				&cloudstack.Result{Payload: payload})
		},
	}
}
