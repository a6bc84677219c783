package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cloudrift-io/cloudstack-client/cmd/cs/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "cs",
	Short: "CloudStack API CLI",
	Long: `A command-line interface for the CloudStack management API.

Any API command can be executed by name with OPTION=VALUE arguments.
Credentials are resolved from CLOUDSTACK_* environment variables and
cloudstack.ini files (current directory, $HOME/.cloudstack.ini, or
$CLOUDSTACK_CONFIG), with named regions selected via --region.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringP("region", "r", "",
		"region section of cloudstack.ini (default $CLOUDSTACK_REGION or \"cloudstack\")")
	rootCmd.PersistentFlags().String("config", "",
		"path to a cloudstack.ini file (default $CLOUDSTACK_CONFIG)")
	rootCmd.PersistentFlags().String("output", "json", "output format (json, yaml, table)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "do not display additional status messages")
	rootCmd.PersistentFlags().BoolP("trace", "t", false, "trace the HTTP requests done on stderr")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("region", rootCmd.PersistentFlags().Lookup("region"))
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("trace", rootCmd.PersistentFlags().Lookup("trace"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	// Add commands
	rootCmd.AddCommand(commands.NewRunCommand())
	rootCmd.AddCommand(commands.NewConfigCommand())
	rootCmd.AddCommand(commands.NewVersionCommand(version, commit, date))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
