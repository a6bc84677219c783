package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/cloudrift-io/cloudstack-client/internal/trace"
	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
	"github.com/cloudrift-io/cloudstack-client/pkg/csclient"
)

// ErrBadArgument reports a positional argument that is not OPTION=VALUE.
var ErrBadArgument = errors.New("not a correctly formatted option")

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run COMMAND [OPTION=VALUE ...]",
		Short: "Execute a CloudStack API command",
		Long: `Execute any CloudStack API command by name.

Arguments are OPTION=VALUE pairs; repeating an option collects the values
into a comma-separated list. Asynchronous commands are resolved to their
final result unless --async is given.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			return runCommand(cmd.Context(), cmdArgs)
		},
	}

	cmd.Flags().Bool("post", false, "use POST instead of GET")
	cmd.Flags().Bool("async", false, "do not wait for async result")
	cmd.Flags().Bool("fetch-list", false, "aggregate every page of a listing command")
	_ = viper.BindPFlag("post", cmd.Flags().Lookup("post"))
	_ = viper.BindPFlag("async", cmd.Flags().Lookup("async"))
	_ = viper.BindPFlag("fetch-list", cmd.Flags().Lookup("fetch-list"))

	return cmd
}

func runCommand(ctx context.Context, cmdArgs []string) error {
	command := cmdArgs[0]

	args, err := parseArguments(cmdArgs[1:])
	if err != nil {
		return err
	}

	settings, err := ResolveSettings(viper.GetString("region"), viper.GetString("config"))
	if err != nil {
		return err
	}

	if settings.Secret == "" {
		secret, err := promptSecret()
		if err != nil {
			return err
		}

		settings.Secret = secret
	}

	config := settings.ClientConfig()

	if viper.GetBool("post") {
		config.Method = "post"
	}

	if viper.GetBool("trace") {
		config.Trace = true
	}

	if settings.TraceNATS != "" {
		recorder, err := trace.NewNATSRecorder(settings.TraceNATS, "cloudstack.trace")
		if err != nil {
			return err
		}
		defer func() { _ = recorder.Close() }()

		config.Trace = true
		config.TraceRecorder = recorder
	}

	if viper.GetBool("verbose") {
		config.Debug = true
		config.Logger = newLogger()
	}

	cli, err := csclient.New(config)
	if err != nil {
		return err
	}

	var opts []cloudstack.InvokeOption

	// Commands that query job state themselves are never auto-resolved.
	if !strings.Contains(command, "Async") && !viper.GetBool("async") {
		opts = append(opts, cloudstack.FetchResult())
	}

	if viper.GetBool("fetch-list") {
		opts = append(opts, cloudstack.FetchList())
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := cli.Invoke(ctx, command, args, opts...)
	if err != nil {
		return reportInvokeError(os.Stdout, viper.GetString("output"), viper.GetBool("quiet"), result, err)
	}

	return writeResult(os.Stdout, viper.GetString("output"), result)
}

// parseArguments converts OPTION=VALUE pairs into an argument map. Values of
// a repeated option are deduplicated and comma-joined.
func parseArguments(pairs []string) (map[string]any, error) {
	collected := make(map[string][]string)

	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrBadArgument, pair)
		}

		value = strings.Trim(value, " \"'")

		seen := false

		for _, existing := range collected[key] {
			if existing == value {
				seen = true

				break
			}
		}

		if !seen {
			collected[key] = append(collected[key], value)
		}
	}

	args := make(map[string]any, len(collected))

	for key, values := range collected {
		sort.Strings(values)
		args[key] = strings.Join(values, ",")
	}

	return args, nil
}

// reportInvokeError prints remote error payloads before the error bubbles up
// as the exit status.
func reportInvokeError(w io.Writer, format string, quiet bool, result *cloudstack.Result, err error) error {
	if apiErr, ok := cloudstack.IsAPIError(err); ok {
		if !quiet {
			fmt.Fprintf(os.Stderr, "CloudStack error: %s\n", apiErr.Error())
		}

		if apiErr.Detail != nil {
			_ = writeResult(w, format,
				&cloudstack.Result{Status: apiErr.StatusCode, Payload: apiErr.Detail})
		}

		return err
	}

	jobErr := &cloudstack.JobError{}
	if errors.As(err, &jobErr) && jobErr.Result != nil {
		if !quiet {
			fmt.Fprintf(os.Stderr, "CloudStack error: %s\n", jobErr.Error())
		}

		_ = writeResult(w, format, &cloudstack.Result{Payload: jobErr.Result})

		return err
	}

	// An interrupted job poll still carries the last known job payload.
	if result != nil && result.Payload != nil {
		_ = writeResult(w, format, result)
	}

	return err
}

// promptSecret reads the API secret from the terminal when it is absent from
// the configuration.
func promptSecret() (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", cloudstack.ErrSecretRequired
	}

	fmt.Fprint(os.Stderr, "API secret: ")

	secret, err := term.ReadPassword(int(os.Stdin.Fd()))

	fmt.Fprintln(os.Stderr)

	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}

	if len(secret) == 0 {
		return "", cloudstack.ErrSecretRequired
	}

	return string(secret), nil
}
