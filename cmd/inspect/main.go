package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	registryinspector "github.com/eznix86/registry-inspector"
	"github.com/eznix86/registry-inspector/internal/config"
	"github.com/eznix86/registry-inspector/internal/logging"
	"github.com/spf13/cobra"
)

const (
	exitHTTP    = 1
	exitTimeout = 2
	exitOther   = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(exitCode(err))
	}
}

func rootCommand() *cobra.Command {
	var (
		configDir string
		asJSON    bool
	)

	root := &cobra.Command{
		Use:   "inspect IMAGE",
		Short: "Inspect an image on a Docker Registry V2 without pulling it.",
		Long: `Inspect an image on a Docker Registry V2 without pulling it.

IMAGE is [registry/][namespace/]name[:tag]. The registry defaults to Docker Hub,
the namespace to "library" and the tag to "latest".`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configDir, cmd.Flags())
			if err != nil {
				return err
			}
			if c.Debug {
				if err := logging.SetLevel("debug"); err != nil {
					return err
				}
			}

			ref, err := registryinspector.ParseImageReference(args[0])
			if err != nil {
				return err
			}

			opts, err := c.InspectorOptions()
			if err != nil {
				return err
			}
			opts = append(opts, registryinspector.WithLogger(logging.New(nil).WithContext(cmd.Context())))

			result, err := registryinspector.NewInspector(opts...).Inspect(cmd.Context(), ref)
			if err != nil {
				return err
			}

			if asJSON {
				return renderJSON(cmd.OutOrStdout(), result)
			}
			return render(cmd.OutOrStdout(), result)
		},
	}

	flags := root.Flags()
	flags.StringVar(&configDir, "config-dir", ".", "Directory holding an optional inspector.{yaml,json}")
	flags.BoolVar(&asJSON, "json", false, "Print the result as JSON")
	flags.Int("concurrency", registryinspector.DefaultConcurrency, "Layer size probes in flight at once")
	flags.String("layer-policy", registryinspector.FailFast.String(), "What a failed layer probe does: fail-fast or degrade")
	flags.Duration("connect-timeout", registryinspector.DefaultTimeouts().Connect, "TCP connect timeout")
	flags.Duration("read-timeout", registryinspector.DefaultTimeouts().Read, "Timeout for token, tag and manifest requests")
	flags.Duration("probe-timeout", registryinspector.DefaultTimeouts().Probe, "Timeout for each layer size probe")
	flags.Int("max-attempts", 1, "Attempts for requests answered with 429 or 5xx")
	flags.StringSlice("insecure-registry", nil, "Registry host to reach over plain HTTP (repeatable)")
	flags.Bool("debug", false, "Log every registry request")

	return root
}

// exitCode maps an inspection failure to the process exit status:
// 1 for registry or token responses, 2 for timeouts, 3 for anything else.
func exitCode(err error) int {
	var (
		authErr    *registryinspector.AuthError
		httpErr    *registryinspector.HTTPError
		timeoutErr *registryinspector.TimeoutError
	)
	switch {
	case err == nil:
		return 0
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return exitTimeout
	case errors.As(err, &authErr), errors.As(err, &httpErr):
		return exitHTTP
	default:
		return exitOther
	}
}
