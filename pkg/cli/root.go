// Copyright © 2025 Prabhjot Singh Sethi, All Rights reserved
// Author: Prabhjot Singh Sethi <prabhjot.sethi@gmail.com>

// Package cli wires configuration, logging, metrics and the proxy handler
// into the prediction-proxy command.
package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X ...cli.Version=<tag>".
var Version = "dev"

// overrides holds flag values that take precedence over the environment.
type overrides struct {
	listenAddr  string
	metricsAddr string
	logLevel    string
	logFormat   string
}

func newRootCommand() *cobra.Command {
	var opts overrides

	root := &cobra.Command{
		Use:   "prediction-proxy",
		Short: "CORS-enabled proxy in front of a hosted prediction API",
		Long: `prediction-proxy accepts JSON POST requests from browsers, adds the
upstream bearer token and forwards them to a fixed prediction endpoint.

Configuration is read from the environment (REPLICATE_API_TOKEN and
PREDICTION_PROXY_*); flags override the corresponding variables.
Running without a subcommand is the same as "serve".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.listenAddr, "listen", "", "proxy listen address (PREDICTION_PROXY_LISTEN_ADDR)")
	flags.StringVar(&opts.metricsAddr, "metrics-listen", "", "admin listen address for /metrics and /healthz, empty disables (PREDICTION_PROXY_METRICS_ADDR)")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (PREDICTION_PROXY_LOG_LEVEL)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format, json or console (PREDICTION_PROXY_LOG_FORMAT)")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(newServeCommand(&opts), newVersionCommand())
	return root
}

// Execute runs the command line against os.Args.
func Execute(ctx context.Context) error {
	return newRootCommand().ExecuteContext(ctx)
}
