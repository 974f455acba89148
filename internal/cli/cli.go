// ============================================================================
// lazyApply CLI
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: cobra command tree of the lazyapply binary.
//
// Command Structure:
//   lazyapply                      # Root command
//   ├── run                        # Start the daemon (queue + control service)
//   ├── import -f jobs.yaml        # Upsert job records into the store
//   │   └── --enqueue              # ...and queue them on the running daemon
//   ├── jobs [--status S]          # List job records from the store
//   ├── enqueue REF...             # Queue job refs on the daemon
//   ├── pause | resume | clear     # Queue control
//   ├── cancel                     # Abort everything, shut the browser
//   ├── auth-done                  # Continue after signing in
//   └── status                     # Queue state and auth interrupt
//
// Persistent flags:
//   --config, -c   config file (default: ./lazyapply.yaml or ~/.lazyapply/)
//   --addr         control service address, overrides server.addr
//
// ============================================================================

package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/sumanthpn07/lazyApply/internal/config"
	"github.com/sumanthpn07/lazyApply/internal/server"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=...".
var Version = "dev"

const callTimeout = 10 * time.Second

type rootOptions struct {
	configFile string
	addr       string
}

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "lazyapply",
		Short: "lazyApply: a rate-limited job application submitter",
		Long: `lazyApply submits queued job applications through a real browser:
- one submission at a time, per-target rate ceilings
- pauses for manual sign-in when a login wall appears
- parks applications that need answers it does not have`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&opts.addr, "addr", "", "control service address (default from server.addr)")

	rootCmd.AddCommand(buildRunCommand(opts))
	rootCmd.AddCommand(buildImportCommand(opts))
	rootCmd.AddCommand(buildJobsCommand(opts))
	rootCmd.AddCommand(buildControlCommands(opts)...)

	return rootCmd
}

// serverAddr resolves the control address: flag, then configuration.
func (o *rootOptions) serverAddr() (string, error) {
	if o.addr != "" {
		return o.addr, nil
	}
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return "", err
	}
	return cfg.Server.Addr, nil
}

// withClient dials the daemon and runs fn with a bounded context.
func (o *rootOptions) withClient(ctx context.Context, fn func(context.Context, *server.Client) error) error {
	addr, err := o.serverAddr()
	if err != nil {
		return err
	}
	c, err := server.Dial(addr)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	return fn(ctx, c)
}
