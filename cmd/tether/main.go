package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot(command{out: os.Stdout, errOut: os.Stderr})
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot(c command) *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	root.AddCommand(
		createRunCommand(c, globalFlags),
		createURLCommand(c),
		createStateCommand(c),
		createProbeCommand(c),
		createInitCommand(c),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "tether",
		Short: "Run a desktop shell's local backend server",
		Long: `Tether launches the local backend server of a desktop shell, waits until
it accepts connections, tells the UI where it lives and stops it again
when the shell exits.

Examples:
  tether init --type=python              # write tether.toml
  tether run --config=tether.toml        # launch and supervise the backend
  tether url                             # ask a running host for the backend URL`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	return root
}

func createRunCommand(c command, globalFlags *GlobalFlags) *cobra.Command {
	runFlags := &RunFlags{}
	cmd := &cobra.Command{
		Use:   "run [tether.toml]",
		Short: "Launch the backend and supervise it until interrupted",
		Long: `Launch the configured backend, wait for it to serve and expose its URL on
the control surface. SIGINT or SIGTERM stops the backend and exits.

Examples:
  tether run
  tether run tether.toml
  TETHER_BACKEND_PORT=8000 tether run --config=tether.toml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) > 0 {
				runFlags.ConfigPath = args[0]
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return c.Run(ctx, *runFlags)
		},
	}
	cmd.Flags().BoolVar(&runFlags.NonBlocking, "non-blocking", false, "stop the backend as soon as it is ready")
	return cmd
}

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "control surface URL (default http://127.0.0.1:5174/api)")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "request timeout")
}

func createURLCommand(c command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "url",
		Short: "Print the backend URL once it is ready",
		Long: `Ask a running tether host for the backend URL. While the backend is still
starting the request is retried until --wait elapses.

Examples:
  tether url
  tether url --wait=30s --api-url=http://127.0.0.1:5174/api`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.URL(cmd.Context(), *flags)
		},
	}
	addAPIFlags(cmd, flags)
	cmd.Flags().DurationVar(&flags.Wait, "wait", 10*time.Second, "keep retrying while the backend starts")
	return cmd
}

func createStateCommand(c command) *cobra.Command {
	flags := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Show the supervised backend's state as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.State(cmd.Context(), *flags)
		},
	}
	addAPIFlags(cmd, flags)
	return cmd
}

func createProbeCommand(c command) *cobra.Command {
	flags := &ProbeFlags{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether something serves on an address",
		Long: `Run a readiness probe against an address until it succeeds or --timeout
elapses. Useful to debug readiness settings without launching anything.

Examples:
  tether probe --port=5173
  tether probe --kind=http --path=/health --port=8000 --timeout=10s`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Probe(cmd.Context(), *flags)
		},
	}
	cmd.Flags().StringVar(&flags.Scheme, "scheme", "http", "URL scheme")
	cmd.Flags().StringVar(&flags.Host, "host", "127.0.0.1", "host to probe")
	cmd.Flags().IntVar(&flags.Port, "port", 5173, "port to probe")
	cmd.Flags().StringVar(&flags.Kind, "kind", "tcp", "probe kind: tcp, http or command")
	cmd.Flags().StringVar(&flags.Path, "path", "/", "health path for http probes")
	cmd.Flags().StringVar(&flags.Command, "command", "", "command for command probes")
	cmd.Flags().BoolVar(&flags.Insecure, "insecure", false, "skip TLS verification for https")
	cmd.Flags().DurationVar(&flags.Timeout, "timeout", 5*time.Second, "give up after this long")
	cmd.Flags().DurationVar(&flags.Interval, "interval", 100*time.Millisecond, "delay between attempts")
	return cmd
}

func createInitCommand(c command) *cobra.Command {
	flags := &InitFlags{}
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter tether.toml",
		Long: `Generate a tether.toml for a common backend type.

Available types: python, fastapi, node, binary, simple

Examples:
  tether init --type=python
  tether init --type=node --port=3000 --output=desktop/tether.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Init(*flags)
		},
	}
	cmd.Flags().StringVar(&flags.Type, "type", "python", "backend type")
	cmd.Flags().StringVar(&flags.Name, "name", "", "backend name")
	cmd.Flags().IntVar(&flags.Port, "port", 5173, "backend port")
	cmd.Flags().StringVarP(&flags.Output, "output", "o", "tether.toml", "output file path")
	cmd.Flags().BoolVar(&flags.Force, "force", false, "overwrite existing file")
	return cmd
}
