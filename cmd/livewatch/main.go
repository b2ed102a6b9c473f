package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"livewatch/internal/platform/config"
)

type options struct {
	server  string
	local   bool
	timeout time.Duration
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "livewatch",
		Short: "Query live status, capture streams and read chat logs",
		Long: `livewatch talks to a livewatch server, or with --local runs the same
operations in-process using the server's environment configuration.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.server, "server", config.GetEnv("LIVEWATCH_SERVER", "http://localhost:8080"), "livewatch server base URL")
	root.PersistentFlags().BoolVar(&opts.local, "local", false, "run in-process instead of calling a server")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "overall deadline (0 = none)")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging for --local")

	root.AddCommand(
		newStatusCmd(opts),
		newCaptureCmd(opts),
		newLogsCmd(opts),
	)
	return root
}

func main() {
	_ = config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
