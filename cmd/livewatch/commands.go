package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newStatusCmd(opts *options) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "status <account>",
		Short: "Report whether an account is live",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b backend) (any, error) {
				return b.Status(ctx, args[0], refresh)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ignore a fresh cached result")
	return cmd
}

func newCaptureCmd(opts *options) *cobra.Command {
	var async bool
	cmd := &cobra.Command{
		Use:   "capture <account>",
		Short: "Record the live stream and extract its audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, opts, func(ctx context.Context, b backend) (any, error) {
				return b.Capture(ctx, args[0], async)
			})
		},
	}
	cmd.Flags().BoolVar(&async, "async", false, "return as soon as the capture is queued")
	return cmd
}

func newLogsCmd(opts *options) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs <account>",
		Short: "Print recent chat events for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return fmt.Errorf("--limit must be >= 0")
			}
			return withBackend(cmd, opts, func(ctx context.Context, b backend) (any, error) {
				return b.Logs(ctx, args[0], limit)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "most recent entries to show (0 = all)")
	return cmd
}

// withBackend opens a backend, runs op and prints its result as indented
// JSON. The result is printed even when op fails.
func withBackend(cmd *cobra.Command, opts *options, op func(context.Context, backend) (any, error)) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	b, err := openBackend(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer b.Close()

	res, opErr := op(ctx, b)
	if err := printJSON(cmd.OutOrStdout(), res); err != nil {
		return err
	}
	return opErr
}

func printJSON(w io.Writer, v any) error {
	if raw, ok := v.(json.RawMessage); ok {
		if len(raw) == 0 {
			return nil
		}
		var buf bytes.Buffer
		if err := json.Indent(&buf, raw, "", "  "); err != nil {
			return err
		}
		buf.WriteByte('\n')
		_, err := w.Write(buf.Bytes())
		return err
	}
	if v == nil {
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
