package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/JamesWemyss/psyclone/client"
)

type remoteOptions struct {
	addr    string
	timeout time.Duration
}

func (r *remoteOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.addr, "addr", client.DefaultAddress, "Daemon gRPC address or Unix socket path")
	cmd.Flags().DurationVar(&r.timeout, "timeout", 60*time.Second, "Request timeout")
}

// call connects to the daemon, runs fn and prints its result as JSON.
func (r *remoteOptions) call(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, c *client.Client) (any, error)) error {
	logger, err := opts.logger()
	if err != nil {
		return err
	}
	c, err := client.Connect(r.addr)
	if err != nil {
		logger.Error().Err(err).Str("address", r.addr).Msg("Failed to connect to daemon")
		return fmt.Errorf("cannot connect to psyclone at %s: %w", r.addr, err)
	}
	defer c.Close() //nolint:errcheck // No remedy for grpc client close errors

	ctx, cancel := context.WithTimeout(cmd.Context(), r.timeout)
	defer cancel()

	out, err := fn(ctx, c)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func messageArg(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func newMessageCmd(opts *rootOptions, use, short string, fn func(ctx context.Context, c *client.Client, msg string) (any, error)) *cobra.Command {
	remote := &remoteOptions{}
	cmd := &cobra.Command{
		Use:   use + " <message>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := messageArg(args)
			if msg == "" {
				return fmt.Errorf("message is required")
			}
			return remote.call(cmd, opts, func(ctx context.Context, c *client.Client) (any, error) {
				return fn(ctx, c, msg)
			})
		},
	}
	remote.bind(cmd)
	return cmd
}

func newAskCmd(opts *rootOptions) *cobra.Command {
	return newMessageCmd(opts, "ask", "Save a memory or search past ones", func(ctx context.Context, c *client.Client, msg string) (any, error) {
		return c.Ask(ctx, msg)
	})
}

func newChatCmd(opts *rootOptions) *cobra.Command {
	return newMessageCmd(opts, "chat", "Run one goal or task command", func(ctx context.Context, c *client.Client, msg string) (any, error) {
		return c.Chat(ctx, msg)
	})
}

func newAssistantCmd(opts *rootOptions) *cobra.Command {
	return newMessageCmd(opts, "assistant", "Run one tool-calling assistant turn", func(ctx context.Context, c *client.Client, msg string) (any, error) {
		return c.Assistant(ctx, msg)
	})
}

func newListsCmd(opts *rootOptions) *cobra.Command {
	remote := &remoteOptions{}
	cmd := &cobra.Command{
		Use:   "lists",
		Short: "Show goals and ranked task lists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return remote.call(cmd, opts, func(ctx context.Context, c *client.Client) (any, error) {
				return c.Lists(ctx)
			})
		},
	}
	remote.bind(cmd)
	return cmd
}
