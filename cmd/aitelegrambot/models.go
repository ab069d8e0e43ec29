package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"aitelegrambot/internal/config"
	"aitelegrambot/internal/ollama"
)

// newModelsCmd manages models on the Ollama server from the shell, without
// Telegram. Only the Ollama host is needed from the configuration.
func newModelsCmd(opts *options) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List, pull or remove models on the Ollama server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("models requires a subcommand: list|pull|rm")
		},
	}
	cmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Abort after this long (0 waits until done)")

	client := func(cmd *cobra.Command) (*ollama.Client, context.Context, context.CancelFunc, error) {
		cfg, _, err := config.Resolve(opts.configPath, opts.envFile)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := opts.apply(cmd, &cfg); err != nil {
			return nil, nil, nil, err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		cancel := context.CancelFunc(func() {})
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
		}
		return ollama.NewClient(ollama.Config{Host: cfg.OllamaHost}), ctx, cancel, nil
	}

	list := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed models",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := client(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			names, err := c.ListModels(ctx)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no models installed")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(names, "\n"))
			return nil
		},
	}
	pull := &cobra.Command{
		Use:     "pull <model>",
		Short:   "Download a model",
		Example: "  aitelegrambot models pull llama3",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := client(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			fmt.Fprintf(cmd.OutOrStdout(), "Pulling %s!\n", args[0])
			if err := c.PullModel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Done pulling %s!\n", args[0])
			return nil
		},
	}
	rm := &cobra.Command{
		Use:     "rm <model>",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a model",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, ctx, cancel, err := client(cmd)
			if err != nil {
				return err
			}
			defer cancel()
			if err := c.DeleteModel(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Done deleting %s!\n", args[0])
			return nil
		},
	}
	cmd.AddCommand(list, pull, rm)
	return cmd
}
