package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"aitelegrambot/internal/bot"
	"aitelegrambot/internal/config"
	"aitelegrambot/internal/httpapi"
	"aitelegrambot/internal/logging"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
	httpAddr   string
	ollamaHost string
	model      string
	streaming  string
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "aitelegrambot",
		Short:         "Telegram bot that answers with a local Ollama model",
		Long:          "Runs a Telegram bot that forwards /infer prompts to an Ollama server and lets one admin manage models.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := opts.resolve(cmd)
			if err != nil {
				return err
			}
			return runBot(cmd.Context(), cfg, log)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Config file (.yaml, .yml, .toml or .json); defaults to $AITELEGRAMBOT_CONFIG or ~/.config/aitelegrambot/config.*")
	pf.StringVar(&opts.envFile, "env-file", "", "Env file to load before reading the environment (default .env, optional)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: off|error|warn|info|debug (overrides LOG_LEVEL)")
	pf.StringVar(&opts.logFormat, "log-format", "", "Log format: console|json (overrides LOG_FORMAT)")
	pf.StringVar(&opts.ollamaHost, "ollama-host", "", "Ollama endpoint, host:port or URL (overrides OLLAMA_HOST)")
	root.Flags().StringVar(&opts.httpAddr, "http-addr", "", "Ops HTTP listen address, e.g. :9090; empty disables it (overrides HTTP_ADDR)")
	root.Flags().StringVar(&opts.model, "model", "", "Initial active model (overrides DEFAULT_MODEL)")
	root.Flags().StringVar(&opts.streaming, "streaming", "", "enable or disable streamed answers (overrides ENABLE_STREAMING_RESPONSE)")

	root.AddCommand(newModelsCmd(opts), newVersionCmd())
	return root
}

// resolve layers defaults, config file, env file, environment and flags, then
// validates and builds the logger.
func (o *options) resolve(cmd *cobra.Command) (config.Config, zerolog.Logger, error) {
	cfg, path, envErr := config.Resolve(o.configPath, o.envFile)
	if envErr != nil && !config.IsConfigError(envErr) {
		return cfg, zerolog.Nop(), envErr
	}
	if err := o.apply(cmd, &cfg); err != nil {
		return cfg, zerolog.Nop(), err
	}
	if err := config.Combine(envErr, cfg.Validate()); err != nil {
		return cfg, zerolog.Nop(), err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return cfg, zerolog.Nop(), err
	}
	if path != "" {
		log.Debug().Str("path", path).Msg("config file loaded")
	}
	return cfg, log, nil
}

// apply copies flags the user set onto cfg.
func (o *options) apply(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = o.logFormat
	}
	if flags.Changed("ollama-host") {
		cfg.OllamaHost = o.ollamaHost
	}
	if flags.Changed("http-addr") {
		cfg.HTTPAddr = o.httpAddr
	}
	if flags.Changed("model") {
		cfg.DefaultModel = o.model
	}
	if flags.Changed("streaming") {
		on, err := config.ParseSwitch(o.streaming)
		if err != nil {
			return fmt.Errorf("--streaming: %w", err)
		}
		cfg.Streaming = on
	}
	return nil
}

func runBot(parent context.Context, cfg config.Config, log zerolog.Logger) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpapi.SetRequestLogLevel(requestLogLevel(cfg.LogLevel))
	b, err := bot.New(cfg, bot.Options{Logger: log, Version: version})
	if err != nil {
		return err
	}
	return b.Run(ctx)
}

// requestLogLevel logs ops HTTP access only when the process runs at debug.
func requestLogLevel(level string) string {
	if lvl, err := logging.ParseLevel(level); err == nil && lvl <= zerolog.DebugLevel {
		return "info"
	}
	return "error"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
