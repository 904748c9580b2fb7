// Package cli builds the dbext command line: sample programs run against the
// configured engine, plus health, version and config commands.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/dbext/pkg/config"
	"github.com/nimburion/dbext/pkg/observability/logger"
	"github.com/nimburion/dbext/pkg/samples"
	"github.com/nimburion/dbext/pkg/version"
)

const metricsPrefix = "dbext_"

// CommandOptions configures the root command.
type CommandOptions struct {
	Name        string
	Description string
	ConfigPath  string
	EnvPrefix   string
}

// NewCommand creates the CLI with console, ondelete, precommit, health,
// version and config subcommands.
func NewCommand(opts CommandOptions) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "dbext"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         opts.Description,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	var printMetrics bool
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")
	flags.String("db-type", "", "database engine (memory, postgres, mysql)")
	flags.String("db-url", "", "database connection URL")
	flags.Int("max-retries", 0, "retries for transactions failing with a retryable error")
	flags.Duration("timeout", 0, "timeout for a whole transaction, retries included")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("log-format", "", "log format (json, text)")
	flags.BoolVar(&printMetrics, "print-metrics", false, "print transaction metrics after the command")

	loadConfig := func(flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(cfgPath, opts.EnvPrefix, flags)
	}

	// run opens the engine, runs fn and releases everything afterwards.
	run := func(cmd *cobra.Command, fn func(ctx context.Context, rt *Runtime, out io.Writer) error) error {
		cfg, log, err := loadConfig(cmd.Flags())
		if err != nil {
			return err
		}
		defer syncLogger(log)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		rt, err := OpenRuntime(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := rt.Close(context.Background()); cerr != nil {
				log.Warn("failed to close runtime", "error", cerr)
			}
		}()

		out := cmd.OutOrStdout()
		if err := fn(ctx, rt, out); err != nil {
			return err
		}
		if printMetrics {
			return rt.Metrics().WriteText(out, metricsPrefix)
		}
		return nil
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "console [name]",
		Short: "Find or create a person by name and print its object id",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return run(cmd, func(ctx context.Context, rt *Runtime, out io.Writer) error {
				return samples.Console(ctx, rt.Transactor, name, out)
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "ondelete",
		Short: "Create and delete a person that announces its own deletion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, rt *Runtime, out io.Writer) error {
				return samples.OnDelete(ctx, rt.Transactor, out)
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "precommit",
		Short: "Report inserted and updated people from a pre-commit hook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, rt *Runtime, out io.Writer) error {
				return samples.PreCommitHooks(ctx, rt.Transactor, out, rt.Logger)
			})
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "health",
		Short: "Check the configured engine and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, rt *Runtime, out io.Writer) error {
				result := rt.Health().Check(ctx)
				data, err := json.MarshalIndent(result, "", "  ")
				if err != nil {
					return fmt.Errorf("marshal health result: %w", err)
				}
				if _, err := fmt.Fprintln(out, string(data)); err != nil {
					return err
				}
				if !result.IsHealthy() {
					return fmt.Errorf("engine is %s", result.Status)
				}
				return nil
			})
		},
	})

	// version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Current(opts.Name)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Service:    %s\n", info.Service)
			fmt.Fprintf(out, "Version:    %s\n", info.Version)
			fmt.Fprintf(out, "Commit:     %s\n", info.Commit)
			fmt.Fprintf(out, "Build Time: %s\n", info.BuildTime)
			fmt.Fprintf(out, "Go Version: %s\n", info.GoVersion)
		},
	})

	// config command
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management commands",
	}

	configCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.NewViperLoader(cfgPath, opts.EnvPrefix).WithFlags(cmd.Flags()).Load(); err != nil {
				return fmt.Errorf("configuration validation failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
			return nil
		},
	})

	var showSecrets bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.NewViperLoader(cfgPath, opts.EnvPrefix).WithFlags(cmd.Flags()).AllSettings()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if !showSecrets {
				settings = redactSettings(settings)
			}
			formatted, err := formatSettings(settings)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), formatted)
			return nil
		},
	}
	showCmd.Flags().BoolVar(&showSecrets, "show-secrets", false, "show secret values")
	configCmd.AddCommand(showCmd)

	rootCmd.AddCommand(configCmd)

	return rootCmd
}

// LoadConfigAndLogger loads configuration with flags > ENV > file > defaults
// precedence and builds the zap logger it describes.
func LoadConfigAndLogger(cfgPath, envPrefix string, flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewViperLoader(cfgPath, envPrefix).WithFlags(flags).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Observability.LogLevel),
		Format: logger.LogFormat(cfg.Observability.LogFormat),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}

	logConfigIfDebug(log, cfg)
	return cfg, log, nil
}

// Execute runs the command and exits with appropriate code.
func Execute(cmd *cobra.Command) {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func formatSettings(settings map[string]any) (string, error) {
	if settings == nil {
		return "{}\n", nil
	}
	data, err := yaml.Marshal(normalizeSettings(settings))
	if err != nil {
		return "", fmt.Errorf("marshal config: %w", err)
	}
	return string(data), nil
}

// normalizeSettings renders durations the way they are written in a config file.
func normalizeSettings(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for key, value := range settings {
		switch v := value.(type) {
		case map[string]any:
			out[key] = normalizeSettings(v)
		case time.Duration:
			out[key] = v.String()
		default:
			out[key] = value
		}
	}
	return out
}

var secretSettings = map[string][]string{
	"database": {"url"},
}

func redactSettings(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for key, value := range settings {
		out[key] = value
	}
	for section, keys := range secretSettings {
		values, ok := out[section].(map[string]any)
		if !ok {
			continue
		}
		redacted := make(map[string]any, len(values))
		for key, value := range values {
			redacted[key] = value
		}
		for _, key := range keys {
			if s, ok := redacted[key].(string); ok && strings.TrimSpace(s) != "" {
				redacted[key] = "***"
			}
		}
		out[section] = redacted
	}
	return out
}

func logConfigIfDebug(log logger.Logger, cfg *config.Config) {
	if log == nil || cfg == nil {
		return
	}

	if !strings.EqualFold(cfg.Observability.LogLevel, string(logger.DebugLevel)) {
		return
	}

	log.Debug("effective configuration",
		"db_type", cfg.Database.Type,
		"max_retries", cfg.Transactions.MaxRetries,
		"tx_timeout", cfg.Transactions.Timeout,
		"tracing_enabled", cfg.Observability.TracingEnabled,
	)
}

func syncLogger(log logger.Logger) {
	if s, ok := log.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}
