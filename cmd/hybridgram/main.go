package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/amarnathcjd/hybridgram/app"
	"github.com/amarnathcjd/hybridgram/config"
)

const envPrefix = "HYBRIDGRAM"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "hybridgram",
		Short:        "Route and deliver Telegram Bot API updates",
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().String("config", "", "Config file path (optional).")
	cmd.PersistentFlags().StringArray("env-file", nil, "Extra .env files to load (default ./.env).")
	cmd.PersistentFlags().String("log-level", "", "Override the configured log level.")
	_ = viper.BindPFlag("config", cmd.PersistentFlags().Lookup("config"))
	_ = viper.BindPFlag("log_level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newPollCmd())
	cmd.AddCommand(newWebhookCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newRoutesCmd())
	cmd.AddCommand(newMeCmd())
	cmd.AddCommand(newKeyringCmd())

	return cmd
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFiles, _ := cmd.Flags().GetStringArray("env-file")
	cfg, err := config.Load(strings.TrimSpace(viper.GetString("config")), envFiles...)
	if err != nil {
		return nil, err
	}
	if lvl := strings.TrimSpace(viper.GetString("log_level")); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

// loadApp builds the app and registers the bundled routes.
func loadApp(cmd *cobra.Command, opts app.Options) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	a, err := app.New(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := registerRoutes(a.Router(), a.Logger()); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// ignoreCanceled turns the normal shutdown error into nil.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run every configured bot: pollers, webhook servers and the send worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd)
			defer stop()
			if err := a.SetupWebhooks(ctx); err != nil {
				return err
			}
			return ignoreCanceled(a.Run(ctx))
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Deliver queued outgoing methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, app.Options{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signalContext(cmd)
			defer stop()
			return ignoreCanceled(a.RunWorker(ctx))
		},
	}
}
