// Package cmd implements the birse CLI commands.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/biggo-labs/birse-go/internal/app"
	"github.com/biggo-labs/birse-go/internal/config"
	"github.com/biggo-labs/birse-go/internal/logger"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "birse",
		Short: "CLI client for BIRSE image search",
		Long: "birse uploads product images and runs visual searches against\n" +
			"the BIRSE API and the BigGo Shopify plugin API.",
		SilenceUsage: true,
	}
)

// Execute runs the root command.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().
		StringVar(&cfgFile, "config", "", "config file (default $HOME/.birse.yaml)")
	rootCmd.PersistentFlags().
		String("output", "table", "output format (table, json)")
	rootCmd.PersistentFlags().
		String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().
		String("base-url", "", "BIRSE API base URL")

	cobra.CheckErr(viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output")))
	cobra.CheckErr(viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level")))
	cobra.CheckErr(viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base-url")))

	rootCmd.AddCommand(shopCmd())
	rootCmd.AddCommand(apiCmd())
	rootCmd.AddCommand(versionCmd())
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".birse")
	}

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// withApp loads configuration, builds the runtime and runs fn with a context
// cancelled on SIGINT/SIGTERM.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.Init(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Close() }()
	log.DebugObj("config loaded", "config", cfg.Redacted())

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.WithRestyLogger(log.Sugar()))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.ErrorObj("runtime close failed", "error", err.Error())
		}
	}()

	return fn(ctx, a)
}

func jsonOutput() bool {
	return viper.GetString("output") == "json"
}
