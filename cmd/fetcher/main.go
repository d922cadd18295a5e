package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/altafino/invoice-fetcher/internal/app"
	"github.com/altafino/invoice-fetcher/internal/config"
	"github.com/altafino/invoice-fetcher/internal/logger"
	"github.com/altafino/invoice-fetcher/internal/validation"
)

var (
	cfgFile   string
	dateFrom  string
	dateTo    string
	download  bool
	zipLot    bool
	send      bool
	scheduled bool
	logLevel  string
	logFormat string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "invoice-fetcher",
	Short: "Invoice attachment fetch service",
	Long: `A service that searches a Gmail mailbox for invoice emails, downloads
PDF/JSON attachments into per-message folders, deduplicates them across runs,
and optionally zips and forwards the result by mail.`,
	RunE: run,
}

func init() {
	// Setup default logger until we load config
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// .env is optional; the forward address may live there
	_ = godotenv.Load()

	// Command line flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "config/config.yaml", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging format (text, json, dev)")

	rootCmd.Flags().StringVar(&dateFrom, "from", "", "start of the date range (YYYY-MM-DD)")
	rootCmd.Flags().StringVar(&dateTo, "to", "", "end of the date range, inclusive (YYYY-MM-DD)")
	rootCmd.Flags().BoolVar(&download, "download", false, "download attachments into the lot directory")
	rootCmd.Flags().BoolVar(&zipLot, "zip", false, "create a ZIP archive of the lot")
	rootCmd.Flags().BoolVar(&send, "send", false, "forward the ZIP archive by mail")
	rootCmd.Flags().BoolVar(&scheduled, "schedule", false, "run as a service on the configured schedule")

	// Bind flags to viper
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// Flag overrides
	if v := viper.GetString("logging.level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := viper.GetString("logging.format"); v != "" {
		cfg.Logging.Format = v
	}
	if scheduled {
		cfg.Scheduling.Enabled = true
	}

	log := logger.Setup(cfg)
	slog.SetDefault(log)

	if err := validation.ValidateConfig(cfg, send); err != nil {
		return err
	}

	application := app.New(cfg, cfgFile, log, app.RunFlags{
		Download: download,
		Zip:      zipLot,
		Send:     send,
	})

	if cfg.Scheduling.Enabled {
		if err := application.Start(); err != nil {
			return fmt.Errorf("failed to start application: %w", err)
		}
		defer application.Stop()

		// Wait for shutdown signal
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop

		log.Info("shutting down application")
		return nil
	}

	if dateFrom == "" || dateTo == "" {
		return fmt.Errorf("--from and --to are required (YYYY-MM-DD)")
	}

	return application.RunOnce(cmd.Context(), dateFrom, dateTo)
}
