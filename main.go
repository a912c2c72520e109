package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"reviews-etl/config"
	"reviews-etl/scraper/playstore"
	"reviews-etl/services"
	"reviews-etl/storage"
	"reviews-etl/utils"
)

var rootCmd = &cobra.Command{
	Use:          "reviews-etl",
	Short:        "Batch ETL pipeline for app-store reviews: scrape, preprocess, load",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(scrapeCmd, preprocessCmd, loadCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Scrape Play Store reviews for the configured sources into the raw CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.NewLogger()
		cfg := config.Load()

		logger.Info("=== Review scraping starting ===")
		logger.Info("Config — sources: %d | reviews/source: %d | concurrency: %d | rate: %dms",
			len(cfg.Sources), cfg.ReviewsPerSource, cfg.MaxConcurrency, cfg.RateLimitMs)

		scraper := playstore.New(cfg, logger)
		raw, err := scraper.Scrape()
		if err != nil {
			return fmt.Errorf("scrape: %w", err)
		}
		if len(raw) == 0 {
			return fmt.Errorf("scrape: no reviews were collected")
		}

		writer, err := storage.NewCSVWriter(cfg.RawCSVPath)
		if err != nil {
			return fmt.Errorf("scrape: %w", err)
		}
		defer writer.Close()

		if err := writer.WriteAll(raw); err != nil {
			return fmt.Errorf("scrape: %w", err)
		}

		perSource := make(map[string]int)
		for _, r := range raw {
			perSource[r.SourceName]++
		}
		logger.Info("Raw reviews saved to %s", cfg.RawCSVPath)
		for name, count := range perSource {
			logger.Info("  %s: %d reviews", name, count)
		}
		return nil
	},
}

var preprocessCmd = &cobra.Command{
	Use:   "preprocess",
	Short: "Clean and normalize the raw CSV into the processed CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.NewLogger()
		cfg := config.Load()

		logger.Info("=== Review preprocessing starting ===")

		raw, err := storage.ReadRawReviews(cfg.RawCSVPath)
		if err != nil {
			return fmt.Errorf("preprocess: load input: %w", err)
		}

		pre := services.NewPreprocessor(cfg, logger)
		clean, err := pre.Process(raw)
		if err != nil {
			return fmt.Errorf("preprocess: %w", err)
		}

		if err := storage.WriteProcessed(cfg.ProcessedCSVPath, clean); err != nil {
			return fmt.Errorf("preprocess: save output: %w", err)
		}

		logger.Info("Processed reviews saved to %s", cfg.ProcessedCSVPath)
		pre.PrintReport()
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load the enriched final CSV into PostgreSQL (dimension + fact tables)",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := utils.NewLogger()
		cfg := config.Load()

		logger.Info("=== Review loading starting ===")

		records, err := storage.ReadFactRecords(cfg.FinalCSVPath)
		if err != nil {
			return fmt.Errorf("load: validate input: %w", err)
		}
		logger.Info("Loaded %d records from %s", len(records), cfg.FinalCSVPath)

		retry := &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		}
		loader, err := storage.NewPostgresLoader(cfg.DSN(), cfg.SourceName, retry, logger)
		if err != nil {
			return fmt.Errorf("load: connect: %w", err)
		}
		defer loader.Close()

		inserted, err := loader.Load(records)
		if err != nil {
			return fmt.Errorf("load: %w", err)
		}

		logger.Info("Load complete — %d of %d records accepted by the store", inserted, len(records))
		return nil
	},
}
