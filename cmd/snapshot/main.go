// Package main provides a one-shot CLI that prints a shareholding view as JSON.
//
// Usage:
//
//	snapshot -stock 700 -start 2023-01-02 -end 2023-01-06 -view top
//	snapshot -stock 700 -start 2023-01-02 -end 2023-01-06 -view threshold -threshold 0.05
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ccass-tracker/internal/adapter"
	"github.com/ccass-tracker/internal/config"
	apperrors "github.com/ccass-tracker/internal/errors"
	"github.com/ccass-tracker/internal/logging"
	"github.com/ccass-tracker/internal/service"
	"github.com/ccass-tracker/internal/types"
)

func main() {
	var (
		stock     = flag.String("stock", "", "Stock code, up to 5 digits (required)")
		start     = flag.String("start", "", "Start date YYYY-MM-DD (default: today)")
		end       = flag.String("end", "", "End date YYYY-MM-DD (default: start)")
		view      = flag.String("view", "top", "View to compute: top, threshold")
		threshold = flag.Float64("threshold", 0, "Minimum percent change for the threshold view")
	)
	flag.Parse()

	if *stock == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Logs go to stderr so stdout carries only the JSON result
	logger := logging.NewLoggerWithOutput(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
		os.Stderr,
	)
	defer logger.Sync()

	startDate, endDate, err := resolveRange(*start, *end, time.Now().UTC())
	if err != nil {
		logger.WithError(err).Fatal("Invalid date range")
	}

	client, err := adapter.NewCCASSClient(&adapter.CCASSClientConfig{
		URL:       cfg.CCASS.URL,
		Timeout:   cfg.CCASS.RequestTimeout,
		UserAgent: cfg.CCASS.UserAgent,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create CCASS client")
	}

	svc, err := service.NewShareholdingService(&service.ServiceConfig{
		Client:      client,
		Workers:     cfg.CCASS.Workers,
		MaxSpanDays: cfg.CCASS.MaxSpanDays,
		TopN:        cfg.CCASS.TopN,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create shareholding service")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx = logging.WithLogger(ctx, logger)

	query := &service.ShareholdingQuery{StockCode: *stock, StartDate: startDate, EndDate: endDate}

	var result interface{}
	switch *view {
	case "top":
		result, err = svc.TopHoldings(ctx, query)
	case "threshold":
		result, err = svc.ThresholdChanges(ctx, query, *threshold)
	default:
		logger.WithField("view", *view).Fatal("Unknown view, expected top or threshold")
	}
	if err != nil {
		if apperrors.IsValidationError(err) {
			logger.WithError(err).Error("Invalid query")
			logger.Sync()
			os.Exit(2)
		}
		logger.WithError(err).Fatal("Failed to compute view")
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(result); err != nil {
		logger.WithError(err).Fatal("Failed to write result")
	}

	stats := client.GetStats()
	logger.WithFields(map[string]interface{}{
		"requests": stats.TotalRequests,
		"failed":   stats.FailedReqs,
	}).Info("Snapshot complete")
}

// resolveRange applies the defaults: start is today, end is start
func resolveRange(start, end string, now time.Time) (time.Time, time.Time, error) {
	startDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if start != "" {
		parsed, err := time.Parse(types.ISODateLayout, start)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		startDate = parsed
	}

	endDate := startDate
	if end != "" {
		parsed, err := time.Parse(types.ISODateLayout, end)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		endDate = parsed
	}

	return startDate, endDate, nil
}
