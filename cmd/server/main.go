// Package main provides the API server entry point for the CCASS shareholding tracker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ccass-tracker/internal/adapter"
	"github.com/ccass-tracker/internal/api"
	"github.com/ccass-tracker/internal/config"
	"github.com/ccass-tracker/internal/logging"
	"github.com/ccass-tracker/internal/ratelimit"
	"github.com/ccass-tracker/internal/service"
	"github.com/ccass-tracker/internal/storage"
)

func main() {
	fmt.Println("CCASS Shareholding API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	defer logger.Sync()

	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	health := &api.HealthSources{Monitor: service.NewPerformanceMonitor()}

	// Outbound request budget shared across replicas (optional)
	var pacer adapter.RequestPacer
	if cfg.Redis.Enabled {
		redisConn, err := storage.NewRedisConn(&cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisConn.Close()

		budget, err := ratelimit.NewRequestBudget(&ratelimit.RequestBudgetConfig{
			Redis:             redisConn.Client(),
			RequestsPerWindow: cfg.Budget.RequestsPerWindow,
			WindowSize:        cfg.Budget.Window,
			MaxWait:           cfg.Budget.MaxWait,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create request budget")
		}

		pacer = budget
		health.Budget = budget

		logger.WithFields(map[string]interface{}{
			"redis":    cfg.Redis.RedisAddr(),
			"requests": budget.GetBudget(),
			"window":   budget.GetWindowSize().String(),
			"max_wait": budget.GetMaxWait().String(),
		}).Info("Outbound request budget enabled")
	}

	client, err := adapter.NewCCASSClient(&adapter.CCASSClientConfig{
		URL:       cfg.CCASS.URL,
		Timeout:   cfg.CCASS.RequestTimeout,
		UserAgent: cfg.CCASS.UserAgent,
		Pacer:     pacer,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create CCASS client")
	}
	health.Client = client

	shareholdingService, err := service.NewShareholdingService(&service.ServiceConfig{
		Client:      client,
		Workers:     cfg.CCASS.Workers,
		MaxSpanDays: cfg.CCASS.MaxSpanDays,
		TopN:        cfg.CCASS.TopN,
		Monitor:     health.Monitor,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create shareholding service")
	}

	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		RateLimitRPS:    cfg.RateLimit.RequestsPerSecond,
		RateLimitBurst:  cfg.RateLimit.Burst,
	}

	server := api.NewServer(serverConfig, shareholdingService, health, logger)

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host":    cfg.Server.Host,
		"port":    cfg.Server.Port,
		"source":  cfg.CCASS.URL,
		"workers": cfg.CCASS.Workers,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
