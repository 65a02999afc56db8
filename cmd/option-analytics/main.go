package main

import (
	"context"
	"flag"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/contactkeval/option-analytics/internal/analytics"
	"github.com/contactkeval/option-analytics/internal/config"
	"github.com/contactkeval/option-analytics/internal/logger"
	"github.com/contactkeval/option-analytics/internal/report"
	"github.com/contactkeval/option-analytics/internal/server"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config")
	serve := flag.Bool("serve", false, "run as REST server instead of a one-shot analysis")
	port := flag.String("port", "", "REST server listen address (default from config, then :8080)")
	envFile := flag.String("env", ".env", "dotenv file loaded before the config")
	flag.Parse()

	if err := config.LoadEnv(*envFile); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	logger.SetVerbosity(cfg.Verbosity)

	prov, closeProv, err := cfg.Provider()
	if err != nil {
		logger.Errorf("data provider: %v", err)
		os.Exit(1)
	}
	defer closeProv()

	if *serve {
		gin.SetMode(gin.ReleaseMode)
		if cfg.Verbosity >= int(logger.Debug) {
			gin.SetMode(gin.DebugMode)
		}
		addr := cfg.Port
		if *port != "" {
			addr = *port
		}
		if err := server.New(prov, cfg.Steps).Run(addr); err != nil {
			logger.Errorf("server: %v", err)
			closeProv()
			os.Exit(1)
		}
		return
	}

	if cfg.Underlying == "" {
		logger.Errorf("config: underlying is required (use -config)")
		closeProv()
		os.Exit(2)
	}

	start := time.Now()
	res, err := analytics.NewEngine(&cfg.Config, prov).Run(context.Background())
	if err != nil {
		logger.Errorf("analysis failed: %v", err)
		closeProv()
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		logger.Errorf("could not create output dir %s: %v", cfg.OutputDir, err)
		closeProv()
		os.Exit(1)
	}
	if err := report.WriteJSON(res, cfg.OutputDir); err != nil {
		logger.Errorf("writing %s: %v", report.AnalysisFile, err)
	}
	if err := report.WriteCSV(res, cfg.OutputDir); err != nil {
		logger.Errorf("writing %s: %v", report.VolatilityFile, err)
	}
	logger.Infof("finished in %v: %s %s %.4f, wrote %s", time.Since(start), res.Underlying, res.Quote.Model, res.Quote.Price, cfg.OutputDir)
}
