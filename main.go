// Package main provides the PV yield forecast service entry point and CLI interface.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"go.uber.org/zap"

	"github.com/devskill-org/pvyield/chart"
	"github.com/devskill-org/pvyield/forecast"
	"github.com/devskill-org/pvyield/logging"
	"github.com/devskill-org/pvyield/scheduler"
	"github.com/devskill-org/pvyield/sigenergy"
	"github.com/devskill-org/pvyield/utils"
)

const defaultConfigFile = "config.json"

func main() {
	// Command line flags
	var (
		configFile = flag.String("config", defaultConfigFile, "Configuration file path")
		envFile    = flag.String("env", ".env", "Environment file with PVYIELD_* overrides")
		info       = flag.Bool("info", false, "Show Plant Information")
		help       = flag.Bool("help", false, "Show help message")
		serverOnly = flag.Bool("serverOnly", false, "Run only web server without periodic tasks")
		once       = flag.Bool("once", false, "Run the forecast once and print the hourly table")
		chartFile  = flag.String("chart", "", "Write the forecast chart to this PNG file (implies -once)")
		actual     = flag.String("actual", "", "Record the actual yield in kWh for -date and exit")
		date       = flag.String("date", "", "Date for -actual, YYYY-MM-DD (default today)")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	config, err := loadConfig(*configFile, *envFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		os.Exit(1)
	}

	if *info {
		if err := sigenergy.ShowPlantInfo(os.Stdout, config.PlantModbusAddress, config.ModbusTimeout); err != nil {
			fmt.Println("Error:", err)
			os.Exit(1)
		}
		return
	}

	logger, err := logging.New(config.LogLevel, config.LogFormat)
	if err != nil {
		fmt.Println("Error creating logger:", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	switch {
	case *actual != "":
		err = runRecordActual(config, logger, *actual, *date)
	case *once || *chartFile != "":
		err = runOnce(config, logger, *chartFile)
	default:
		err = runService(config, logger, *serverOnly)
	}
	if err != nil {
		logger.Error("Exiting", zap.Error(err))
		os.Exit(1)
	}
}

// loadConfig reads the JSON configuration and applies environment overrides.
// A missing default config file falls back to the built-in defaults.
func loadConfig(configFile, envFile string) (*scheduler.Config, error) {
	config, err := scheduler.LoadConfig(configFile)
	if err != nil {
		if configFile != defaultConfigFile || !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		config = scheduler.DefaultConfig()
	}

	if err := config.LoadEnv(envFile); err != nil {
		return nil, err
	}
	return config, nil
}

func runService(config *scheduler.Config, logger *zap.Logger, serverOnly bool) error {
	logger.Info("Starting PV yield forecast service",
		zap.Float64("latitude", config.Latitude),
		zap.Float64("longitude", config.Longitude),
		zap.Float64("tilt", config.Tilt),
		zap.Float64("azimuth", config.Azimuth),
		zap.Float64("capacity_kwp", config.CapacityKWp),
		zap.String("weather_source", config.WeatherSource),
		zap.Duration("forecast_update_interval", config.ForecastUpdateInterval),
		zap.Int("web_port", config.WebPort),
		zap.Bool("dry_run", config.DryRun))

	forecastScheduler, err := scheduler.NewForecastSchedulerWithWebServer(config, logger)
	if err != nil {
		return err
	}
	defer forecastScheduler.Close()

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start scheduler in a goroutine
	go func() {
		if err := forecastScheduler.Start(ctx, serverOnly); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Scheduler error", zap.Error(err))
			}
		}
	}()

	logger.Info("Scheduler started. Press Ctrl+C to stop...")

	// Wait for shutdown signal
	<-sigChan
	logger.Info("Shutdown signal received, stopping scheduler...")

	cancel()
	forecastScheduler.Stop()

	logger.Info("Scheduler stopped successfully")
	return nil
}

func runOnce(config *scheduler.Config, logger *zap.Logger, chartFile string) error {
	forecastScheduler, err := scheduler.NewForecastScheduler(config, logger)
	if err != nil {
		return err
	}
	defer forecastScheduler.Close()

	ctx := context.Background()
	if err := forecastScheduler.ConnectDB(ctx); err != nil {
		logger.Warn("Failed to connect to database, using CSV feedback", zap.Error(err))
	}

	f, err := forecastScheduler.RunForecast(ctx)
	if err != nil {
		return err
	}

	loc, err := config.TimeLocation()
	if err != nil {
		return err
	}

	forecast.WriteTable(os.Stdout, f, loc)

	if chartFile == "" {
		return nil
	}

	out, err := os.Create(chartFile)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	defer out.Close()

	opts := chart.DefaultOptions()
	opts.Location = loc
	opts.Title = fmt.Sprintf("PV forecast %.1f kWh (bias %.2f)", f.TotalKWh, f.Bias)
	if err := chart.Render(out, f.Points, opts); err != nil {
		return err
	}

	logger.Info("Chart written", zap.String("file", chartFile))
	return nil
}

func runRecordActual(config *scheduler.Config, logger *zap.Logger, actual, date string) error {
	actualKWh, err := strconv.ParseFloat(actual, 64)
	if err != nil {
		return fmt.Errorf("invalid actual yield %q: %w", actual, err)
	}

	loc, err := config.TimeLocation()
	if err != nil {
		return err
	}
	day, err := utils.ParseDate(date, loc)
	if err != nil {
		return err
	}

	forecastScheduler, err := scheduler.NewForecastScheduler(config, logger)
	if err != nil {
		return err
	}
	defer forecastScheduler.Close()

	ctx := context.Background()
	if err := forecastScheduler.ConnectDB(ctx); err != nil {
		logger.Warn("Failed to connect to database, using CSV feedback", zap.Error(err))
	}

	// the prediction comes from the full-day forecasts stored by earlier runs
	entry, err := forecastScheduler.LogActualYield(ctx, day, actualKWh)
	if err != nil {
		return err
	}

	_, bias, err := forecastScheduler.FeedbackSummary(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Recorded %s: actual %.2f kWh, predicted %.2f kWh\n", entry.Date, entry.ActualKWh, entry.PredictedKWh)
	if entry.PredictedKWh == 0 {
		fmt.Println("No full-day forecast stored for this date, the entry does not affect the bias")
	}
	fmt.Printf("Bias factor: %.3f\n", bias)
	return nil
}

func showHelp() {
	fmt.Println("pvyield - PV yield forecast with bias correction")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Forecasts the hourly and daily energy of a photovoltaic array from weather")
	fmt.Println("  forecasts. Irradiance is transposed onto the plane of array, derated by the")
	fmt.Println("  module temperature and scaled by a bias factor learned from actual yields.")
	fmt.Println()
	fmt.Println("  Key Features:")
	fmt.Println("  - Open-Meteo, MET Norway, CSV or simulated weather")
	fmt.Println("  - Plane-of-array transposition with sun position")
	fmt.Println("  - NOCT module temperature and efficiency derating")
	fmt.Println("  - Bias correction from a CSV or Postgres feedback log")
	fmt.Println("  - Actual yield capture from the plant via Modbus")
	fmt.Println("  - HTTP API, websocket updates, PNG chart and Prometheus metrics")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  pvyield [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run the service with default settings")
	fmt.Println("  pvyield")
	fmt.Println()
	fmt.Println("  # Custom configuration")
	fmt.Println("  pvyield --config=config.json")
	fmt.Println()
	fmt.Println("  # Print the forecast once and save the chart")
	fmt.Println("  pvyield -once -chart=forecast.png")
	fmt.Println()
	fmt.Println("  # Record yesterday's actual yield")
	fmt.Println("  pvyield -actual=41.3 -date=2024-06-20")
	fmt.Println()
	fmt.Println("  # Show plant/system information")
	fmt.Println("  pvyield -info")
	fmt.Println()
	fmt.Println("  # Run only web server without periodic tasks")
	fmt.Println("  pvyield -serverOnly")
	fmt.Println()
	fmt.Println("  # Show this help")
	fmt.Println("  pvyield -help")
}
