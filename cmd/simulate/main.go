package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/passwatch/internal/simulate"
)

const defaultRunTimeout = 30 * time.Minute

func main() {
	def := simulate.DefaultConfig()
	var (
		baseURL = flag.String("url", "", "Drive a running server instead of running in process")
		days    = flag.Int("days", def.Days, "Days of history to generate")
		step    = flag.Duration("step", def.Step, "Spacing of status observations")
		noise   = flag.Float64("noise", def.Noise, "Probability an observation disagrees with the pattern")
		signals = flag.Float64("signals", def.SignalRate, "Mean social signals per checkpoint per hour")
		seed    = flag.Int64("seed", def.Seed, "Generator seed")
		models  = flag.String("models", def.ModelDir, "Artifact directory for in-process runs")
		workers = flag.Int("workers", def.Workers, "Concurrent status uploads in remote runs")
		timeout = flag.Duration("timeout", def.Timeout, "HTTP request timeout")
		output  = flag.String("output", "", "Write the generated history as JSON lines")
		logFile = flag.String("log", "", "Also write logs to this file")
		format  = flag.String("log-format", "text", "Log format: text or json")
		verbose = flag.Bool("verbose", false, "Log every prediction")
		help    = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simulate.ShowHelp()
		return
	}

	closer, err := simulate.SetupLogging(*logFile, *format)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	cfg := def
	cfg.BaseURL = *baseURL
	cfg.Start = time.Now().UTC().Truncate(24*time.Hour).AddDate(0, 0, -*days)
	cfg.Days = *days
	cfg.Step = *step
	cfg.Noise = *noise
	cfg.SignalRate = *signals
	cfg.Seed = *seed
	cfg.ModelDir = *models
	cfg.Workers = *workers
	cfg.Timeout = *timeout
	cfg.OutputFile = *output
	cfg.Verbose = *verbose

	if _, err := simulate.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
