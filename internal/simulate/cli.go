package simulate

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/okian/passwatch/pkg/logger"
)

// SetupLogging initializes the logger, writing to stdout and, when logFile
// is set, to that file as well.
func SetupLogging(logFile, format string) (io.Closer, error) {
	if logFile == "" {
		if err := logger.Init(logger.WithFormat(format)); err != nil {
			return nil, fmt.Errorf("failed to initialize logger: %w", err)
		}
		return io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Init(logger.WithFormat(format), logger.WithOutput(io.MultiWriter(os.Stdout, file))); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the simulator.
func ShowHelp() {
	os.Stdout.WriteString(`passwatch simulator
===================

Generates synthetic checkpoint history with a known daily pattern, trains
the dual-horizon model on it and scores predictions made inside a 48h
holdout against the pattern.

Usage:
  go run ./cmd/simulate [options]

Options:
  -url string
        Drive a running server instead of running in process
  -days int
        Days of history to generate (default 21, minimum 4)
  -step duration
        Spacing of status observations (default 1h)
  -noise float
        Probability an observation disagrees with the pattern (default 0.05)
  -signals float
        Mean social signals per checkpoint per hour (default 0.5)
  -seed int
        Generator seed (default 1)
  -models string
        Artifact directory for in-process runs (default "models")
  -workers int
        Concurrent status uploads in remote runs (default 8)
  -timeout duration
        HTTP request timeout (default 30s)
  -output string
        Write the generated history as JSON lines
  -log string
        Also write logs to this file
  -verbose
        Log every prediction
  -help
        Show this help message

Examples:
  # In-process run over two weeks of history
  go run ./cmd/simulate -days 14

  # Drive a server started with the default memory store
  go run ./cmd/simulate -url http://localhost:9080 -days 10
`)
}
