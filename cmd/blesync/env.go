package main

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/devicefactory"
	"github.com/srg/blesync/pkg/config"
)

// commandEnv is what every device command needs: configuration, a logger and a driver.
type commandEnv struct {
	cfg    *config.Config
	logger *logrus.Logger
	driver device.Driver
	stop   func()
}

// newCommandEnv loads --config, configures logging, starts the metrics endpoint when
// requested and creates the driver. Callers must call close.
func newCommandEnv(cmd *cobra.Command) (*commandEnv, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := configureLogger(cmd, "verbose", cfg)
	if err != nil {
		return nil, err
	}

	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}
	stop := func() {}
	if metricsAddr != "" {
		if stop, err = serveMetrics(metricsAddr, logger); err != nil {
			return nil, err
		}
	}

	driver, err := devicefactory.NewDriver(cfg, logger)
	if err != nil {
		stop()
		return nil, fmt.Errorf("failed to create BLE driver: %w", err)
	}

	return &commandEnv{cfg: cfg, logger: logger, driver: driver, stop: stop}, nil
}

func (e *commandEnv) close() {
	if closer, ok := e.driver.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			e.logger.WithError(err).Debug("failed to close driver")
		}
	}
	e.stop()
}

// outputFormat resolves a command's --format flag against the configured default.
func (e *commandEnv) outputFormat(flagValue string) (string, error) {
	format := flagValue
	if format == "" {
		format = e.cfg.OutputFormat
	}
	switch format {
	case "text", "json":
		return format, nil
	default:
		return "", fmt.Errorf("invalid format '%s': must be one of [text json]", format)
	}
}
