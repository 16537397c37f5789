package devicefactory

import (
	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
	goble "github.com/srg/blesync/internal/device/go-ble"
	"github.com/srg/blesync/pkg/config"
)

// DriverFactory creates the radio driver used by the CLI.
// This is a variable so that it can be overridden in tests.
var DriverFactory = func(cfg *config.Config, logger *logrus.Logger) (device.Driver, error) {
	return goble.NewDriver(logger, goble.Options{
		DialTimeout: cfg.ConnectTimeout,
		EventBuffer: cfg.EventBuffer,
	}), nil
}

// NewDriver creates a driver through DriverFactory.
func NewDriver(cfg *config.Config, logger *logrus.Logger) (device.Driver, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return DriverFactory(cfg, logger)
}
