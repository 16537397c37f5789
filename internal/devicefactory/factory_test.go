package devicefactory

import (
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
	goble "github.com/srg/blesync/internal/device/go-ble"
	"github.com/srg/blesync/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDriver_DefaultsToGoBLE(t *testing.T) {
	drv, err := NewDriver(nil, nil)
	require.NoError(t, err)

	gd, ok := drv.(*goble.Driver)
	require.True(t, ok, "default factory MUST build the go-ble driver")
	assert.NoError(t, gd.Close())
}

func TestNewDriver_UsesOverride(t *testing.T) {
	original := DriverFactory
	defer func() { DriverFactory = original }()

	var got *config.Config
	boom := errors.New("no radio")
	DriverFactory = func(cfg *config.Config, _ *logrus.Logger) (device.Driver, error) {
		got = cfg
		return nil, boom
	}

	_, err := NewDriver(nil, nil)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, got, "defaults MUST be passed when no config is given")
	assert.Equal(t, config.DefaultConfig().ConnectTimeout, got.ConnectTimeout)
}
