package goble

import (
	"context"

	"github.com/go-ble/ble"
)

// Advertisement is the subset of ble.Advertisement the driver reads.
type Advertisement interface {
	LocalName() string
	ManufacturerData() []byte
	ServiceData() []ble.ServiceData
	Services() []ble.UUID
	TxPowerLevel() int
	Connectable() bool
	RSSI() int
	Addr() ble.Addr
}

// GATTClient is the subset of ble.Client used by a link.
type GATTClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// Radio is the local adapter as seen by the driver.
type Radio interface {
	Scan(ctx context.Context, allowDup bool, h func(Advertisement)) error
	Dial(ctx context.Context, address string) (GATTClient, error)
}

// RadioFactory creates the platform Radio (can be overridden in tests)
//
//nolint:revive // exported var is intentional for test overrides
var RadioFactory = func() (Radio, error) {
	dev, err := newPlatformDevice()
	if err != nil {
		return nil, err
	}
	return &deviceRadio{dev: dev}, nil
}

// deviceRadio adapts ble.Device to Radio
type deviceRadio struct {
	dev ble.Device
}

func (r *deviceRadio) Scan(ctx context.Context, allowDup bool, h func(Advertisement)) error {
	return r.dev.Scan(ctx, allowDup, func(a ble.Advertisement) {
		h(a)
	})
}

func (r *deviceRadio) Dial(ctx context.Context, address string) (GATTClient, error) {
	client, err := r.dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}
