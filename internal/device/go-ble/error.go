package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/srg/blesync/internal/device"
)

// NormalizeError maps known go-ble and CoreBluetooth error strings to the device error taxonomy.
// It ensures consistent handling even if the upstream library changes messages slightly.
// Returns wrapped errors to preserve original context.
func NormalizeError(err error) error {
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "central manager has invalid state: have=4 want=5: is Bluetooth turned on?":
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "bluetooth is turned off"):
		return fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
	case containsIgnoreCase(msg, "unsupported"), containsIgnoreCase(msg, "not supported"):
		if errors.Is(err, device.ErrUnsupported) {
			return err
		}
		return fmt.Errorf("%w: %v", device.ErrUnsupported, err)
	case containsIgnoreCase(msg, "can't init hci"), containsIgnoreCase(msg, "no such device"):
		return fmt.Errorf("%w: %v", device.ErrAdapterUnavailable, err)
	case errors.Is(err, context.DeadlineExceeded), containsIgnoreCase(msg, "device not found"):
		return fmt.Errorf("%w: %v", device.ErrDeviceNotFound, err)
	case containsIgnoreCase(msg, "device not connected"):
		return fmt.Errorf("%w: %v", device.ErrNotConnected, err)
	case containsIgnoreCase(msg, "disconnected"):
		return fmt.Errorf("%w: %v", device.ErrLinkLost, err)
	case containsIgnoreCase(msg, "device already connected"):
		return fmt.Errorf("%w: %v", device.ErrAlreadyConnected, err)
	case containsIgnoreCase(msg, "connection is not initialized"):
		return fmt.Errorf("%w: %v", device.ErrNotInitialized, err)
	default:
		return err
	}
}

// adapterStateFor derives the adapter state from a radio construction failure.
func adapterStateFor(err error) device.AdapterState {
	switch {
	case err == nil:
		return device.AdapterPoweredOn
	case errors.Is(err, device.ErrBluetoothOff):
		return device.AdapterPoweredOff
	case errors.Is(err, device.ErrUnsupported):
		return device.AdapterUnsupported
	default:
		return device.AdapterUnknown
	}
}

// containsIgnoreCase checks the substring case-insensitively
func containsIgnoreCase(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
