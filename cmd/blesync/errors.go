package main

import (
	"errors"
	"fmt"

	"github.com/srg/blesync/internal/device"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped while a command was still using it.
	// It differs from device.ErrNotConnected, which rejects a request made without a link.
	ErrConnectionLost = errors.New("connection lost")
)

// FormatUserError turns an error chain into a one-line message with a hint where one helps.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var notFound *device.NotFoundError
	switch {
	case errors.As(err, &notFound):
		return fmt.Sprintf("%s (run 'blesync inspect' to list the device's services)", notFound.Error())
	case errors.Is(err, device.ErrBluetoothOff), errors.Is(err, device.ErrAdapterUnavailable):
		return fmt.Sprintf("%s; check that Bluetooth is enabled and the adapter is accessible", err)
	case errors.Is(err, device.ErrDeviceNotFound):
		return fmt.Sprintf("%s; make sure the device is powered on, advertising and in range", err)
	case errors.Is(err, ErrConnectionLost), errors.Is(err, device.ErrLinkLost):
		return fmt.Sprintf("%s; the device disconnected", err)
	case errors.Is(err, device.ErrOperationTimeout):
		return fmt.Sprintf("%s; the device did not answer, try a longer --timeout", err)
	case device.IsConnectionState(err, device.NotConnected):
		return fmt.Sprintf("%s; no device is connected", err)
	}
	return err.Error()
}
