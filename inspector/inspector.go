package inspector

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/central"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/opqueue"
)

// ProgressCallback is called when the inspection phase changes
type ProgressCallback func(phase string)

// InspectOptions defines options for inspecting a BLE device
type InspectOptions struct {
	ConnectTimeout time.Duration
	EventBuffer    int
	Queue          opqueue.Options
}

// DefaultInspectOptions returns the options used when none are given.
func DefaultInspectOptions() *InspectOptions {
	return &InspectOptions{
		ConnectTimeout: 30 * time.Second,
		EventBuffer:    256,
	}
}

// Target is a connected device handed to an InspectCallback.
type Target struct {
	Central  *central.Central
	Address  string
	Services []string
	events   <-chan central.Event
}

// Events returns the central's event stream. Events consumed here are not seen by Await.
func (t *Target) Events() <-chan central.Event {
	return t.events
}

// Await waits for the first event accepted by match, discarding the others.
// A disconnect of the target ends the wait with device.ErrLinkLost.
func (t *Target) Await(ctx context.Context, timeout time.Duration, match func(central.Event) bool) (central.Event, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, fmt.Errorf("%w: no response within %s", device.ErrOperationTimeout, timeout)
		case ev := <-t.events:
			if match(ev) {
				return ev, nil
			}
			if d, ok := ev.(central.Disconnected); ok {
				if d.Error != nil {
					return nil, fmt.Errorf("%w: %s", device.ErrLinkLost, d.Error.Message)
				}
				return nil, device.ErrLinkLost
			}
		}
	}
}

// InspectCallback processes a connected device and produces output of type R
type InspectCallback[R any] func(*Target) (R, error)

// InspectDevice connects to address through driver, waits for service discovery and runs
// the callback with the connected device. The device is disconnected afterwards.
// Optional progressCallback can be provided for connection progress updates.
func InspectDevice[R any](ctx context.Context, driver device.Driver, address string, opts *InspectOptions, logger *logrus.Logger, progressCallback ProgressCallback, callback InspectCallback[R]) (R, error) {
	var zero R
	if opts == nil {
		opts = DefaultInspectOptions()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}
	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = DefaultInspectOptions().EventBuffer
	}

	progressCallback("Connecting")

	sink := central.NewChannelSink(buffer)
	c := central.New(driver, sink, logger, opts.Queue)
	defer c.Close()

	target := &Target{Central: c, Address: address, events: sink.C()}
	if err := c.Connect(address); err != nil {
		progressCallback("Failed")
		return zero, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	connected, err := awaitConnected(ctx, target, opts.ConnectTimeout)
	if err != nil {
		progressCallback("Failed")
		return zero, err
	}
	target.Services = connected.Services

	progressCallback("Connected")

	defer func() {
		if err := c.Disconnect(address); err != nil {
			logger.WithError(err).Error("failed to disconnect device")
		}
	}()

	progressCallback("Processing results")
	return callback(target)
}

func awaitConnected(ctx context.Context, t *Target, timeout time.Duration) (central.Connected, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return central.Connected{}, ctx.Err()
		case <-timer.C:
			return central.Connected{}, fmt.Errorf("%w: %s did not connect within %s", device.ErrDeviceNotFound, t.Address, timeout)
		case ev := <-t.events:
			switch e := ev.(type) {
			case central.Connected:
				if e.Error != nil {
					return central.Connected{}, fmt.Errorf("failed to connect to %s: %w", t.Address, e.Error)
				}
				return e, nil
			case central.Disconnected:
				if e.Error != nil {
					return central.Connected{}, fmt.Errorf("failed to connect to %s: %w", t.Address, e.Error)
				}
				return central.Connected{}, fmt.Errorf("%w: %s disconnected while connecting", device.ErrLinkLost, t.Address)
			}
		}
	}
}
