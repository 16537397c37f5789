package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/groutine"
)

const (
	// DefaultEventBuffer is the capacity of the driver event channel
	DefaultEventBuffer = 256

	// DefaultDialTimeout bounds a single connection attempt
	DefaultDialTimeout = 30 * time.Second
)

// Options configures a Driver. Zero values select defaults.
type Options struct {
	DialTimeout time.Duration
	EventBuffer int
	Factory     func() (Radio, error)
}

// Driver implements device.Driver on top of go-ble.
//
// go-ble calls block until the peripheral answers. Every request is run on its own
// named goroutine and its outcome is published on the Events channel, so callers see
// the same fire-and-callback contract as any other asynchronous radio stack.
type Driver struct {
	logger  *logrus.Logger
	opts    Options
	events  chan device.Event
	ctx     context.Context
	cancel  context.CancelFunc
	nextID  atomic.Uint64
	radioMu sync.Mutex
	radio   Radio
	state   device.AdapterState

	scanMu     sync.Mutex
	scanCancel context.CancelFunc
	scanDone   <-chan struct{}
}

var _ device.Driver = (*Driver)(nil)

// NewDriver creates a driver. The radio is opened lazily on first use.
func NewDriver(logger *logrus.Logger, opts Options) *Driver {
	if logger == nil {
		logger = logrus.New()
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = DefaultEventBuffer
	}
	if opts.Factory == nil {
		opts.Factory = RadioFactory
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Driver{
		logger: logger,
		opts:   opts,
		events: make(chan device.Event, opts.EventBuffer),
		ctx:    ctx,
		cancel: cancel,
		state:  device.AdapterUnknown,
	}
}

// Events returns the channel all driver signals are published on.
func (d *Driver) Events() <-chan device.Event {
	return d.events
}

// AdapterState opens the radio if needed and reports its state.
func (d *Driver) AdapterState() device.AdapterState {
	_, _ = d.ensureRadio()
	d.radioMu.Lock()
	defer d.radioMu.Unlock()
	return d.state
}

func (d *Driver) ensureRadio() (Radio, error) {
	d.radioMu.Lock()
	defer d.radioMu.Unlock()

	if d.radio != nil {
		return d.radio, nil
	}

	radio, err := d.opts.Factory()
	err = NormalizeError(err)
	prev := d.state
	d.state = adapterStateFor(err)
	if d.state != prev {
		d.emit(device.AdapterStateChanged{State: d.state})
	}
	if err != nil {
		d.logger.WithError(err).Warn("Failed to open BLE adapter")
		if errors.Is(err, device.ErrBluetoothOff) || errors.Is(err, device.ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", device.ErrAdapterUnavailable, err)
	}
	d.radio = radio
	return radio, nil
}

// StartScan starts a scan, replacing any scan already running.
// Failures after start are published as device.ScanFailed.
func (d *Driver) StartScan(allowDuplicates bool) error {
	radio, err := d.ensureRadio()
	if err != nil {
		return err
	}

	d.scanMu.Lock()
	defer d.scanMu.Unlock()
	d.stopScanLocked()

	ctx, cancel := context.WithCancel(d.ctx)
	d.scanCancel = cancel
	d.scanDone = groutine.Go(ctx, "goble-scan", func(ctx context.Context) {
		d.logger.WithField("allow_duplicates", allowDuplicates).Debug("Scan started")
		err := radio.Scan(ctx, allowDuplicates, func(adv Advertisement) {
			d.emit(device.AdvertisementSeen{Sightings: []device.Sighting{NewSighting(adv)}})
		})
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			err = NormalizeError(err)
			d.logger.WithError(err).Warn("Scan failed")
			d.emit(device.ScanFailed{Err: err})
			return
		}
		d.logger.Debug("Scan stopped")
	})
	return nil
}

// StopScan stops the running scan, if any, and waits for it to wind down.
func (d *Driver) StopScan() error {
	d.scanMu.Lock()
	defer d.scanMu.Unlock()
	d.stopScanLocked()
	return nil
}

func (d *Driver) stopScanLocked() {
	if d.scanCancel == nil {
		return
	}
	d.scanCancel()
	<-d.scanDone
	d.scanCancel = nil
	d.scanDone = nil
}

// Open starts dialing address on a new link handle.
func (d *Driver) Open(address string) (device.Link, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: empty address", device.ErrAdapterUnavailable)
	}
	radio, err := d.ensureRadio()
	if err != nil {
		return nil, err
	}

	l := newLink(d, d.nextID.Add(1), address)
	groutine.Go(l.ctx, "goble-dial", func(ctx context.Context) {
		l.dial(ctx, radio)
	})
	return l, nil
}

// Close stops scanning, cancels every link goroutine and stops publishing events.
func (d *Driver) Close() error {
	_ = d.StopScan()
	d.cancel()
	return nil
}

// emit publishes an event unless the driver has been closed.
func (d *Driver) emit(ev device.Event) {
	select {
	case d.events <- ev:
	case <-d.ctx.Done():
	}
}
