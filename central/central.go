package central

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/groutine"
	"github.com/srg/blesync/internal/opqueue"
	"github.com/srg/blesync/internal/session"
	"github.com/srg/blesync/scanner"
)

// Central is the caller-facing BLE central role for one managed peripheral.
//
// Requests return immediately. Their outcomes arrive as events on the sink, produced by a
// single pump goroutine that consumes the driver's event stream and routes it to the
// connection state machine, the operation queue and the scan filter.
type Central struct {
	logger  *logrus.Logger
	driver  device.Driver
	sink    EventSink
	session *session.Session
	scanner *scanner.Scanner

	scanMu sync.Mutex

	cancel    context.CancelFunc
	pumpDone  <-chan struct{}
	closeOnce sync.Once
}

// New creates a central over driver and starts its event pump.
func New(driver device.Driver, sink EventSink, logger *logrus.Logger, opts opqueue.Options) *Central {
	if logger == nil {
		logger = logrus.New()
	}
	if sink == nil {
		sink = SinkFunc(func(Event) {})
	}
	c := &Central{
		logger:  logger,
		driver:  driver,
		sink:    sink,
		scanner: scanner.New(logger),
	}
	c.session = session.New(driver, sessionListener{c}, logger, opts)

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.pumpDone = groutine.Go(ctx, "central-pump", c.pump)
	return c
}

// Session exposes the per-device state shared by the state machine and the queue.
func (c *Central) Session() *session.Session {
	return c.session
}

// Scanner exposes the scan filter, e.g. for a final device listing.
func (c *Central) Scanner() *scanner.Scanner {
	return c.scanner
}

// AdapterState queries the radio and emits the result as a state change event.
func (c *Central) AdapterState() device.AdapterState {
	state := c.driver.AdapterState()
	c.sink.Emit(StateChange{State: state.String()})
	return state
}

// StartScan starts a new scan session. A running session is replaced.
// If the radio refuses, the scan stays off and the adapter state is emitted.
func (c *Central) StartScan(serviceFilter string, allowDuplicates bool) error {
	return c.StartScanWithOptions(scanner.Options{ServiceFilter: serviceFilter, AllowDuplicates: allowDuplicates})
}

// StartScanWithOptions is StartScan with allow and block lists.
func (c *Central) StartScanWithOptions(opts scanner.Options) error {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	if c.scanner.Active() {
		c.logger.Debug("Restarting scan")
		c.scanner.Stop()
		if err := c.driver.StopScan(); err != nil {
			c.logger.WithError(err).Debug("Stopping previous scan failed")
		}
	}

	c.scanner.Start(opts)
	if err := c.driver.StartScan(opts.AllowDuplicates); err != nil {
		c.scanner.Stop()
		c.logger.WithError(err).Warn("Failed to start scan")
		c.sink.Emit(StateChange{State: c.driver.AdapterState().String()})
		return fmt.Errorf("failed to start scan: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"filter":           opts.ServiceFilter,
		"allow_duplicates": opts.AllowDuplicates,
	}).Info("Scanning...")
	return nil
}

// StopScan detaches from the advertisement stream. It is idempotent.
func (c *Central) StopScan() {
	c.scanMu.Lock()
	defer c.scanMu.Unlock()

	if !c.scanner.Active() {
		return
	}
	c.scanner.Stop()
	if err := c.driver.StopScan(); err != nil {
		c.logger.WithError(err).Warn("Failed to stop scan")
	}
	c.logger.Info("Scan stopped")
}

// Connect opens a link to address, replacing any existing one.
// The outcome arrives as a connect event, or a disconnect event if the link drops first.
func (c *Central) Connect(address string) error {
	return c.session.Connect(address)
}

// Disconnect closes the current link and emits a disconnect event.
// An address naming another device is rejected without touching the link.
func (c *Central) Disconnect(address string) error {
	if !c.targets(address) {
		err := &device.ConnectionError{State: device.NotConnected, Msg: fmt.Sprintf("%s is not the managed device", address)}
		c.logger.WithError(err).WithField("address", address).Warn("Disconnect rejected")
		return err
	}
	return c.session.Disconnect()
}

// DiscoverServices returns discovered service ids in discovery order, restricted to filters if any.
// Without a completed discovery the result is empty.
func (c *Central) DiscoverServices(address string, filters []string) []string {
	services := []string{}
	if c.targets(address) {
		want := device.CanonicalIDs(filters)
		for _, svc := range c.session.Topology().Services() {
			if len(want) == 0 || contains(want, svc) {
				services = append(services, svc)
			}
		}
	}
	c.sink.Emit(ServicesDiscovered{Address: address, Services: services})
	return services
}

// DiscoverCharacteristics returns the characteristics of service, restricted to filters if any.
func (c *Central) DiscoverCharacteristics(address, service string, filters []string) []CharacteristicSummary {
	out := []CharacteristicSummary{}
	if c.targets(address) {
		chars, err := c.session.Topology().Characteristics(service)
		if err != nil {
			c.logger.WithError(err).Debug("Characteristics discovery found nothing")
		}
		want := device.CanonicalIDs(filters)
		for _, ch := range chars {
			if len(want) == 0 || contains(want, ch.UUID) {
				out = append(out, CharacteristicSummary{UUID: ch.UUID, Properties: ch.Properties.Names()})
			}
		}
	}
	c.sink.Emit(CharacteristicsDiscovered{Address: address, Service: device.CanonicalID(service), Characteristics: out})
	return out
}

// DiscoverDescriptors returns the descriptor ids of one characteristic.
func (c *Central) DiscoverDescriptors(address, service, characteristic string) []string {
	out := []string{}
	if c.targets(address) {
		desc, err := c.session.Topology().Descriptors(service, characteristic)
		if err != nil {
			c.logger.WithError(err).Debug("Descriptor discovery found nothing")
		}
		out = append(out, desc...)
	}
	c.sink.Emit(DescriptorsDiscovered{
		Address:        address,
		Service:        device.CanonicalID(service),
		Characteristic: device.CanonicalID(characteristic),
		Descriptors:    out,
	})
	return out
}

// Read queues a read. The value arrives as a data event.
func (c *Central) Read(address, service, characteristic string) error {
	return c.submit(address, opqueue.NewRead(service, characteristic))
}

// Write queues a write. Success is reported by a write event.
func (c *Central) Write(address, service, characteristic string, payload []byte, withoutResponse bool) error {
	mode := opqueue.WithResponse
	if withoutResponse {
		mode = opqueue.WithoutResponse
	}
	return c.submit(address, opqueue.NewWrite(service, characteristic, payload, mode))
}

// Notify queues a subscription change. It is acknowledged by a notify event,
// after which every pushed value arrives as a data event with IsNotification set.
func (c *Central) Notify(address, service, characteristic string, enable bool) error {
	return c.submit(address, opqueue.NewNotify(service, characteristic, enable))
}

// Close stops scanning, drops the link and stops the pump. It is safe to call more than once.
func (c *Central) Close() {
	c.closeOnce.Do(func() {
		c.StopScan()
		if c.session.State() != device.Disconnected {
			if err := c.session.Disconnect(); err != nil {
				c.logger.WithError(err).Debug("Disconnect on close failed")
			}
		}
		c.session.Queue().Stop()
		c.cancel()
		<-c.pumpDone
	})
}

func (c *Central) submit(address string, op *opqueue.Operation) error {
	log := c.logger.WithFields(logrus.Fields{
		"op":             op.Kind.String(),
		"address":        address,
		"service":        op.Service,
		"characteristic": op.Characteristic,
	})

	if !c.targets(address) {
		err := &device.ConnectionError{State: device.NotConnected, Msg: fmt.Sprintf("%s is not the managed device", address)}
		log.WithError(err).Warn("Operation rejected")
		return err
	}
	if _, err := c.session.Enqueue(op); err != nil {
		var nf *device.NotFoundError
		if errors.As(err, &nf) {
			log.WithError(err).Warn("No characteristic found for operation")
		} else {
			log.WithError(err).Warn("Operation rejected")
		}
		return err
	}
	return nil
}

// targets reports whether address names the managed device. An empty address means the current one.
func (c *Central) targets(address string) bool {
	if address == "" {
		return true
	}
	current := c.session.Address()
	return current == "" || sameAddress(address, current)
}

func sameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// sessionListener turns connection outcomes into caller events.
type sessionListener struct {
	c *Central
}

func (l sessionListener) Connected(address string, services []device.ServiceInfo, err error) {
	ev := Connected{Address: address, Error: NewEventError(err)}
	for _, svc := range services {
		ev.Services = append(ev.Services, svc.UUID)
	}
	l.c.sink.Emit(ev)
}

func (l sessionListener) Disconnected(address string, err error) {
	l.c.sink.Emit(Disconnected{Address: address, Error: NewEventError(err)})
}
