package goble

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/groutine"
)

type charKey struct {
	service        string
	characteristic string
}

// link is one go-ble connection attempt and, once dialed, its client.
type link struct {
	drv     *Driver
	id      uint64
	address string
	logger  *logrus.Entry
	ctx     context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	client GATTClient
	chars  map[charKey]*ble.Characteristic
	closed bool

	// serializes blocking go-ble calls; an abandoned call may still be running
	callMu sync.Mutex
}

func newLink(d *Driver, id uint64, address string) *link {
	ctx, cancel := context.WithCancel(d.ctx)
	return &link{
		drv:     d,
		id:      id,
		address: address,
		logger:  d.logger.WithFields(logrus.Fields{"address": address, "link": id}),
		ctx:     ctx,
		cancel:  cancel,
		chars:   make(map[charKey]*ble.Characteristic),
	}
}

func (l *link) ID() uint64      { return l.id }
func (l *link) Address() string { return l.address }

func (l *link) dial(ctx context.Context, radio Radio) {
	l.logger.WithField("timeout", l.drv.opts.DialTimeout).Info("Connecting to BLE device...")

	dialCtx, cancel := context.WithTimeout(ctx, l.drv.opts.DialTimeout)
	defer cancel()

	client, err := radio.Dial(dialCtx, l.address)
	if err != nil {
		err = NormalizeError(err)
		l.logger.WithError(err).Warn("Failed to dial BLE device")
		l.drv.emit(device.LinkDropped{LinkID: l.id, Address: l.address, Err: err})
		return
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("Link closed while dialing, cancelling connection")
		_ = client.CancelConnection()
		return
	}
	l.client = client
	l.mu.Unlock()

	l.logger.Info("BLE device connected")
	l.drv.emit(device.LinkEstablished{LinkID: l.id, Address: l.address})

	// go-ble reports remote disconnects only through this optional channel
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		groutine.Go(l.ctx, "goble-link-monitor", func(ctx context.Context) {
			select {
			case <-dc.Disconnected():
				if l.markClosed() {
					l.logger.Warn("Peripheral disconnected")
					l.drv.emit(device.LinkDropped{LinkID: l.id, Address: l.address, Err: device.ErrLinkLost})
				}
			case <-ctx.Done():
			}
		})
	} else {
		l.logger.Debug("Client does not expose a Disconnected() channel")
	}
}

// markClosed flips the link to closed and reports whether this call did it.
func (l *link) markClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.closed = true
	return true
}

func (l *link) currentClient() (GATTClient, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed || l.client == nil {
		return nil, &device.ConnectionError{State: device.NotConnected, Msg: l.address}
	}
	return l.client, nil
}

func (l *link) lookup(service, characteristic string) (*ble.Characteristic, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.chars[charKey{device.CanonicalID(service), device.CanonicalID(characteristic)}]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}}
	}
	return c, nil
}

// DiscoverServices runs profile discovery and publishes device.DiscoveryComplete.
func (l *link) DiscoverServices() error {
	client, err := l.currentClient()
	if err != nil {
		return err
	}

	groutine.Go(l.ctx, "goble-discover", func(ctx context.Context) {
		l.callMu.Lock()
		profile, err := client.DiscoverProfile(true)
		l.callMu.Unlock()

		ev := device.DiscoveryComplete{LinkID: l.id, Address: l.address}
		if err != nil {
			ev.Err = NormalizeError(err)
			l.logger.WithError(ev.Err).Warn("Failed to discover profile")
			l.drv.emit(ev)
			return
		}

		chars := make(map[charKey]*ble.Characteristic)
		ev.Services = profileToServices(profile, chars)
		l.mu.Lock()
		l.chars = chars
		l.mu.Unlock()

		l.logger.WithField("services", len(ev.Services)).Debug("Profile discovered")
		l.drv.emit(ev)
	})
	return nil
}

func profileToServices(p *ble.Profile, chars map[charKey]*ble.Characteristic) []device.ServiceInfo {
	if p == nil {
		return nil
	}
	services := make([]device.ServiceInfo, 0, len(p.Services))
	for _, s := range p.Services {
		svc := device.ServiceInfo{UUID: device.CanonicalID(s.UUID.String())}
		for _, c := range s.Characteristics {
			ci := device.CharacteristicInfo{
				UUID:       device.CanonicalID(c.UUID.String()),
				Properties: NewProperties(c.Property),
			}
			for _, desc := range c.Descriptors {
				ci.Descriptors = append(ci.Descriptors, device.CanonicalID(desc.UUID.String()))
			}
			svc.Characteristics = append(svc.Characteristics, ci)
			chars[charKey{svc.UUID, ci.UUID}] = c
		}
		services = append(services, svc)
	}
	return services
}

// Read issues a characteristic read; the value arrives as device.OperationComplete.
func (l *link) Read(opID uint64, service, characteristic string) error {
	return l.run(opID, device.OpRead, false, service, characteristic, func(client GATTClient, c *ble.Characteristic) ([]byte, error) {
		return client.ReadCharacteristic(c)
	})
}

// Write issues a characteristic write; the acknowledgement arrives as device.OperationComplete.
func (l *link) Write(opID uint64, service, characteristic string, payload []byte, withoutResponse bool) error {
	data := append([]byte(nil), payload...)
	return l.run(opID, device.OpWrite, false, service, characteristic, func(client GATTClient, c *ble.Characteristic) ([]byte, error) {
		return nil, client.WriteCharacteristic(c, data, withoutResponse)
	})
}

// SetNotify subscribes or unsubscribes; pushed values arrive as device.Notification.
func (l *link) SetNotify(opID uint64, service, characteristic string, enable bool) error {
	svc, chr := device.CanonicalID(service), device.CanonicalID(characteristic)
	return l.run(opID, device.OpNotify, enable, service, characteristic, func(client GATTClient, c *ble.Characteristic) ([]byte, error) {
		ind := useIndication(c.Property)
		if !enable {
			return nil, client.Unsubscribe(c, ind)
		}
		return nil, client.Subscribe(c, ind, func(data []byte) {
			l.drv.emit(device.Notification{
				LinkID:         l.id,
				Address:        l.address,
				Service:        svc,
				Characteristic: chr,
				Value:          append([]byte(nil), data...),
			})
		})
	})
}

func (l *link) run(opID uint64, kind device.OpKind, enable bool, service, characteristic string,
	call func(GATTClient, *ble.Characteristic) ([]byte, error)) error {
	client, err := l.currentClient()
	if err != nil {
		return err
	}
	c, err := l.lookup(service, characteristic)
	if err != nil {
		return err
	}

	groutine.Go(l.ctx, "goble-"+kind.String(), func(ctx context.Context) {
		l.callMu.Lock()
		value, err := call(client, c)
		l.callMu.Unlock()

		err = NormalizeError(err)
		if err != nil {
			l.logger.WithFields(logrus.Fields{
				"op":             kind.String(),
				"characteristic": characteristic,
				"error":          err,
			}).Debug("GATT operation failed")
		}
		l.drv.emit(device.OperationComplete{
			LinkID:         l.id,
			OpID:           opID,
			Kind:           kind,
			Address:        l.address,
			Service:        device.CanonicalID(service),
			Characteristic: device.CanonicalID(characteristic),
			Value:          value,
			Enabled:        enable,
			Err:            err,
		})
	})
	return nil
}

// Close tears the link down; a LinkDropped for this handle follows.
func (l *link) Close() error {
	if !l.markClosed() {
		return nil
	}
	l.mu.RLock()
	client := l.client
	l.mu.RUnlock()

	groutine.Go(l.drv.ctx, "goble-close", func(ctx context.Context) {
		if client != nil {
			if err := client.CancelConnection(); err != nil {
				l.logger.WithError(NormalizeError(err)).Warn("Failed to cancel connection")
			}
		}
		l.cancel()
		l.drv.emit(device.LinkDropped{LinkID: l.id, Address: l.address})
	})
	return nil
}

func (l *link) String() string {
	return fmt.Sprintf("link(%d,%s)", l.id, l.address)
}
