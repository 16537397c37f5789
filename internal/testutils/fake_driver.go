package testutils

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/srg/blesync/internal/device"
)

// Request is one characteristic request observed by the FakeDriver.
type Request struct {
	LinkID         uint64
	OpID           uint64
	Kind           device.OpKind
	Service        string
	Characteristic string
	Payload        []byte
	WithoutResp    bool
	Enable         bool
	At             time.Time
}

// FakeDriver is an in-memory asynchronous device.Driver.
//
// Every request is acknowledged from a timer goroutine after the peripheral's latency,
// unless the characteristic is marked silent, in which case no completion is ever sent.
// The driver tracks how many acknowledged requests are outstanding at once.
type FakeDriver struct {
	mu          sync.Mutex
	state       device.AdapterState
	events      chan device.Event
	peripherals map[string]*FakePeripheral
	links       map[uint64]*fakeLink
	nextLink    uint64
	scanning    bool
	allowDup    bool
	scanStarts  int
	requests    []Request
	outstanding int
	maxOut      int
	openErr     error
}

var _ device.Driver = (*FakeDriver)(nil)

// NewFakeDriver creates a powered-on fake radio.
func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		state:       device.AdapterPoweredOn,
		events:      make(chan device.Event, 1024),
		peripherals: make(map[string]*FakePeripheral),
		links:       make(map[uint64]*fakeLink),
	}
}

// AddPeripheral makes a peripheral reachable by its address.
func (d *FakeDriver) AddPeripheral(p *FakePeripheral) *FakeDriver {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.peripherals[addrKey(p.Address)] = p
	return d
}

// SetAdapterState changes the adapter state and publishes the change.
func (d *FakeDriver) SetAdapterState(s device.AdapterState) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	d.emit(device.AdapterStateChanged{State: s})
}

// FailOpen makes every following Open return err.
func (d *FakeDriver) FailOpen(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.openErr = err
}

func (d *FakeDriver) Events() <-chan device.Event { return d.events }

func (d *FakeDriver) AdapterState() device.AdapterState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *FakeDriver) StartScan(allowDuplicates bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != device.AdapterPoweredOn {
		return fmt.Errorf("%w: adapter is %s", device.ErrAdapterUnavailable, d.state)
	}
	d.scanning = true
	d.allowDup = allowDuplicates
	d.scanStarts++
	return nil
}

func (d *FakeDriver) StopScan() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.scanning = false
	return nil
}

// Scanning reports whether a scan is running.
func (d *FakeDriver) Scanning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scanning
}

// ScanStarts counts StartScan calls.
func (d *FakeDriver) ScanStarts() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.scanStarts
}

// Advertise publishes sightings while scanning. Several sightings form one batched delivery.
func (d *FakeDriver) Advertise(sightings ...device.Sighting) bool {
	if !d.Scanning() || len(sightings) == 0 {
		return false
	}
	d.emit(device.AdvertisementSeen{Sightings: sightings})
	return true
}

func (d *FakeDriver) Open(address string) (device.Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.openErr != nil {
		return nil, d.openErr
	}
	if d.state != device.AdapterPoweredOn {
		return nil, fmt.Errorf("%w: adapter is %s", device.ErrAdapterUnavailable, d.state)
	}

	d.nextLink++
	l := &fakeLink{drv: d, id: d.nextLink, address: address, subscribed: make(map[string]bool)}
	d.links[l.id] = l
	p := d.peripherals[addrKey(address)]

	if p == nil {
		d.after(0, device.LinkDropped{LinkID: l.id, Address: address, Err: fmt.Errorf("%w: %s", device.ErrDeviceNotFound, address)})
		return l, nil
	}
	l.peripheral = p
	if !p.NeverConnects {
		d.after(p.Latency, device.LinkEstablished{LinkID: l.id, Address: address})
	}
	return l, nil
}

// DropLink simulates the peripheral going away on the newest link to address.
func (d *FakeDriver) DropLink(address string, err error) {
	l := d.latestLink(address)
	if l == nil || !l.markClosed() {
		return
	}
	d.emit(device.LinkDropped{LinkID: l.id, Address: l.address, Err: err})
}

// PushNotification delivers a value for a subscribed characteristic on the newest link.
func (d *FakeDriver) PushNotification(address, service, characteristic string, value []byte) bool {
	l := d.latestLink(address)
	if l == nil {
		return false
	}
	key := charKey(service, characteristic)
	l.mu.Lock()
	on := l.subscribed[key] && !l.closed
	l.mu.Unlock()
	if !on {
		return false
	}
	d.emit(device.Notification{
		LinkID:         l.id,
		Address:        l.address,
		Service:        device.CanonicalID(service),
		Characteristic: device.CanonicalID(characteristic),
		Value:          value,
	})
	return true
}

// Requests returns every characteristic request seen so far.
func (d *FakeDriver) Requests() []Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Request(nil), d.requests...)
}

// MaxOutstanding is the highest number of acknowledged requests that were in flight together.
func (d *FakeDriver) MaxOutstanding() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxOut
}

// OpenLinks counts links that have not been closed or dropped.
func (d *FakeDriver) OpenLinks() int {
	d.mu.Lock()
	links := make([]*fakeLink, 0, len(d.links))
	for _, l := range d.links {
		links = append(links, l)
	}
	d.mu.Unlock()

	n := 0
	for _, l := range links {
		l.mu.Lock()
		if !l.closed {
			n++
		}
		l.mu.Unlock()
	}
	return n
}

func (d *FakeDriver) latestLink(address string) *fakeLink {
	d.mu.Lock()
	defer d.mu.Unlock()
	var latest *fakeLink
	for _, l := range d.links {
		if addrKey(l.address) == addrKey(address) && (latest == nil || l.id > latest.id) {
			latest = l
		}
	}
	return latest
}

func (d *FakeDriver) emit(ev device.Event) {
	d.events <- ev
}

func (d *FakeDriver) after(delay time.Duration, ev device.Event) {
	time.AfterFunc(delay, func() { d.emit(ev) })
}

func addrKey(address string) string {
	return strings.ToLower(address)
}

func charKey(service, characteristic string) string {
	return device.CanonicalID(service) + "/" + device.CanonicalID(characteristic)
}

type fakeLink struct {
	drv        *FakeDriver
	id         uint64
	address    string
	peripheral *FakePeripheral

	mu         sync.Mutex
	closed     bool
	subscribed map[string]bool
}

func (l *fakeLink) ID() uint64      { return l.id }
func (l *fakeLink) Address() string { return l.address }

func (l *fakeLink) markClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.closed = true
	return true
}

func (l *fakeLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *fakeLink) DiscoverServices() error {
	if l.isClosed() || l.peripheral == nil {
		return device.ErrNotConnected
	}
	p := l.peripheral
	l.drv.after(p.Latency, device.DiscoveryComplete{
		LinkID:   l.id,
		Address:  l.address,
		Services: p.ServiceInfos(),
		Err:      p.DiscoveryErr,
	})
	return nil
}

func (l *fakeLink) Read(opID uint64, service, characteristic string) error {
	return l.request(Request{OpID: opID, Kind: device.OpRead, Service: service, Characteristic: characteristic})
}

func (l *fakeLink) Write(opID uint64, service, characteristic string, payload []byte, withoutResponse bool) error {
	return l.request(Request{
		OpID: opID, Kind: device.OpWrite, Service: service, Characteristic: characteristic,
		Payload: append([]byte(nil), payload...), WithoutResp: withoutResponse,
	})
}

func (l *fakeLink) SetNotify(opID uint64, service, characteristic string, enable bool) error {
	return l.request(Request{OpID: opID, Kind: device.OpNotify, Service: service, Characteristic: characteristic, Enable: enable})
}

func (l *fakeLink) request(r Request) error {
	if l.isClosed() {
		return device.ErrNotConnected
	}
	p := l.peripheral
	if p == nil {
		return device.ErrNotConnected
	}
	c, ok := p.characteristic(r.Service, r.Characteristic)
	if !ok {
		return &device.NotFoundError{Resource: "characteristic", UUIDs: []string{r.Service, r.Characteristic}}
	}

	d := l.drv
	r.LinkID = l.id
	r.At = time.Now()
	d.mu.Lock()
	d.requests = append(d.requests, r)
	silent := c.Silent
	if !silent {
		d.outstanding++
		if d.outstanding > d.maxOut {
			d.maxOut = d.outstanding
		}
	}
	d.mu.Unlock()

	if silent {
		return nil
	}

	key := charKey(r.Service, r.Characteristic)
	done := device.OperationComplete{
		LinkID:         l.id,
		OpID:           r.OpID,
		Kind:           r.Kind,
		Address:        l.address,
		Service:        device.CanonicalID(r.Service),
		Characteristic: device.CanonicalID(r.Characteristic),
		Enabled:        r.Enable,
	}
	switch r.Kind {
	case device.OpRead:
		done.Value = p.value(key)
	case device.OpWrite:
		p.setValue(key, r.Payload)
	case device.OpNotify:
		l.mu.Lock()
		l.subscribed[key] = r.Enable
		l.mu.Unlock()
	}

	time.AfterFunc(p.Latency, func() {
		d.mu.Lock()
		d.outstanding--
		d.mu.Unlock()
		d.emit(done)
	})
	return nil
}

func (l *fakeLink) Close() error {
	if !l.markClosed() {
		return nil
	}
	l.drv.after(0, device.LinkDropped{LinkID: l.id, Address: l.address})
	return nil
}
