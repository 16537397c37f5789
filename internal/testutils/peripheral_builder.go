package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/srg/blesync/internal/device"
)

// CharacteristicConfig represents a characteristic of a fake peripheral
type CharacteristicConfig struct {
	UUID        string   `json:"uuid"`
	Properties  string   `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value       []byte   `json:"value,omitempty"`
	Descriptors []string `json:"descriptors,omitempty"`
	Silent      bool     `json:"silent,omitempty"` // requests are never acknowledged
}

// ServiceConfig represents a service of a fake peripheral
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralConfig represents the complete fake peripheral
type PeripheralConfig struct {
	Address  string          `json:"address"`
	Services []ServiceConfig `json:"services"`
}

// FakePeripheral is the remote side served by FakeDriver.
type FakePeripheral struct {
	Address       string
	Services      []ServiceConfig
	Latency       time.Duration
	DiscoveryErr  error
	NeverConnects bool

	mu     sync.Mutex
	values map[string][]byte
}

func (p *FakePeripheral) characteristic(service, characteristic string) (CharacteristicConfig, bool) {
	for _, s := range p.Services {
		if !device.SameID(s.UUID, service) {
			continue
		}
		for _, c := range s.Characteristics {
			if device.SameID(c.UUID, characteristic) {
				return c, true
			}
		}
	}
	return CharacteristicConfig{}, false
}

func (p *FakePeripheral) value(key string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.values[key]...)
}

func (p *FakePeripheral) setValue(key string, v []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = append([]byte(nil), v...)
}

// Value returns the current value of a characteristic.
func (p *FakePeripheral) Value(service, characteristic string) []byte {
	return p.value(charKey(service, characteristic))
}

// ServiceInfos returns the discovery records the peripheral reports.
func (p *FakePeripheral) ServiceInfos() []device.ServiceInfo {
	out := make([]device.ServiceInfo, 0, len(p.Services))
	for _, s := range p.Services {
		si := device.ServiceInfo{UUID: device.CanonicalID(s.UUID)}
		for _, c := range s.Characteristics {
			si.Characteristics = append(si.Characteristics, device.CharacteristicInfo{
				UUID:        device.CanonicalID(c.UUID),
				Properties:  ParseProperties(c.Properties),
				Descriptors: device.CanonicalIDs(c.Descriptors),
			})
		}
		out = append(out, si)
	}
	return out
}

// ParseProperties converts "read,write,notify" into a bitmask. Unknown names panic.
func ParseProperties(s string) device.Property {
	var p device.Property
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		bit, ok := propertyByName[strings.ToLower(name)]
		if !ok {
			panic(fmt.Sprintf("ParseProperties: unknown property %q", name))
		}
		p |= bit
	}
	return p
}

var propertyByName = map[string]device.Property{
	"broadcast":                 device.PropBroadcast,
	"read":                      device.PropRead,
	"writewithoutresponse":      device.PropWriteWithoutResponse,
	"write-without-response":    device.PropWriteWithoutResponse,
	"write":                     device.PropWrite,
	"notify":                    device.PropNotify,
	"indicate":                  device.PropIndicate,
	"authenticatedsignedwrites": device.PropAuthenticatedSignedWrites,
	"extendedproperties":        device.PropExtendedProperties,
}

// PeripheralBuilder builds fake peripherals with a fluent API or from JSON
type PeripheralBuilder struct {
	cfg          PeripheralConfig
	latency      time.Duration
	discoveryErr error
	unreachable  bool
}

// NewPeripheralBuilder creates an empty builder
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{cfg: PeripheralConfig{Services: []ServiceConfig{}}}
}

// WithAddress sets the peripheral address
func (b *PeripheralBuilder) WithAddress(address string) *PeripheralBuilder {
	b.cfg.Address = address
	return b
}

// WithService adds a service
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.cfg.Services = append(b.cfg.Services, ServiceConfig{UUID: uuid})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte, descriptors ...string) *PeripheralBuilder {
	if len(b.cfg.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}
	last := &b.cfg.Services[len(b.cfg.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{
		UUID:        uuid,
		Properties:  properties,
		Value:       value,
		Descriptors: descriptors,
	})
	return b
}

// WithSilentCharacteristic marks an existing characteristic as never acknowledging requests
func (b *PeripheralBuilder) WithSilentCharacteristic(service, characteristic string) *PeripheralBuilder {
	for si := range b.cfg.Services {
		if !device.SameID(b.cfg.Services[si].UUID, service) {
			continue
		}
		for ci := range b.cfg.Services[si].Characteristics {
			if device.SameID(b.cfg.Services[si].Characteristics[ci].UUID, characteristic) {
				b.cfg.Services[si].Characteristics[ci].Silent = true
				return b
			}
		}
	}
	panic(fmt.Sprintf("WithSilentCharacteristic: %s/%s not configured", service, characteristic))
}

// WithLatency delays every acknowledgement
func (b *PeripheralBuilder) WithLatency(d time.Duration) *PeripheralBuilder {
	b.latency = d
	return b
}

// WithDiscoveryError makes service discovery fail
func (b *PeripheralBuilder) WithDiscoveryError(err error) *PeripheralBuilder {
	b.discoveryErr = err
	return b
}

// WithNeverConnects keeps the link in the connecting phase forever
func (b *PeripheralBuilder) WithNeverConnects() *PeripheralBuilder {
	b.unreachable = true
	return b
}

// FromJSON fills the peripheral from JSON with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)
	var cfg PeripheralConfig
	if err := json.Unmarshal([]byte(jsonStr), &cfg); err != nil {
		panic(fmt.Sprintf("FromJSON: invalid peripheral JSON: %v", err))
	}
	if cfg.Address != "" {
		b.cfg.Address = cfg.Address
	}
	b.cfg.Services = append(b.cfg.Services, cfg.Services...)
	return b
}

// Build creates the FakePeripheral
func (b *PeripheralBuilder) Build() *FakePeripheral {
	p := &FakePeripheral{
		Address:       b.cfg.Address,
		Services:      b.cfg.Services,
		Latency:       b.latency,
		DiscoveryErr:  b.discoveryErr,
		NeverConnects: b.unreachable,
		values:        make(map[string][]byte),
	}
	for _, s := range p.Services {
		for _, c := range s.Characteristics {
			p.values[charKey(s.UUID, c.UUID)] = append([]byte(nil), c.Value...)
		}
	}
	return p
}
