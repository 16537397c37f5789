package testutils

import (
	"encoding/json"
	"fmt"

	"github.com/srg/blesync/internal/device"
)

// AdvertisementBuilder builds device.Sighting values for scan tests.
// Builders start connectable, matching most real advertisers.
type AdvertisementBuilder struct {
	s device.Sighting
}

// advertisementJSON is the FromJSON schema
type advertisementJSON struct {
	Name             string            `json:"name"`
	Address          string            `json:"address"`
	RSSI             int               `json:"rssi"`
	Services         []string          `json:"services"`
	ManufacturerData []byte            `json:"manufacturerData"`
	ServiceData      map[string][]byte `json:"serviceData"`
	TxPower          *int              `json:"txPower"`
	Connectable      *bool             `json:"connectable"`
}

// NewAdvertisementBuilder creates a builder for a connectable advertisement without tx power.
func NewAdvertisementBuilder() *AdvertisementBuilder {
	return &AdvertisementBuilder{s: device.Sighting{
		Flags:        device.FlagLEGeneralDiscoverable,
		TxPowerLevel: 127,
	}}
}

// WithName sets the local name for the advertisement.
func (b *AdvertisementBuilder) WithName(name string) *AdvertisementBuilder {
	b.s.LocalName = name
	return b
}

// WithAddress sets the device address for the advertisement.
func (b *AdvertisementBuilder) WithAddress(addr string) *AdvertisementBuilder {
	b.s.Address = addr
	return b
}

// WithRSSI sets the signal strength for the advertisement.
func (b *AdvertisementBuilder) WithRSSI(rssi int) *AdvertisementBuilder {
	b.s.RSSI = rssi
	return b
}

// WithServices adds advertised service UUIDs in any accepted spelling.
func (b *AdvertisementBuilder) WithServices(uuids ...string) *AdvertisementBuilder {
	b.s.Services = append(b.s.Services, uuids...)
	return b
}

// WithManufacturerData sets the manufacturer-specific data.
func (b *AdvertisementBuilder) WithManufacturerData(data []byte) *AdvertisementBuilder {
	b.s.ManufacturerData = data
	return b
}

// WithServiceData appends service-specific data for the given service UUID.
func (b *AdvertisementBuilder) WithServiceData(uuid string, data []byte) *AdvertisementBuilder {
	b.s.ServiceData = append(b.s.ServiceData, device.ServiceData{UUID: uuid, Data: data})
	return b
}

// WithTxPower sets the transmission power level.
func (b *AdvertisementBuilder) WithTxPower(power int) *AdvertisementBuilder {
	b.s.TxPowerLevel = power
	return b
}

// WithConnectable sets or clears the connectable flag bit.
func (b *AdvertisementBuilder) WithConnectable(c bool) *AdvertisementBuilder {
	if c {
		b.s.Flags |= device.FlagLEGeneralDiscoverable
	} else {
		b.s.Flags &^= device.FlagLEGeneralDiscoverable
	}
	return b
}

// WithFlags sets the raw advertisement flags.
func (b *AdvertisementBuilder) WithFlags(flags byte) *AdvertisementBuilder {
	b.s.Flags = flags
	return b
}

// FromJSON fills builder fields from a JSON string with format support.
// Panics on invalid JSON as this is intended for test data setup.
func (b *AdvertisementBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *AdvertisementBuilder {
	jsonStr := fmt.Sprintf(jsonStrFmt, args...)
	var a advertisementJSON
	if err := json.Unmarshal([]byte(jsonStr), &a); err != nil {
		panic(fmt.Sprintf("FromJSON: invalid advertisement JSON: %v", err))
	}

	b.WithName(a.Name).WithAddress(a.Address).WithRSSI(a.RSSI).WithServices(a.Services...)
	if a.ManufacturerData != nil {
		b.WithManufacturerData(a.ManufacturerData)
	}
	for uuid, data := range a.ServiceData {
		b.WithServiceData(uuid, data)
	}
	if a.TxPower != nil {
		b.WithTxPower(*a.TxPower)
	}
	if a.Connectable != nil {
		b.WithConnectable(*a.Connectable)
	}
	return b
}

// Build returns a copy of the sighting.
func (b *AdvertisementBuilder) Build() device.Sighting {
	s := b.s
	s.Services = append([]string(nil), b.s.Services...)
	s.ServiceData = append([]device.ServiceData(nil), b.s.ServiceData...)
	return s
}
