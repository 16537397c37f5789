package goble

import (
	"github.com/srg/blesync/internal/device"
)

// NewSighting converts a go-ble advertisement into a device.Sighting.
// go-ble exposes only the connectable bit of the flags AD structure, so Flags carries that bit alone.
func NewSighting(adv Advertisement) device.Sighting {
	s := device.Sighting{
		LocalName:        adv.LocalName(),
		ManufacturerData: adv.ManufacturerData(),
		TxPowerLevel:     adv.TxPowerLevel(),
		RSSI:             adv.RSSI(),
	}
	if addr := adv.Addr(); addr != nil {
		s.Address = addr.String()
	}
	if adv.Connectable() {
		s.Flags |= device.FlagLEGeneralDiscoverable
	}

	for _, svc := range adv.Services() {
		s.Services = append(s.Services, svc.String())
	}
	for _, sd := range adv.ServiceData() {
		s.ServiceData = append(s.ServiceData, device.ServiceData{UUID: sd.UUID.String(), Data: sd.Data})
	}
	return s
}
