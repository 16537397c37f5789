package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/blesync/internal/device"
)

var propertyBits = []struct {
	from ble.Property
	to   device.Property
}{
	{ble.CharBroadcast, device.PropBroadcast},
	{ble.CharRead, device.PropRead},
	{ble.CharWriteNR, device.PropWriteWithoutResponse},
	{ble.CharWrite, device.PropWrite},
	{ble.CharNotify, device.PropNotify},
	{ble.CharIndicate, device.PropIndicate},
	{ble.CharSignedWrite, device.PropAuthenticatedSignedWrites},
	{ble.CharExtended, device.PropExtendedProperties},
}

// NewProperties converts go-ble property flags into the device bitmask.
func NewProperties(p ble.Property) device.Property {
	var out device.Property
	for _, b := range propertyBits {
		if p&b.from != 0 {
			out |= b.to
		}
	}
	return out
}

// useIndication reports whether a subscription must use indications rather than notifications.
func useIndication(p ble.Property) bool {
	return p&ble.CharNotify == 0 && p&ble.CharIndicate != 0
}
