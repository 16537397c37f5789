//go:build !darwin

package main

const (
	exampleDeviceAddress = "AA:BB:CC:DD:EE:FF"
	deviceAddressNote    = "Device address format: 48-bit MAC, colon separated\n  Use 'blesync scan' to discover devices"
)
