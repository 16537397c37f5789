// Package device defines the vocabulary shared between the radio driver and the
// components that sit on top of it.
//
// The package contains no behavior of its own beyond identifier canonicalization
// and error helpers. It describes:
//   - The asynchronous driver contract (Driver, Link) and the events a driver delivers
//   - Advertisement sightings and discovered GATT topology records
//   - Characteristic property bitmasks and their caller-facing names
//   - Adapter and connection states
//   - The error taxonomy used across the module
package device
