package device

// Property is the characteristic properties bitmask as advertised by the peripheral.
type Property uint8

const (
	PropBroadcast                 Property = 0x01
	PropRead                      Property = 0x02
	PropWriteWithoutResponse      Property = 0x04
	PropWrite                     Property = 0x08
	PropNotify                    Property = 0x10
	PropIndicate                  Property = 0x20
	PropAuthenticatedSignedWrites Property = 0x40
	PropExtendedProperties        Property = 0x80
)

var propertyNames = []struct {
	bit  Property
	name string
}{
	{PropBroadcast, "broadcast"},
	{PropRead, "read"},
	{PropWriteWithoutResponse, "writeWithoutResponse"},
	{PropWrite, "write"},
	{PropNotify, "notify"},
	{PropIndicate, "indicate"},
	{PropAuthenticatedSignedWrites, "authenticatedSignedWrites"},
	{PropExtendedProperties, "extendedProperties"},
}

// Has reports whether every bit of q is set in p.
func (p Property) Has(q Property) bool {
	return p&q == q
}

// Names returns the caller-facing names of the set bits in ascending bit order.
func (p Property) Names() []string {
	names := make([]string, 0, len(propertyNames))
	for _, pn := range propertyNames {
		if p&pn.bit != 0 {
			names = append(names, pn.name)
		}
	}
	return names
}
