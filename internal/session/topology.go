package session

import (
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/srg/blesync/internal/device"
)

// Topology is the discovered attribute tree of the connected peripheral, kept in discovery order.
// A nil *Topology is empty. Keys are canonical identifiers.
type Topology struct {
	services *orderedmap.OrderedMap[string, *orderedmap.OrderedMap[string, device.CharacteristicInfo]]
}

// NewTopology builds a topology from discovery results. Duplicate identifiers keep the first entry's position.
func NewTopology(services []device.ServiceInfo) *Topology {
	t := &Topology{
		services: orderedmap.New[string, *orderedmap.OrderedMap[string, device.CharacteristicInfo]](),
	}
	for _, svc := range services {
		svcID := device.CanonicalID(svc.UUID)
		chars, ok := t.services.Get(svcID)
		if !ok {
			chars = orderedmap.New[string, device.CharacteristicInfo]()
			t.services.Set(svcID, chars)
		}
		for _, c := range svc.Characteristics {
			c.UUID = device.CanonicalID(c.UUID)
			c.Descriptors = device.CanonicalIDs(c.Descriptors)
			chars.Set(c.UUID, c)
		}
	}
	return t
}

// Empty reports whether no service has been discovered.
func (t *Topology) Empty() bool {
	return t == nil || t.services.Len() == 0
}

// Services returns the service identifiers in discovery order.
func (t *Topology) Services() []string {
	if t.Empty() {
		return nil
	}
	out := make([]string, 0, t.services.Len())
	for pair := t.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Key)
	}
	return out
}

// Characteristics returns the characteristics of a service in discovery order.
func (t *Topology) Characteristics(service string) ([]device.CharacteristicInfo, error) {
	chars, err := t.service(service)
	if err != nil {
		return nil, err
	}
	out := make([]device.CharacteristicInfo, 0, chars.Len())
	for pair := chars.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out, nil
}

// Characteristic looks up one characteristic.
func (t *Topology) Characteristic(service, characteristic string) (device.CharacteristicInfo, error) {
	chars, err := t.service(service)
	if err != nil {
		return device.CharacteristicInfo{}, err
	}
	c, ok := chars.Get(device.CanonicalID(characteristic))
	if !ok {
		return device.CharacteristicInfo{}, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, characteristic}}
	}
	return c, nil
}

// Descriptors returns the descriptor identifiers of a characteristic.
func (t *Topology) Descriptors(service, characteristic string) ([]string, error) {
	c, err := t.Characteristic(service, characteristic)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), c.Descriptors...), nil
}

// ServiceInfos flattens the topology back into discovery records.
func (t *Topology) ServiceInfos() []device.ServiceInfo {
	if t.Empty() {
		return nil
	}
	out := make([]device.ServiceInfo, 0, t.services.Len())
	for pair := t.services.Oldest(); pair != nil; pair = pair.Next() {
		svc := device.ServiceInfo{UUID: pair.Key}
		for c := pair.Value.Oldest(); c != nil; c = c.Next() {
			svc.Characteristics = append(svc.Characteristics, c.Value)
		}
		out = append(out, svc)
	}
	return out
}

func (t *Topology) service(service string) (*orderedmap.OrderedMap[string, device.CharacteristicInfo], error) {
	if t.Empty() {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	chars, ok := t.services.Get(device.CanonicalID(service))
	if !ok {
		return nil, &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	return chars, nil
}
