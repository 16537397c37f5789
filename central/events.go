package central

import (
	"encoding/json"
	"fmt"

	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/scanner"
)

// Event names delivered to callers.
const (
	NameStateChange             = "ble.stateChange"
	NameDiscover                = "ble.discover"
	NameConnect                 = "ble.connect"
	NameDisconnect              = "ble.disconnect"
	NameServicesDiscover        = "ble.servicesDiscover"
	NameCharacteristicsDiscover = "ble.characteristicsDiscover"
	NameDescriptorsDiscover     = "ble.descriptorsDiscover"
	NameData                    = "ble.data"
	NameWrite                   = "ble.write"
	NameNotify                  = "ble.notify"
)

// Event is anything the central reports to its caller.
type Event interface {
	Name() string
}

// EventError is the error payload of connect and disconnect events.
type EventError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`

	cause error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("%s (code %d)", e.Message, e.Code)
}

// Unwrap exposes the originating error to errors.Is within the process.
func (e *EventError) Unwrap() error {
	return e.cause
}

// NewEventError converts err into an event payload; nil stays nil.
func NewEventError(err error) *EventError {
	if err == nil {
		return nil
	}
	return &EventError{Code: device.ErrorCode(err), Message: err.Error(), cause: err}
}

// Bytes serializes as a JSON array of numbers instead of base64.
type Bytes []byte

func (b Bytes) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

func (b *Bytes) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return err
	}
	if ints == nil {
		*b = nil
		return nil
	}
	out := make(Bytes, len(ints))
	for i, v := range ints {
		out[i] = byte(v)
	}
	*b = out
	return nil
}

// CharacteristicSummary is one entry of a characteristics discovery result.
type CharacteristicSummary struct {
	UUID       string   `json:"uuid"`
	Properties []string `json:"properties"`
}

type StateChange struct {
	State string `json:"state"`
}

type Discovered struct {
	scanner.Discovery
}

type Connected struct {
	Address  string      `json:"address"`
	Services []string    `json:"services,omitempty"`
	Error    *EventError `json:"error,omitempty"`
}

type Disconnected struct {
	Address string      `json:"address"`
	Error   *EventError `json:"error,omitempty"`
}

type ServicesDiscovered struct {
	Address  string   `json:"address"`
	Services []string `json:"services"`
}

type CharacteristicsDiscovered struct {
	Address         string                  `json:"address"`
	Service         string                  `json:"service"`
	Characteristics []CharacteristicSummary `json:"characteristics"`
}

type DescriptorsDiscovered struct {
	Address        string   `json:"address"`
	Service        string   `json:"service"`
	Characteristic string   `json:"characteristic"`
	Descriptors    []string `json:"descriptors"`
}

// Data carries a read result or, with IsNotification set, a pushed value.
type Data struct {
	Address        string `json:"address"`
	Service        string `json:"service"`
	Characteristic string `json:"characteristic"`
	Value          Bytes  `json:"value"`
	IsNotification bool   `json:"isNotification"`
}

type WriteAck struct {
	Address        string `json:"address"`
	Service        string `json:"service"`
	Characteristic string `json:"characteristic"`
}

type NotifyAck struct {
	Address        string `json:"address"`
	Service        string `json:"service"`
	Characteristic string `json:"characteristic"`
	Enabled        bool   `json:"enabled"`
}

func (StateChange) Name() string               { return NameStateChange }
func (Discovered) Name() string                { return NameDiscover }
func (Connected) Name() string                 { return NameConnect }
func (Disconnected) Name() string              { return NameDisconnect }
func (ServicesDiscovered) Name() string        { return NameServicesDiscover }
func (CharacteristicsDiscovered) Name() string { return NameCharacteristicsDiscover }
func (DescriptorsDiscovered) Name() string     { return NameDescriptorsDiscover }
func (Data) Name() string                      { return NameData }
func (WriteAck) Name() string                  { return NameWrite }
func (NotifyAck) Name() string                 { return NameNotify }

// MarshalEvent renders an event as a flat JSON object with its name under "name".
func MarshalEvent(ev Event) ([]byte, error) {
	raw, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", ev.Name(), err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("failed to flatten %s: %w", ev.Name(), err)
	}
	fields["name"] = ev.Name()
	return json.Marshal(fields)
}
