package opqueue

import (
	"fmt"

	"github.com/srg/blesync/internal/device"
)

// WriteMode selects acknowledged or unacknowledged writes.
type WriteMode int

const (
	WithResponse WriteMode = iota
	WithoutResponse
)

// Operation is one characteristic request waiting for, or occupying, the radio.
type Operation struct {
	ID             uint64
	Kind           device.OpKind
	Service        string
	Characteristic string
	Payload        []byte
	WriteMode      WriteMode
	Enable         bool // Notify only

	// ElapsedPolls counts poll intervals spent waiting for the completion.
	ElapsedPolls int
}

// NewRead creates a read operation.
func NewRead(service, characteristic string) *Operation {
	return &Operation{Kind: device.OpRead, Service: service, Characteristic: characteristic}
}

// NewWrite creates a write operation. The payload is copied.
func NewWrite(service, characteristic string, payload []byte, mode WriteMode) *Operation {
	return &Operation{
		Kind:           device.OpWrite,
		Service:        service,
		Characteristic: characteristic,
		Payload:        append([]byte(nil), payload...),
		WriteMode:      mode,
	}
}

// NewNotify creates a subscription toggle.
func NewNotify(service, characteristic string, enable bool) *Operation {
	return &Operation{Kind: device.OpNotify, Service: service, Characteristic: characteristic, Enable: enable}
}

func (op *Operation) String() string {
	return fmt.Sprintf("%s#%d(%s/%s)", op.Kind, op.ID, op.Service, op.Characteristic)
}

// dispatch hands the operation to the link without waiting for its outcome.
func (op *Operation) dispatch(link device.Link) error {
	switch op.Kind {
	case device.OpRead:
		return link.Read(op.ID, op.Service, op.Characteristic)
	case device.OpWrite:
		return link.Write(op.ID, op.Service, op.Characteristic, op.Payload, op.WriteMode == WithoutResponse)
	case device.OpNotify:
		return link.SetNotify(op.ID, op.Service, op.Characteristic, op.Enable)
	default:
		return fmt.Errorf("%w: unknown operation kind %d", device.ErrInternal, op.Kind)
	}
}
