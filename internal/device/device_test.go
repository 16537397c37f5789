package device

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPropertyNames(t *testing.T) {
	assert.Empty(t, Property(0).Names())
	assert.Equal(t, []string{"read", "notify"}, (PropRead | PropNotify).Names())
	assert.Equal(t, []string{
		"broadcast", "read", "writeWithoutResponse", "write",
		"notify", "indicate", "authenticatedSignedWrites", "extendedProperties",
	}, Property(0xFF).Names(), "all eight bits MUST map to names in bit order")

	assert.True(t, (PropRead | PropWrite).Has(PropWrite))
	assert.False(t, PropRead.Has(PropRead|PropWrite))
}

func TestAdapterStateString(t *testing.T) {
	cases := map[AdapterState]string{
		AdapterUnknown:     "unknown",
		AdapterUnsupported: "unsupported",
		AdapterPoweredOff:  "poweredOff",
		AdapterPoweredOn:   "poweredOn",
		AdapterTurningOff:  "turningOff",
		AdapterTurningOn:   "turningOn",
		AdapterState(42):   "unknown",
	}
	for s, want := range cases {
		assert.Equal(t, want, s.String())
	}
}

func TestSightingConnectable(t *testing.T) {
	assert.True(t, Sighting{Flags: 0x06}.Connectable())
	assert.False(t, Sighting{Flags: 0x04}.Connectable())
	assert.False(t, Sighting{}.Connectable())
}

func TestNotFoundError(t *testing.T) {
	assert.Equal(t, `service "180d" not found`, (&NotFoundError{Resource: "service", UUIDs: []string{"180d"}}).Error())
	assert.Equal(t, `characteristic "2a37" not found in service "180d"`,
		(&NotFoundError{Resource: "characteristic", UUIDs: []string{"180d", "2a37"}}).Error())
	assert.Equal(t, `descriptor "2902" not found in characteristic "2a37"`,
		(&NotFoundError{Resource: "descriptor", UUIDs: []string{"2a37", "2902"}}).Error())

	var nf *NotFoundError
	wrapped := fmt.Errorf("read: %w", &NotFoundError{Resource: "service", UUIDs: []string{"180d"}})
	assert.True(t, errors.As(wrapped, &nf), "NotFoundError MUST survive wrapping")
}

func TestConnectionErrorIs(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", &ConnectionError{State: NotConnected, Msg: "link gone"})
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.NotErrorIs(t, err, ErrAlreadyConnected)
	assert.True(t, IsConnectionState(err, NotConnected))
	assert.Equal(t, "not_connected: link gone", errors.Unwrap(err).Error())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, CodeDeviceNotFound, ErrorCode(fmt.Errorf("open: %w", ErrDeviceNotFound)))
	assert.Equal(t, CodeAdapterUnavailable, ErrorCode(ErrAdapterUnavailable))
	assert.Equal(t, CodeAdapterUnavailable, ErrorCode(errors.New("anything else")))
	assert.Equal(t, CodeAdapterUnavailable, ErrorCode(fmt.Errorf("%w: address is required", ErrInvalidArgument)))
}
