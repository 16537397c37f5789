package device

import (
	"errors"
	"fmt"
)

// NotFoundError represents an error when a GATT resource is not present in the discovered topology
type NotFoundError struct {
	Resource string   // "service", "characteristic", "descriptor"
	UUIDs    []string // One or more UUIDs (e.g., [serviceUUID] or [serviceUUID, charUUID])
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	parentResource := "service"
	if e.Resource == "descriptor" {
		parentResource = "characteristic"
	}
	return fmt.Sprintf("%s %q not found in %s %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], parentResource, e.UUIDs[0])
}

// ConnectionState errors

// LinkErrorState represents the specific kind of connection state failure
type LinkErrorState string

const (
	NotConnected     LinkErrorState = "not_connected"
	AlreadyConnected LinkErrorState = "already_connected"
	NotInitialized   LinkErrorState = "not_initialized"
)

// ConnectionError represents any connection-related problem
type ConnectionError struct {
	State LinkErrorState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is allows errors.Is to compare ConnectionError values by State
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
)

var (
	ErrAdapterUnavailable = errors.New("bluetooth adapter unavailable")
	ErrBluetoothOff       = errors.New("bluetooth is turned off")
	ErrDeviceNotFound     = errors.New("device not found")
	ErrLinkLost           = errors.New("link lost")
	ErrOperationTimeout   = errors.New("operation timed out")
	ErrUnsupported        = errors.New("unsupported")
	ErrInvalidArgument    = errors.New("invalid argument")

	// ErrInternal marks a broken internal invariant; it is never expected at runtime.
	ErrInternal = errors.New("internal invariant violation")
)

// Connect-failure codes reported to the caller.
const (
	CodeAdapterUnavailable = -1
	CodeDeviceNotFound     = -2
)

// ErrorCode maps an error to the numeric code carried by connect and disconnect events.
func ErrorCode(err error) int {
	if errors.Is(err, ErrDeviceNotFound) {
		return CodeDeviceNotFound
	}
	return CodeAdapterUnavailable
}

// IsConnectionState reports whether err is a ConnectionError with the given state
func IsConnectionState(err error, state LinkErrorState) bool {
	var cerr *ConnectionError
	if errors.As(err, &cerr) {
		return cerr.State == state
	}
	return false
}
