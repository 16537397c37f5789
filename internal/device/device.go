package device

// AdapterState is the power state of the local radio adapter.
type AdapterState int

const (
	AdapterUnknown AdapterState = iota
	AdapterUnsupported
	AdapterPoweredOff
	AdapterPoweredOn
	AdapterTurningOff
	AdapterTurningOn
)

// String returns the caller-facing name of the adapter state.
func (s AdapterState) String() string {
	switch s {
	case AdapterUnsupported:
		return "unsupported"
	case AdapterPoweredOff:
		return "poweredOff"
	case AdapterPoweredOn:
		return "poweredOn"
	case AdapterTurningOff:
		return "turningOff"
	case AdapterTurningOn:
		return "turningOn"
	default:
		return "unknown"
	}
}

// ConnectionState is the link state of the managed peripheral.
type ConnectionState int

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// ServiceData is a single service-data entry of an advertisement.
type ServiceData struct {
	UUID string
	Data []byte
}

// Sighting is one advertisement observed while scanning.
// It is not retained beyond the duplicate check.
type Sighting struct {
	Address          string
	LocalName        string
	Services         []string
	ServiceData      []ServiceData
	ManufacturerData []byte
	TxPowerLevel     int
	RSSI             int
	Flags            byte
}

// FlagLEGeneralDiscoverable is bit 1 of the advertisement flags AD structure.
// The caller-facing connectable flag is derived from it.
const FlagLEGeneralDiscoverable byte = 0x02

// Connectable reports whether the advertisement flags mark the peripheral as connectable.
func (s Sighting) Connectable() bool {
	return s.Flags&FlagLEGeneralDiscoverable != 0
}

// CharacteristicInfo describes a discovered characteristic.
type CharacteristicInfo struct {
	UUID        string
	Properties  Property
	Descriptors []string
}

// ServiceInfo describes a discovered service and its characteristics in discovery order.
type ServiceInfo struct {
	UUID            string
	Characteristics []CharacteristicInfo
}

// Driver is the asynchronous radio driver.
//
// Requests return as soon as they are handed to the radio; their outcome arrives
// later on the Events channel. A driver gives no guarantee that every request is
// ever acknowledged.
type Driver interface {
	AdapterState() AdapterState
	// Open starts connecting to address and returns the handle of the new link.
	// LinkEstablished or LinkDropped for that handle follows on Events.
	Open(address string) (Link, error)
	StartScan(allowDuplicates bool) error
	StopScan() error
	Events() <-chan Event
}

// Link is one driver connection handle. A handle is never reused across reconnects.
type Link interface {
	ID() uint64
	Address() string
	DiscoverServices() error
	Read(opID uint64, service, characteristic string) error
	Write(opID uint64, service, characteristic string, payload []byte, withoutResponse bool) error
	SetNotify(opID uint64, service, characteristic string, enable bool) error
	Close() error
}

// Event is a signal delivered by the driver on its own goroutines.
type Event interface {
	isDriverEvent()
}

// AdapterStateChanged reports a new adapter power state.
type AdapterStateChanged struct {
	State AdapterState
}

// AdvertisementSeen carries one or more sightings. Batched deliveries carry several.
type AdvertisementSeen struct {
	Sightings []Sighting
}

// ScanFailed reports that the driver could not start or continue a scan.
type ScanFailed struct {
	Err error
}

// LinkEstablished reports that the link is up.
type LinkEstablished struct {
	LinkID  uint64
	Address string
}

// LinkDropped reports that the link went down, either on request or unexpectedly.
type LinkDropped struct {
	LinkID  uint64
	Address string
	Err     error
}

// DiscoveryComplete reports the outcome of DiscoverServices.
type DiscoveryComplete struct {
	LinkID   uint64
	Address  string
	Services []ServiceInfo
	Err      error
}

// OpKind identifies what a completion acknowledges.
type OpKind int

const (
	OpRead OpKind = iota
	OpWrite
	OpNotify
)

func (k OpKind) String() string {
	switch k {
	case OpWrite:
		return "write"
	case OpNotify:
		return "notify"
	default:
		return "read"
	}
}

// OperationComplete acknowledges a Read, Write or SetNotify request.
type OperationComplete struct {
	LinkID         uint64
	OpID           uint64
	Kind           OpKind
	Address        string
	Service        string
	Characteristic string
	Value          []byte
	Enabled        bool // OpNotify: the subscription state requested
	Err            error
}

// Notification carries a value pushed by the peripheral after SetNotify.
type Notification struct {
	LinkID         uint64
	Address        string
	Service        string
	Characteristic string
	Value          []byte
}

func (AdapterStateChanged) isDriverEvent() {}
func (AdvertisementSeen) isDriverEvent()   {}
func (ScanFailed) isDriverEvent()          {}
func (LinkEstablished) isDriverEvent()     {}
func (LinkDropped) isDriverEvent()         {}
func (DiscoveryComplete) isDriverEvent()   {}
func (OperationComplete) isDriverEvent()   {}
func (Notification) isDriverEvent()        {}
