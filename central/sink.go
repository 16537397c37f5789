package central

// EventSink receives caller events. Emit is called from the event pump and from
// caller goroutines, so implementations must be safe for concurrent use.
type EventSink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ev Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// ChannelSink buffers events in a bounded channel. When full, the oldest event is dropped,
// so the pump never blocks on a slow reader.
type ChannelSink struct {
	ch chan Event
}

// NewChannelSink creates a sink holding up to capacity events.
func NewChannelSink(capacity int) *ChannelSink {
	if capacity <= 0 {
		panic("central: sink capacity must be > 0")
	}
	return &ChannelSink{ch: make(chan Event, capacity)}
}

// C returns the receive side.
func (s *ChannelSink) C() <-chan Event {
	return s.ch
}

func (s *ChannelSink) Emit(ev Event) {
	for {
		select {
		case s.ch <- ev:
			return
		default:
		}
		select {
		case <-s.ch: // drop oldest
		default:
		}
	}
}
