package session

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/opqueue"
)

// Listener receives the connection outcomes the session produces.
// Calls are made without the session lock held.
type Listener interface {
	// Connected reports the end of a connect attempt: discovery results on success, err otherwise.
	Connected(address string, services []device.ServiceInfo, err error)
	// Disconnected reports that the link is gone. err is nil for a requested disconnect.
	Disconnected(address string, err error)
}

// Session is the shared state of the one managed peripheral:
// connection state, current link handle, discovered topology and the operation queue.
type Session struct {
	logger   *logrus.Logger
	driver   device.Driver
	listener Listener
	queue    *opqueue.Queue

	mu       sync.RWMutex
	state    device.ConnectionState
	address  string
	link     device.Link
	topology *Topology
}

// New creates a disconnected session.
func New(driver device.Driver, listener Listener, logger *logrus.Logger, opts opqueue.Options) *Session {
	if logger == nil {
		logger = logrus.New()
	}
	s := &Session{
		logger:   logger,
		driver:   driver,
		listener: listener,
		state:    device.Disconnected,
	}
	s.queue = opqueue.New(s, logger, opts)
	return s
}

// Queue returns the operation queue bound to this session.
func (s *Session) Queue() *opqueue.Queue {
	return s.queue
}

// State returns the current connection state.
func (s *Session) State() device.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Address returns the address of the current or last connect attempt.
func (s *Session) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

// Topology returns the discovered topology; nil unless discovery completed on the current link.
func (s *Session) Topology() *Topology {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.topology
}

// CurrentLink returns the link operations may be dispatched on, or nil when not connected.
func (s *Session) CurrentLink() device.Link {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != device.Connected {
		return nil
	}
	return s.link
}

// IsCurrent reports whether linkID identifies the live link.
func (s *Session) IsCurrent(linkID uint64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isCurrentLocked(linkID)
}

func (s *Session) isCurrentLocked(linkID uint64) bool {
	return s.link != nil && s.link.ID() == linkID
}

// Admit checks that an operation on service/characteristic may be enqueued.
func (s *Session) Admit(service, characteristic string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != device.Connected {
		return &device.ConnectionError{State: device.NotConnected, Msg: fmt.Sprintf("state is %s", s.state)}
	}
	if _, err := s.topology.Characteristic(service, characteristic); err != nil {
		return err
	}
	return nil
}

// Enqueue admits and queues an operation, returning its id.
// Identifiers are canonicalized before the operation reaches the link.
func (s *Session) Enqueue(op *opqueue.Operation) (uint64, error) {
	if err := s.Admit(op.Service, op.Characteristic); err != nil {
		return 0, err
	}
	op.Service = device.CanonicalID(op.Service)
	op.Characteristic = device.CanonicalID(op.Characteristic)
	return s.queue.Enqueue(op), nil
}

// Complete routes an operation completion from the live link to the queue.
// Completions from stale links are ignored and false is returned.
func (s *Session) Complete(ev device.OperationComplete) bool {
	if !s.IsCurrent(ev.LinkID) {
		s.logger.WithFields(logrus.Fields{
			"link":  ev.LinkID,
			"op_id": ev.OpID,
		}).Debug("Ignoring completion from stale link")
		return false
	}
	s.queue.Complete(opqueue.Completion{OpID: ev.OpID, Err: ev.Err})
	return true
}
