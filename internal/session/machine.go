package session

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
)

// Connect opens a new link to address, tearing down any prior link first.
// Synchronous failures are reported to the listener and returned.
func (s *Session) Connect(address string) error {
	log := s.logger.WithField("address", address)

	if address == "" {
		err := fmt.Errorf("%w: address is required", device.ErrInvalidArgument)
		log.WithError(err).Warn("Connect rejected")
		s.listener.Connected(address, nil, err)
		return err
	}

	s.mu.Lock()
	prev, prevState := s.detachLocked()
	s.mu.Unlock()
	if prev != nil {
		log.WithFields(logrus.Fields{
			"previous": prev.Address(),
			"state":    prevState.String(),
		}).Info("Replacing existing link")
	}
	s.teardown(prev)

	// Held across Open so the link is recorded before its first event can be routed.
	s.mu.Lock()
	link, err := s.driver.Open(address)
	if err != nil {
		s.address = address
		s.mu.Unlock()
		log.WithError(err).Warn("Failed to open link")
		s.listener.Connected(address, nil, err)
		return err
	}
	s.link = link
	s.address = address
	s.state = device.Connecting
	s.mu.Unlock()

	log.WithField("link", link.ID()).Info("Connecting...")
	return nil
}

// Disconnect closes the current link. Without a link the listener receives ErrNotInitialized.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	address := s.address
	prev, _ := s.detachLocked()
	s.mu.Unlock()

	if prev == nil {
		err := &device.ConnectionError{State: device.NotInitialized, Msg: "no link to disconnect"}
		s.logger.WithField("address", address).Debug("Disconnect without link")
		s.listener.Disconnected(address, err)
		return err
	}

	s.teardown(prev)
	s.logger.WithField("address", address).Info("Disconnected")
	s.listener.Disconnected(address, nil)
	return nil
}

// HandleEvent applies a driver link event. Events of stale links are ignored.
// It reports whether the event belonged to the live link.
func (s *Session) HandleEvent(ev device.Event) bool {
	switch e := ev.(type) {
	case device.LinkEstablished:
		return s.onLinkEstablished(e)
	case device.DiscoveryComplete:
		return s.onDiscoveryComplete(e)
	case device.LinkDropped:
		return s.onLinkDropped(e)
	case device.OperationComplete:
		return s.Complete(e)
	default:
		return false
	}
}

func (s *Session) onLinkEstablished(e device.LinkEstablished) bool {
	s.mu.Lock()
	if !s.isCurrentLocked(e.LinkID) || s.state != device.Connecting {
		s.mu.Unlock()
		s.logger.WithField("link", e.LinkID).Debug("Ignoring stale link establishment")
		return false
	}
	s.state = device.Connected
	link, address := s.link, s.address
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{"address": address, "link": e.LinkID}).Info("Link established, discovering services")
	if err := link.DiscoverServices(); err != nil {
		s.logger.WithError(err).Warn("Failed to start service discovery")
		s.listener.Connected(address, nil, err)
	}
	return true
}

func (s *Session) onDiscoveryComplete(e device.DiscoveryComplete) bool {
	s.mu.Lock()
	if !s.isCurrentLocked(e.LinkID) || s.state != device.Connected {
		s.mu.Unlock()
		s.logger.WithField("link", e.LinkID).Debug("Ignoring stale discovery result")
		return false
	}
	address := s.address
	var services []device.ServiceInfo
	if e.Err == nil {
		s.topology = NewTopology(e.Services)
		services = s.topology.ServiceInfos()
	} else {
		s.topology = nil
	}
	s.mu.Unlock()

	log := s.logger.WithField("address", address)
	if e.Err != nil {
		log.WithError(e.Err).Warn("Service discovery failed")
	} else {
		log.WithField("services", len(services)).Info("Services discovered")
	}
	s.listener.Connected(address, services, e.Err)
	return true
}

func (s *Session) onLinkDropped(e device.LinkDropped) bool {
	s.mu.Lock()
	if !s.isCurrentLocked(e.LinkID) {
		s.mu.Unlock()
		s.logger.WithField("link", e.LinkID).Debug("Ignoring drop of stale link")
		return false
	}
	address := s.address
	prev, prevState := s.detachLocked()
	s.mu.Unlock()

	s.teardown(prev)
	s.logger.WithFields(logrus.Fields{
		"address": address,
		"from":    prevState.String(),
		"error":   e.Err,
	}).Info("Link dropped")
	s.listener.Disconnected(address, e.Err)
	return true
}

// detachLocked resets the session to Disconnected and hands back the old link for teardown.
func (s *Session) detachLocked() (device.Link, device.ConnectionState) {
	prev, prevState := s.link, s.state
	s.link = nil
	s.state = device.Disconnected
	s.topology = nil
	return prev, prevState
}

// teardown must run without the lock: stopping the queue joins a worker that reads CurrentLink.
func (s *Session) teardown(prev device.Link) {
	s.queue.Stop()
	if prev == nil {
		return
	}
	if err := prev.Close(); err != nil {
		s.logger.WithError(err).Debug("Link close failed")
	}
}
