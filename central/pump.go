package central

import (
	"context"

	"github.com/sirupsen/logrus"
	"github.com/srg/blesync/internal/device"
	"github.com/srg/blesync/internal/groutine"
)

// pump is the single consumer of the driver's event stream.
func (c *Central) pump(ctx context.Context) {
	log := c.logger.WithField("goroutine", groutine.GetName(ctx))
	log.Debug("Event pump started")
	defer log.Debug("Event pump stopped")

	events := c.driver.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				log.Debug("Driver event stream closed")
				return
			}
			c.route(ev)
		}
	}
}

func (c *Central) route(ev device.Event) {
	switch e := ev.(type) {
	case device.AdapterStateChanged:
		c.logger.WithField("state", e.State.String()).Info("Adapter state changed")
		c.sink.Emit(StateChange{State: e.State.String()})

	case device.AdvertisementSeen:
		for _, d := range c.scanner.AcceptAll(e.Sightings) {
			c.sink.Emit(Discovered{Discovery: d})
		}

	case device.ScanFailed:
		c.logger.WithError(e.Err).Warn("Scan failed")
		c.scanner.Stop()
		c.sink.Emit(StateChange{State: c.driver.AdapterState().String()})

	case device.OperationComplete:
		if !c.session.HandleEvent(e) {
			return
		}
		c.emitCompletion(e)

	case device.Notification:
		if !c.session.IsCurrent(e.LinkID) {
			return
		}
		c.sink.Emit(Data{
			Address:        e.Address,
			Service:        device.CanonicalID(e.Service),
			Characteristic: device.CanonicalID(e.Characteristic),
			Value:          Bytes(e.Value),
			IsNotification: true,
		})

	default:
		c.session.HandleEvent(ev)
	}
}

// emitCompletion reports a completion from the live link. Results are taken from the driver
// event itself, not from the operation the queue was waiting on.
func (c *Central) emitCompletion(e device.OperationComplete) {
	svc, chr := device.CanonicalID(e.Service), device.CanonicalID(e.Characteristic)
	log := c.logger.WithFields(logrus.Fields{
		"op":             e.Kind.String(),
		"op_id":          e.OpID,
		"service":        svc,
		"characteristic": chr,
	})

	switch e.Kind {
	case device.OpRead:
		if e.Err != nil {
			log.WithError(e.Err).Warn("Read failed")
		}
		c.sink.Emit(Data{Address: e.Address, Service: svc, Characteristic: chr, Value: Bytes(e.Value)})
	case device.OpWrite:
		if e.Err != nil {
			log.WithError(e.Err).Warn("Write failed")
			return
		}
		c.sink.Emit(WriteAck{Address: e.Address, Service: svc, Characteristic: chr})
	case device.OpNotify:
		if e.Err != nil {
			log.WithError(e.Err).Warn("Subscription change failed")
			return
		}
		c.sink.Emit(NotifyAck{Address: e.Address, Service: svc, Characteristic: chr, Enabled: e.Enabled})
	}
}
