package broadcast

import (
	"time"

	"github.com/BearBump/LiveTrace/internal/metrics"
	"github.com/BearBump/LiveTrace/internal/models"
	"go.uber.org/zap"
)

// Dispatcher delivers events to channel members. Delivery is best-effort:
// a connection that cannot take the event loses it, nothing is retried.
type Dispatcher struct {
	reg     *Registry
	logger  *zap.Logger
	metrics *metrics.Collector
	now     func() time.Time
}

func NewDispatcher(reg *Registry, logger *zap.Logger, m *metrics.Collector) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{reg: reg, logger: logger, metrics: m, now: time.Now}
}

func (d *Dispatcher) Registry() *Registry { return d.reg }

// Publish returns how many connections accepted the event.
func (d *Dispatcher) Publish(channel, event string, payload any) int {
	return d.PublishMany([]string{channel}, event, payload)
}

// PublishMany sends one copy per connection even when it is joined to
// several of the target channels.
func (d *Dispatcher) PublishMany(channels []string, event string, payload any) int {
	routes := make([]Route, 0, len(channels))
	for _, ch := range channels {
		routes = append(routes, Route{Channel: ch, Payload: payload})
	}
	return d.PublishRoutes(event, routes...)
}

// Route pairs a channel with the payload its members receive.
type Route struct {
	Channel string
	Payload any
}

// PublishRoutes sends one copy per connection. A connection joined to
// several routed channels gets the payload of the first route it matches.
func (d *Dispatcher) PublishRoutes(event string, routes ...Route) int {
	snap := d.reg.snap.Load()
	ts := d.now().UTC()

	seen := make(map[string]struct{})
	delivered, dropped := 0, 0
	for _, rt := range routes {
		for id, c := range snap.channels[rt.Channel] {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			err := c.Send(models.Event{Name: event, Channel: rt.Channel, Payload: rt.Payload, Timestamp: ts})
			if err != nil {
				dropped++
				d.logger.Debug("broadcast drop",
					zap.String("conn_id", id),
					zap.String("channel", rt.Channel),
					zap.String("event", event),
					zap.Error(err),
				)
				continue
			}
			delivered++
		}
	}
	d.metrics.RecordDeliveries(delivered, dropped)
	return delivered
}
