package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BearBump/LiveTrace/internal/auth"
	"github.com/BearBump/LiveTrace/internal/metrics"
	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/BearBump/LiveTrace/internal/services/broadcast"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Client -> server message types.
const (
	MsgSubscribe        = "tracking:subscribe"
	MsgUnsubscribe      = "tracking:unsubscribe"
	MsgStart            = "tracking:start"
	MsgStop             = "tracking:stop"
	MsgNotificationRead = "notification:read"
	MsgPing             = "ping"
)

// Server -> client replies. Broadcast events use their own names.
const (
	ReplyAck   = "ack"
	ReplyError = "error"
	ReplyPong  = "pong"
)

type Engine interface {
	StartSession(ctx context.Context, actor models.Actor, shipmentID string, cfg models.SessionConfig) (models.TrackingSession, error)
	StopSession(ctx context.Context, actor models.Actor, id string) error
	CanWatchShipment(actor models.Actor, shipmentID string) bool
}

type NotificationReader interface {
	MarkRead(ctx context.Context, id, recipientID string) error
}

type Options struct {
	QueueSize       int
	WriteWait       time.Duration
	PongWait        time.Duration
	MaxMessageBytes int64
	RequestTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.MaxMessageBytes <= 0 {
		o.MaxMessageBytes = 64 * 1024
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
	return o
}

type clientMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type replyPayload struct {
	ID     string `json:"id,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	Code   string `json:"code,omitempty"`
}

type Handler struct {
	reg      *broadcast.Registry
	engine   Engine
	notes    NotificationReader
	authn    *auth.Authenticator
	upgrader websocket.Upgrader
	opts     Options
	metrics  *metrics.Collector
	logger   *zap.Logger
}

func NewHandler(reg *broadcast.Registry, engine Engine, notes NotificationReader, authn *auth.Authenticator, opts Options, m *metrics.Collector, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		reg:    reg,
		engine: engine,
		notes:  notes,
		authn:  authn,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 4 * 1024,
		},
		opts:    opts.withDefaults(),
		metrics: m,
		logger:  logger,
	}
}

// ServeHTTP authenticates, upgrades and serves one subscriber until it
// disconnects. Disconnecting drops memberships but leaves sessions running.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	actor, err := h.authn.Verify(auth.ExtractToken(r))
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
		return
	}

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("ws upgrade failed", zap.Error(err))
		return
	}

	c := &Conn{
		id:         uuid.NewString(),
		userID:     actor.UserID,
		role:       actor.Role,
		ws:         sock,
		queue:      make(chan models.Event, h.opts.QueueSize),
		closed:     make(chan struct{}),
		writeWait:  h.opts.WriteWait,
		pingPeriod: h.opts.PongWait * 9 / 10,
		logger:     h.logger,
	}

	h.reg.Register(c)
	h.metrics.SetConnections(h.reg.Connections())
	h.logger.Info("subscriber connected", zap.String("conn_id", c.id), zap.String("user_id", c.userID))

	go c.writePump()
	h.readPump(r.Context(), c, actor)

	h.reg.Disconnect(c)
	c.Close()
	h.metrics.SetConnections(h.reg.Connections())
	h.logger.Info("subscriber disconnected", zap.String("conn_id", c.id), zap.String("user_id", c.userID))
}

func (h *Handler) readPump(ctx context.Context, c *Conn, actor models.Actor) {
	c.ws.SetReadLimit(h.opts.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
	})

	for {
		var msg clientMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read failed", zap.String("conn_id", c.id), zap.Error(err))
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		h.handle(ctx, c, actor, msg)
	}
}

type shipmentRef struct {
	ShipmentID string `json:"shipmentId"`
}

type startPayload struct {
	ShipmentID      string              `json:"shipmentId"`
	IntervalSeconds float64             `json:"intervalSeconds,omitempty"`
	TrackedSignals  []models.SignalType `json:"trackedSignals,omitempty"`
}

type sessionRef struct {
	SessionID string `json:"sessionId"`
}

type notificationRef struct {
	ID string `json:"id"`
}

func (h *Handler) handle(ctx context.Context, c *Conn, actor models.Actor, msg clientMessage) {
	ctx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	defer cancel()

	switch msg.Type {
	case MsgPing:
		h.reply(c, ReplyPong, replyPayload{ID: msg.ID})

	case MsgSubscribe, MsgUnsubscribe:
		var p shipmentRef
		if err := decode(msg.Payload, &p); err != nil || p.ShipmentID == "" {
			h.fail(c, msg.ID, errors.Wrap(models.ErrInvalidArgument, "shipmentId is required"))
			return
		}
		ch := broadcast.ShipmentChannel(p.ShipmentID)
		if msg.Type == MsgSubscribe {
			if !h.engine.CanWatchShipment(actor, p.ShipmentID) {
				h.fail(c, msg.ID, errors.Wrapf(models.ErrForbidden, "shipment %s", p.ShipmentID))
				return
			}
			h.reg.Join(c, ch)
		} else {
			h.reg.Leave(c, ch)
		}
		h.reply(c, ReplyAck, replyPayload{ID: msg.ID, Result: map[string]string{"channel": ch}})

	case MsgStart:
		var p startPayload
		if err := decode(msg.Payload, &p); err != nil {
			h.fail(c, msg.ID, errors.Wrap(models.ErrInvalidArgument, "malformed payload"))
			return
		}
		sess, err := h.engine.StartSession(ctx, actor, p.ShipmentID, models.SessionConfig{
			Interval:       time.Duration(p.IntervalSeconds * float64(time.Second)),
			TrackedSignals: p.TrackedSignals,
		})
		if err != nil {
			h.fail(c, msg.ID, err)
			return
		}
		h.reg.Join(c, broadcast.ShipmentChannel(sess.ShipmentID))
		h.reply(c, ReplyAck, replyPayload{ID: msg.ID, Result: sess})

	case MsgStop:
		var p sessionRef
		if err := decode(msg.Payload, &p); err != nil || p.SessionID == "" {
			h.fail(c, msg.ID, errors.Wrap(models.ErrInvalidArgument, "sessionId is required"))
			return
		}
		if err := h.engine.StopSession(ctx, actor, p.SessionID); err != nil {
			h.fail(c, msg.ID, err)
			return
		}
		h.reply(c, ReplyAck, replyPayload{ID: msg.ID})

	case MsgNotificationRead:
		var p notificationRef
		if err := decode(msg.Payload, &p); err != nil || p.ID == "" {
			h.fail(c, msg.ID, errors.Wrap(models.ErrInvalidArgument, "id is required"))
			return
		}
		if err := h.notes.MarkRead(ctx, p.ID, actor.UserID); err != nil {
			h.fail(c, msg.ID, err)
			return
		}
		h.reply(c, ReplyAck, replyPayload{ID: msg.ID})

	default:
		h.fail(c, msg.ID, errors.Wrapf(models.ErrInvalidArgument, "unknown message type %q", msg.Type))
	}
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(raw, v)
}

func (h *Handler) reply(c *Conn, name string, p replyPayload) {
	if err := c.Send(models.Event{Name: name, Payload: p, Timestamp: time.Now().UTC()}); err != nil {
		h.logger.Debug("ws reply dropped", zap.String("conn_id", c.id), zap.Error(err))
	}
}

func (h *Handler) fail(c *Conn, id string, err error) {
	code := errorCode(err)
	msg := err.Error()
	if code == "unavailable" {
		h.logger.Error("ws request failed", zap.String("conn_id", c.id), zap.Error(err))
		msg = "temporarily unavailable"
	}
	h.reply(c, ReplyError, replyPayload{ID: id, Error: msg, Code: code})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrAlreadyActive):
		return "already_active"
	case errors.Is(err, models.ErrAlreadyResolved):
		return "already_resolved"
	case errors.Is(err, models.ErrNotFound):
		return "not_found"
	case errors.Is(err, models.ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, models.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, models.ErrForbidden):
		return "forbidden"
	default:
		return "unavailable"
	}
}
