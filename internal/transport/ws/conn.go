package ws

import (
	"sync"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("send queue full")
	ErrClosed    = errors.New("connection closed")
)

// Conn is one subscriber socket. Events are queued and written by a single
// writer goroutine; gorilla connections allow one concurrent writer only.
type Conn struct {
	id     string
	userID string
	role   string

	ws    *websocket.Conn
	queue chan models.Event

	closed    chan struct{}
	closeOnce sync.Once

	writeWait  time.Duration
	pingPeriod time.Duration
	logger     *zap.Logger
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }
func (c *Conn) Role() string   { return c.role }

// Send never blocks. A full queue drops the event.
func (c *Conn) Send(ev models.Event) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}
	select {
	case c.queue <- ev:
		return nil
	case <-c.closed:
		return ErrClosed
	default:
		return ErrQueueFull
	}
}

func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.ws != nil {
			_ = c.ws.Close()
		}
	})
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.closed:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.writeWait))
			return
		case ev := <-c.queue:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteJSON(ev); err != nil {
				c.logger.Debug("ws write failed", zap.String("conn_id", c.id), zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
