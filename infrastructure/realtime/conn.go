package realtime

import (
	"duo-lab/errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	DefaultSendBuffer   = 64
	DefaultWriteTimeout = 10 * time.Second
)

// wsConn serializes writes through a buffered queue drained by writePump.
// gorilla connections support one concurrent writer only.
type wsConn struct {
	ws           *websocket.Conn
	log          *slog.Logger
	send         chan Frame
	writeTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

func newWSConn(ws *websocket.Conn, log *slog.Logger, buffer int) *wsConn {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &wsConn{
		ws:           ws,
		log:          log,
		send:         make(chan Frame, buffer),
		writeTimeout: DefaultWriteTimeout,
		done:         make(chan struct{}),
	}
}

// enqueue never blocks: a full queue means the peer is not keeping up and the frame is dropped.
func (c *wsConn) enqueue(f Frame) error {
	select {
	case <-c.done:
		return errors.ErrChannelClosed
	default:
	}
	select {
	case c.send <- f:
		return nil
	default:
		c.log.Warn("Frame dropped, send buffer full", "topic", f.Topic, "event", f.Event)
		return fmt.Errorf("%w: send buffer full", errors.ErrChannelClosed)
	}
}

func (c *wsConn) writePump() {
	defer c.close()
	for {
		select {
		case <-c.done:
			return
		case f := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteJSON(f); err != nil {
				c.log.Debug("Write failed", "topic", f.Topic, "event", f.Event, "error", err)
				return
			}
		}
	}
}

func (c *wsConn) read() (Frame, error) {
	var f Frame
	err := c.ws.ReadJSON(&f)
	return f, err
}

func (c *wsConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func reply(topic, ref, status, response string) Frame {
	f, _ := newFrame(topic, EventReply, ref, Reply{Status: status, Response: response})
	return f
}
