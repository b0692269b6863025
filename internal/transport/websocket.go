package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/channel"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/frame"
)

// WebSocketConn carries one frame per binary websocket message.
type WebSocketConn struct {
	conn         *websocket.Conn
	limits       frame.Limits
	writeTimeout time.Duration

	mu     sync.Mutex
	seq    uint64
	closed bool
}

func NewWebSocketConn(conn *websocket.Conn, cfg Config) *WebSocketConn {
	cfg = cfg.WithDefaults()
	conn.SetReadLimit(int64(frame.HeaderLen) + int64(cfg.Limits.MaxPayloadBytes))
	return &WebSocketConn{
		conn:         conn,
		limits:       cfg.Limits,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (c *WebSocketConn) Send(id channel.ID, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.seq++
	b, err := frame.Encode(frame.Frame{
		Header:  frame.Header{Sequence: c.seq, Channel: uint32(id)},
		Payload: payload,
	}, c.limits)
	if err != nil {
		return fmt.Errorf("transport: send %s: %w", id, err)
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if err := c.conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return fmt.Errorf("transport: send %s: %w", id, err)
	}
	log.Debug().
		Str("channel", id.String()).
		Uint64("seq", c.seq).
		Int("bytes", len(payload)).
		Msg("transport.WebSocketConn send")
	return nil
}

func (c *WebSocketConn) Serve(ctx context.Context, dispatch DispatchFunc) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.Close()
	})
	defer stop()
	return serveFrames(ctx, c.RemoteAddr(), func() (frame.Frame, error) {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return frame.Frame{}, ErrPeerClosed
			}
			return frame.Frame{}, err
		}
		if mt != websocket.BinaryMessage {
			return frame.Frame{}, fmt.Errorf("%w: %d", ErrUnexpectedMessage, mt)
		}
		return frame.Decode(data, c.limits)
	}, dispatch)
}

func (c *WebSocketConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *WebSocketConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
