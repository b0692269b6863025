package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/channel"
	"github.com/MatthiasLenz/TechniteLogic/internal/protocol/frame"
)

// StreamConn frames messages directly onto a byte stream.
type StreamConn struct {
	conn         net.Conn
	reader       *bufio.Reader
	limits       frame.Limits
	writeTimeout time.Duration

	mu     sync.Mutex
	seq    uint64
	closed bool
}

func NewStreamConn(conn net.Conn, cfg Config) *StreamConn {
	cfg = cfg.WithDefaults()
	return &StreamConn{
		conn:         conn,
		reader:       bufio.NewReader(conn),
		limits:       cfg.Limits,
		writeTimeout: cfg.WriteTimeout,
	}
}

func (c *StreamConn) Send(id channel.ID, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.seq++
	if c.writeTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return err
		}
	}
	err := frame.WriteFrame(c.conn, frame.Frame{
		Header:  frame.Header{Sequence: c.seq, Channel: uint32(id)},
		Payload: payload,
	}, c.limits)
	if err != nil {
		return fmt.Errorf("transport: send %s: %w", id, err)
	}
	log.Debug().
		Str("channel", id.String()).
		Uint64("seq", c.seq).
		Int("bytes", len(payload)).
		Msg("transport.StreamConn send")
	return nil
}

func (c *StreamConn) Serve(ctx context.Context, dispatch DispatchFunc) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.Close()
	})
	defer stop()
	return serveFrames(ctx, c.RemoteAddr(), func() (frame.Frame, error) {
		f, err := frame.ReadFrame(c.reader, c.limits)
		if errors.Is(err, io.EOF) {
			return f, ErrPeerClosed
		}
		return f, err
	}, dispatch)
}

func (c *StreamConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.conn.Close()
}

func (c *StreamConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}
