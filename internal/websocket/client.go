package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ClientConfig tunes the per-connection pumps.
type ClientConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration
	// Time allowed to read the next pong message from the peer
	PongWait time.Duration
	// Maximum message size allowed from peer
	MaxMessageSize int64
	// Outbound frames buffered per connection before sends fail
	SendBufferSize int
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		MaxMessageSize: 4096,
		SendBufferSize: 256,
	}
}

// pingPeriod must be less than PongWait.
func (c ClientConfig) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Client is one gorilla connection. It implements Conn.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	cfg    ClientConfig
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed int32

	wg sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, cfg ClientConfig) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()

	return &Client{
		id:     id,
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, cfg.SendBufferSize),
		cfg:    cfg,
		logger: hub.logger.With("sessionID", id),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (c *Client) ID() string {
	return c.id
}

func (c *Client) IsOpen() bool {
	return atomic.LoadInt32(&c.closed) == 0
}

// SendText queues data for the write pump. A full buffer means the peer is
// not keeping up; the client is closed and ErrSendFailure returned.
func (c *Client) SendText(data []byte) error {
	if !c.IsOpen() {
		return fmt.Errorf("%w: %w", ErrSendFailure, ErrClientDisconnected)
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return fmt.Errorf("%w: %w", ErrSendFailure, ErrClientDisconnected)
	default:
		c.logger.Warn("Send buffer full, closing client")
		c.close()
		return fmt.Errorf("%w: send buffer full", ErrSendFailure)
	}
}

// close marks the client as closed and cancels its context
func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		// Unblocks a pending ReadMessage so the read pump runs cleanup.
		_ = c.conn.SetReadDeadline(time.Now())
		c.logger.Debug("Client marked as closed")
	}
}

// run starts the pumps and blocks until both have finished.
func (c *Client) run() {
	c.wg.Add(2)
	go c.writePump()
	go c.readPump()
	c.wg.Wait()
}

func (c *Client) readPump() {
	defer func() {
		c.close()
		// Registry, topic and presence cleanup complete before the pump returns.
		c.hub.Disconnect(context.Background(), c.id)
		if err := c.conn.Close(); err != nil {
			c.logger.Debug("Error closing connection", "error", err)
		}
		c.wg.Done()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		if !c.IsOpen() {
			return websocket.ErrCloseSent
		}
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			unexpected := websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure)
			err = fmt.Errorf("%w: %w", ErrTransport, err)
			if unexpected && c.IsOpen() {
				c.logger.Error("WebSocket error", "error", err)
			} else {
				c.logger.Debug("WebSocket connection closed", "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			c.logger.Debug("Ignoring non-text frame", "messageType", messageType)
			continue
		}

		c.hub.router.OnTextFrame(c.ctx, c.id, data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())
	defer func() {
		ticker.Stop()
		c.close()
		c.wg.Done()
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("Error writing message", "error", fmt.Errorf("%w: %w", ErrTransport, err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("Error sending ping", "error", err)
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
