package transport

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Client maintains one websocket connection to a server and reestablishes
// it with capped exponential backoff when it drops. The client's ConnID is
// assigned once and survives reconnects, so stream state keyed by it does
// not churn with the underlying socket.
type Client struct {
	url string
	id  ConnID

	dialer    *websocket.Dialer
	queueSize int

	mu sync.RWMutex
	ws *websocket.Conn

	sendq chan []byte
	done  chan struct{}
	once  sync.Once

	hmu      sync.RWMutex
	handlers map[string]Handler

	connected    atomic.Bool
	reconnecting atomic.Bool

	log *logrus.Entry
}

// NewClient creates a client transport for the given websocket URL.
func NewClient(url string, queueSize int) *Client {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	id := ConnID(uuid.NewString())
	return &Client{
		url:       url,
		id:        id,
		dialer:    websocket.DefaultDialer,
		queueSize: queueSize,
		sendq:     make(chan []byte, queueSize),
		done:      make(chan struct{}),
		handlers:  make(map[string]Handler),
		log:       logrus.WithFields(logrus.Fields{"component": "transport_client", "conn": id}),
	}
}

// Connect dials the server and starts the read and write pumps. It returns
// once the initial connection is established; later drops are handled by
// the internal reconnect loop.
func (c *Client) Connect(ctx context.Context) error {
	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.connected.Store(true)

	c.log.WithField("url", c.url).Info("Connected")

	go c.writePump()
	go c.readLoop()
	return nil
}

// Emit queues payload for the server. It blocks while the send queue is
// full, and fails once the client is closed.
func (c *Client) Emit(event string, payload []byte, _ ConnID) error {
	data, err := encodeMessage(event, payload)
	if err != nil {
		return err
	}
	select {
	case c.sendq <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}

// On registers the handler for an event name.
func (c *Client) On(event string, h Handler) {
	c.hmu.Lock()
	c.handlers[event] = h
	c.hmu.Unlock()
}

// OnDisconnect registers a teardown hook, invoked when the client is
// closed for good (reconnect attempts do not fire it: the ConnID and its
// stream state stay valid across them).
func (c *Client) OnDisconnect(hook func(ConnID)) {
	go func() {
		<-c.done
		hook(c.id)
	}()
}

// QueueDepth returns the pending outbound message count.
func (c *Client) QueueDepth(_ ConnID) int { return len(c.sendq) }

// IsConnected reports whether the socket is currently up.
func (c *Client) IsConnected(_ ConnID) bool { return c.connected.Load() }

// LocalID returns this client's stable connection identity.
func (c *Client) LocalID() ConnID { return c.id }

// Reconnecting reports whether the reconnect loop is actively trying to
// reestablish a dropped connection.
func (c *Client) Reconnecting() bool { return c.reconnecting.Load() }

// Close shuts the client down for good.
func (c *Client) Close() error {
	c.once.Do(func() {
		close(c.done)
		c.connected.Store(false)
		c.mu.RLock()
		if c.ws != nil {
			c.ws.Close()
		}
		c.mu.RUnlock()
	})
	return nil
}

func (c *Client) conn() *websocket.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ws
}

func (c *Client) readLoop() {
	for {
		ws := c.conn()
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.connected.Store(false)
			c.log.WithError(err).Warn("Connection lost, reconnecting")
			if !c.reconnect() {
				return
			}
			continue
		}

		msg, err := decodeMessage(data)
		if err != nil {
			c.log.WithError(err).Warn("Dropping malformed message")
			continue
		}

		c.hmu.RLock()
		h, ok := c.handlers[msg.Event]
		c.hmu.RUnlock()
		if !ok {
			c.log.WithField("event", msg.Event).Debug("No handler for event")
			continue
		}
		h(c.id, msg.Payload)
	}
}

// reconnect retries the dial with capped exponential backoff until it
// succeeds or the client is closed.
func (c *Client) reconnect() bool {
	c.reconnecting.Store(true)
	defer c.reconnecting.Store(false)

	delay := reconnectBaseDelay
	for {
		select {
		case <-c.done:
			return false
		case <-time.After(delay):
		}

		ws, _, err := c.dialer.Dial(c.url, nil)
		if err != nil {
			c.log.WithError(err).WithField("retry_in", delay).Info("Reconnect attempt failed")
			if delay *= 2; delay > reconnectMaxDelay {
				delay = reconnectMaxDelay
			}
			continue
		}

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()
		c.connected.Store(true)
		c.log.Info("Reconnected")
		return true
	}
}

func (c *Client) writePump() {
	for {
		select {
		case data := <-c.sendq:
			for {
				if !c.connected.Load() {
					// Reconnect in progress; hold the message rather than
					// write into a dead socket.
					select {
					case <-c.done:
						return
					case <-time.After(100 * time.Millisecond):
					}
					continue
				}
				if err := c.conn().WriteMessage(websocket.BinaryMessage, data); err != nil {
					c.log.WithError(err).Warn("Write failed, message dropped")
				}
				break
			}
		case <-c.done:
			return
		}
	}
}
