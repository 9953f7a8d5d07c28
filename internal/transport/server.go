package transport

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// DefaultQueueSize is the per-connection outbound queue capacity used when
// the caller does not configure one.
const DefaultQueueSize = 64

// Server accepts websocket connections and dispatches their events. One
// reader goroutine per connection keeps inbound dispatch serialized; one
// writer goroutine drains the per-connection send queue, whose length is
// the queue depth reported for back pressure.
type Server struct {
	upgrader  websocket.Upgrader
	queueSize int

	mu    sync.RWMutex
	conns map[ConnID]*serverConn

	hmu      sync.RWMutex
	handlers map[string]Handler

	dmu        sync.Mutex
	disconnect []func(ConnID)

	log *logrus.Entry
}

type serverConn struct {
	id    ConnID
	ws    *websocket.Conn
	sendq chan []byte
	done  chan struct{}
	once  sync.Once
}

// NewServer creates a websocket event transport server. queueSize bounds
// each connection's outbound queue; 0 selects DefaultQueueSize.
func NewServer(queueSize int) *Server {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		queueSize: queueSize,
		conns:     make(map[ConnID]*serverConn),
		handlers:  make(map[string]Handler),
		log:       logrus.WithField("component", "transport_server"),
	}
}

// ServeHTTP upgrades the request and serves the connection until it closes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("Websocket upgrade failed")
		return
	}

	conn := &serverConn{
		id:    ConnID(uuid.NewString()),
		ws:    ws,
		sendq: make(chan []byte, s.queueSize),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.conns[conn.id] = conn
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{
		"conn":   conn.id,
		"remote": ws.RemoteAddr().String(),
	}).Info("Connection established")

	go s.writePump(conn)
	s.readPump(conn)
}

// Emit queues payload for the target connection. It blocks while the send
// queue is full; droppable traffic is expected to consult the queue depth
// before calling. Emitting to an unknown or closed connection fails with
// ErrNotConnected.
func (s *Server) Emit(event string, payload []byte, to ConnID) error {
	s.mu.RLock()
	conn, ok := s.conns[to]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotConnected, to)
	}

	data, err := encodeMessage(event, payload)
	if err != nil {
		return err
	}

	select {
	case conn.sendq <- data:
		return nil
	case <-conn.done:
		return fmt.Errorf("%w: %s", ErrNotConnected, to)
	}
}

// On registers the handler for an event name.
func (s *Server) On(event string, h Handler) {
	s.hmu.Lock()
	s.handlers[event] = h
	s.hmu.Unlock()
}

// OnDisconnect registers a teardown hook.
func (s *Server) OnDisconnect(hook func(ConnID)) {
	s.dmu.Lock()
	s.disconnect = append(s.disconnect, hook)
	s.dmu.Unlock()
}

// QueueDepth returns the pending outbound message count for a connection.
func (s *Server) QueueDepth(to ConnID) int {
	s.mu.RLock()
	conn, ok := s.conns[to]
	s.mu.RUnlock()
	if !ok {
		return 0
	}
	return len(conn.sendq)
}

// IsConnected reports whether the connection is registered and open.
func (s *Server) IsConnected(to ConnID) bool {
	s.mu.RLock()
	_, ok := s.conns[to]
	s.mu.RUnlock()
	return ok
}

// LocalID returns the empty id: the server has no singleton connection.
func (s *Server) LocalID() ConnID { return "" }

// Connections lists the currently connected peers.
func (s *Server) Connections() []ConnID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]ConnID, 0, len(s.conns))
	for id := range s.conns {
		ids = append(ids, id)
	}
	return ids
}

// Close drops every connection.
func (s *Server) Close() error {
	s.mu.RLock()
	conns := make([]*serverConn, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.RUnlock()

	for _, conn := range conns {
		s.teardown(conn)
	}
	return nil
}

func (s *Server) readPump(conn *serverConn) {
	defer s.teardown(conn)

	for {
		_, data, err := conn.ws.ReadMessage()
		if err != nil {
			s.log.WithField("conn", conn.id).WithError(err).Info("Connection closed")
			return
		}

		msg, err := decodeMessage(data)
		if err != nil {
			s.log.WithField("conn", conn.id).WithError(err).Warn("Dropping malformed message")
			continue
		}

		s.hmu.RLock()
		h, ok := s.handlers[msg.Event]
		s.hmu.RUnlock()
		if !ok {
			s.log.WithFields(logrus.Fields{"conn": conn.id, "event": msg.Event}).Debug("No handler for event")
			continue
		}
		h(conn.id, msg.Payload)
	}
}

func (s *Server) writePump(conn *serverConn) {
	for {
		select {
		case data := <-conn.sendq:
			if err := conn.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				s.log.WithField("conn", conn.id).WithError(err).Warn("Write failed")
				s.teardown(conn)
				return
			}
		case <-conn.done:
			return
		}
	}
}

func (s *Server) teardown(conn *serverConn) {
	conn.once.Do(func() {
		close(conn.done)
		conn.ws.Close()

		s.mu.Lock()
		delete(s.conns, conn.id)
		s.mu.Unlock()

		s.dmu.Lock()
		hooks := append([]func(ConnID){}, s.disconnect...)
		s.dmu.Unlock()
		for _, hook := range hooks {
			hook(conn.id)
		}
	})
}
