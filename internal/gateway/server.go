package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spanexx/ACTA-sub001/internal/observability"
	"github.com/spanexx/ACTA-sub001/pkg/models"
)

const (
	// DefaultOutboundBuffer is the event buffer between the runtime and
	// the WebSocket writer. A full buffer drops events rather than
	// stalling task execution.
	DefaultOutboundBuffer = 256

	writeTimeout = 10 * time.Second
)

// Config configures the gateway server.
type Config struct {
	// Addr is the listen address, loopback only by convention.
	Addr string
	// Path is the WebSocket endpoint path.
	Path string
	// OutboundBuffer overrides the event buffer size.
	OutboundBuffer int
}

// DefaultConfig listens on the loopback IPC port.
func DefaultConfig() Config {
	return Config{Addr: "127.0.0.1:48732", Path: "/ipc"}
}

// Server owns the WebSocket endpoint the desktop shell connects to. One
// client at a time: a new connection supersedes the old one.
type Server struct {
	config     Config
	dispatcher *Dispatcher
	logger     *observability.Logger
	metrics    *observability.Metrics

	upgrader websocket.Upgrader
	outbound chan *models.Envelope

	mu   sync.Mutex
	conn *websocket.Conn

	httpServer *http.Server
	done       chan struct{}
	wg         sync.WaitGroup
}

// NewServer creates the gateway server. Attach handlers through Dispatcher
// before Start.
func NewServer(config Config, logger *observability.Logger, metrics *observability.Metrics) *Server {
	if config.Path == "" {
		config.Path = "/ipc"
	}
	buffer := config.OutboundBuffer
	if buffer <= 0 {
		buffer = DefaultOutboundBuffer
	}

	s := &Server{
		config:  config,
		logger:  logger,
		metrics: metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The shell connects from a file:// or app:// origin; the
			// loopback bind is the access control.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		outbound: make(chan *models.Envelope, buffer),
		done:     make(chan struct{}),
	}
	s.dispatcher = NewDispatcher(s, logger, metrics)
	return s
}

// Dispatcher returns the inbound router for handler registration.
func (s *Server) Dispatcher() *Dispatcher { return s.dispatcher }

// Send enqueues an envelope for delivery. Never blocks: when the buffer is
// full the envelope is dropped and counted.
func (s *Server) Send(ctx context.Context, env *models.Envelope) {
	select {
	case s.outbound <- env:
		if s.metrics != nil {
			s.metrics.RecordIPCMessage(string(env.Type), "outbound")
		}
	default:
		if s.metrics != nil {
			s.metrics.RecordIPCDropped()
		}
		if s.logger != nil {
			s.logger.Warn(ctx, "outbound buffer full, dropping envelope",
				"type", string(env.Type))
		}
	}
}

// Emit implements the orchestrator's event sink: the payload is wrapped in
// an envelope scoped by the correlation and profile ids on ctx.
func (s *Server) Emit(ctx context.Context, t models.MessageType, payload any) {
	env, err := models.NewEnvelope(t, models.SourceAgent, payload)
	if err != nil {
		if s.logger != nil {
			s.logger.Error(ctx, "failed to marshal event", "type", string(t), "error", err)
		}
		return
	}
	env.CorrelationID = observability.GetCorrelationID(ctx)
	env.ProfileID = observability.GetProfileID(ctx)
	s.Send(ctx, env)
}

// Start binds the listener and serves until Shutdown.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleWS)

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	s.httpServer = &http.Server{Handler: mux}

	s.wg.Add(1)
	go s.writeLoop()

	if s.logger != nil {
		s.logger.Info(ctx, "gateway listening",
			"addr", listener.Addr().String(), "path", s.config.Path)
	}

	err = s.httpServer.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes the listener, the client connection, and the write loop.
func (s *Server) Shutdown(ctx context.Context) error {
	close(s.done)

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
	s.mu.Unlock()

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err)
		}
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		// A reconnecting shell supersedes the previous session.
		_ = s.conn.Close()
	}
	s.conn = conn
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info(r.Context(), "ui connected", "remote", conn.RemoteAddr().String())
	}

	ctx := context.Background()
	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if messageType != websocket.TextMessage {
			continue
		}
		s.dispatcher.Dispatch(ctx, raw)
	}

	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
}

func (s *Server) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case env := <-s.outbound:
			s.write(env)
		case <-s.done:
			// Drain what is already queued so terminal task.result
			// events still go out on shutdown.
			for {
				select {
				case env := <-s.outbound:
					s.write(env)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) write(env *models.Envelope) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		// No UI connected; events are not queued across sessions.
		return
	}

	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
	}
}
