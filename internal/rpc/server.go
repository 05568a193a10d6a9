package rpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pmcore/pmcored/internal/broadcast"
	"github.com/pmcore/pmcored/internal/events"
	"github.com/pmcore/pmcored/internal/storage"
	"github.com/pmcore/pmcored/internal/types"
)

// idempotencySweepInterval is how often the background sweeper checks for
// expired idempotency records. The retention horizon itself is configured
// separately and is typically much larger than this interval.
const idempotencySweepInterval = 5 * time.Minute

// ServerConfig bundles the listener's tunables, taken from the server
// section of the decoded config file plus the store's idempotency retention.
type ServerConfig struct {
	BindAddress          string
	Port                 int
	HeartbeatInterval    time.Duration
	HeartbeatTimeout     time.Duration
	RequestTimeout       time.Duration
	FrameLimit           uint32
	QueueDepth           int
	MaxConnections       int
	ShutdownGrace        time.Duration
	IdempotencyRetention time.Duration
}

// Server accepts peer connections, hands each a reference to the shared
// Store, Broadcaster, and Handler, and coordinates graceful shutdown.
type Server struct {
	cfg         ServerConfig
	store       storage.Store
	broadcaster *broadcast.Broadcaster
	handler     *Handler
	logger      *slog.Logger

	listener net.Listener

	mu      sync.Mutex
	conns   map[string]*Connection
	nextID  int64
	stopped bool

	readyChan chan struct{}
	doneChan  chan struct{}
	connSem   chan struct{}
}

// NewServer wires a Server over store and broadcaster; Handle requests are
// dispatched through a fresh Handler built from the same store/broadcaster.
func NewServer(cfg ServerConfig, store storage.Store, b *broadcast.Broadcaster, logger *slog.Logger) *Server {
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 64
	}
	s := &Server{
		cfg:         cfg,
		store:       store,
		broadcaster: b,
		handler:     NewHandler(store, b),
		logger:      logger,
		conns:       make(map[string]*Connection),
		readyChan:   make(chan struct{}),
		doneChan:    make(chan struct{}),
		connSem:     make(chan struct{}, cfg.MaxConnections),
	}
	s.handler.OnSlowSubscriber(s.closeConnection)
	return s
}

// closeConnection tears down the connection registered under id, if it's
// still live. Called when the broadcaster reports id as a slow subscriber
// so a stalled peer is disconnected instead of just quietly missing every
// event from then on.
func (s *Server) closeConnection(id string) {
	s.mu.Lock()
	c, ok := s.conns[id]
	s.mu.Unlock()
	if ok {
		c.Close()
	}
}

// WaitReady signals once the listener is bound and accepting.
func (s *Server) WaitReady() <-chan struct{} { return s.readyChan }

// Addr returns the bound listener address; valid only after WaitReady fires.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Start binds the listener and runs the accept loop until ctx is canceled
// or Stop is called. It writes the readiness line to stdout once bound.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.BindAddress, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		fmt.Fprintf(os.Stdout, "server failed: %v\n", err)
		return fmt.Errorf("bind %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.readyChan)

	port := ln.Addr().(*net.TCPAddr).Port
	fmt.Fprintf(os.Stdout, "server ready port=%d pid=%d\n", port, os.Getpid())
	s.logger.Info("listening", "addr", ln.Addr().String())

	defer close(s.doneChan)
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	go s.sweepIdempotency(ctx)

	for {
		nc, err := ln.Accept()
		if err != nil {
			s.mu.Lock()
			stopped := s.stopped
			s.mu.Unlock()
			if stopped {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		select {
		case s.connSem <- struct{}{}:
		default:
			s.logger.Warn("rejecting connection: max connections reached")
			nc.Close()
			continue
		}

		id := s.newConnID()
		conn := newConnection(id, nc, ConnectionConfig{
			HeartbeatInterval: s.cfg.HeartbeatInterval,
			HeartbeatTimeout:  s.cfg.HeartbeatTimeout,
			RequestTimeout:    s.cfg.RequestTimeout,
			FrameLimit:        s.cfg.FrameLimit,
			QueueDepth:        s.cfg.QueueDepth,
		}, s.handler, s.broadcaster, s.logger)

		s.mu.Lock()
		s.conns[id] = conn
		s.mu.Unlock()

		go func() {
			defer func() {
				<-s.connSem
				s.mu.Lock()
				delete(s.conns, id)
				s.mu.Unlock()
			}()
			conn.Run(ctx)
		}()
	}
}

// sweepIdempotency opportunistically deletes expired idempotency records.
// It never runs on the request path; a failed sweep is logged and retried
// on the next tick.
func (s *Server) sweepIdempotency(ctx context.Context) {
	retention := s.cfg.IdempotencyRetention
	if retention <= 0 {
		retention = time.Hour
	}

	ticker := time.NewTicker(idempotencySweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := types.Now() - types.Timestamp(retention.Seconds())
			n, err := s.store.SweepIdempotency(ctx, cutoff)
			if err != nil {
				s.logger.Warn("idempotency sweep failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("idempotency sweep", "deleted", n)
			}
		}
	}
}

func (s *Server) newConnID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return fmt.Sprintf("conn-%d", s.nextID)
}

// Stop begins graceful shutdown: stop accepting, notify every connection,
// give them ShutdownGrace to drain, then force close whatever remains.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	ln := s.listener
	s.mu.Unlock()

	if ln != nil {
		ln.Close()
	}

	s.broadcaster.BroadcastAll(&events.Event{
		Kind:    events.KindServerClosing,
		Payload: events.ServerClosingPayload{GraceSeconds: int(s.cfg.ShutdownGrace.Seconds())},
	})

	grace := s.cfg.ShutdownGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	deadline := time.NewTimer(grace)
	defer deadline.Stop()

	drained := make(chan struct{})
	go func() {
		for {
			s.mu.Lock()
			n := len(s.conns)
			s.mu.Unlock()
			if n == 0 {
				close(drained)
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
	}()

	select {
	case <-drained:
	case <-deadline.C:
		s.mu.Lock()
		for _, c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
	}

	return nil
}
