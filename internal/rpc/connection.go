package rpc

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pmcore/pmcored/internal/broadcast"
	"github.com/pmcore/pmcored/internal/events"
	"github.com/pmcore/pmcored/internal/types"
)

// connState is the Connection state machine's current state.
type connState int32

const (
	stateOpening connState = iota
	stateReady
	stateClosing
	stateClosed
)

// ConnectionConfig bundles the tunables a Connection needs from server config.
type ConnectionConfig struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	RequestTimeout    time.Duration
	FrameLimit        uint32
	QueueDepth        int
}

// Connection is one peer's state machine over a persistent binary stream.
// The inbound, outbound and heartbeat goroutines, plus one event forwarder
// per subscribed project, share only the outbound queue and the close signal.
type Connection struct {
	id     string
	conn   net.Conn
	reader *bufio.Reader
	cfg    ConnectionConfig
	logger *slog.Logger

	handler     *Handler
	broadcaster *broadcast.Broadcaster

	mu       sync.Mutex
	state    connState
	userID   string
	projects map[types.ID]bool

	outbound  chan *Envelope
	closeOnce sync.Once
	closeCh   chan struct{}
}

func newConnection(id string, nc net.Conn, cfg ConnectionConfig, h *Handler, b *broadcast.Broadcaster, logger *slog.Logger) *Connection {
	return &Connection{
		id:          id,
		conn:        nc,
		reader:      bufio.NewReaderSize(nc, 4096),
		cfg:         cfg,
		logger:      logger.With("conn", id),
		handler:     h,
		broadcaster: b,
		state:       stateOpening,
		projects:    make(map[types.ID]bool),
		outbound:    make(chan *Envelope, cfg.QueueDepth),
		closeCh:     make(chan struct{}),
	}
}

// Run drives the connection until it closes, for any reason. It never
// returns an error the caller must act on: all failure modes end in the
// connection being torn down and its subscriptions removed.
func (c *Connection) Run(ctx context.Context) {
	defer c.teardown()

	if err := c.awaitIdentity(); err != nil {
		c.logger.Debug("connection rejected during opening", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.inboundLoop(gctx) })
	g.Go(func() error { return c.outboundLoop(gctx) })
	g.Go(func() error { return c.heartbeatLoop(gctx) })

	_ = g.Wait()
}

func (c *Connection) awaitIdentity() error {
	env, err := readFrame(c.reader, c.cfg.FrameLimit)
	if err != nil {
		return err
	}
	cmd, ok := env.Payload.(Command)
	if !ok || cmd.Variant != CmdIdentify {
		return errors.New("first frame must be an identify command")
	}
	args, _ := cmd.Args.(IdentifyArgs)
	if args.UserID == "" {
		return errors.New("identify requires a non-empty user id")
	}

	c.mu.Lock()
	c.userID = args.UserID
	c.state = stateReady
	c.mu.Unlock()

	reply := &Envelope{MessageID: env.MessageID, Payload: Reply{Result: struct{ OK bool }{true}}}
	return writeFrame(c.conn, reply)
}

func (c *Connection) inboundLoop(ctx context.Context) error {
	for {
		if c.cfg.HeartbeatTimeout > 0 {
			c.conn.SetReadDeadline(time.Now().Add(c.cfg.HeartbeatTimeout))
		}
		env, err := readFrame(c.reader, c.cfg.FrameLimit)
		if err != nil {
			c.beginClosing("read error")
			return err
		}

		switch p := env.Payload.(type) {
		case Command:
			c.dispatch(ctx, env.MessageID, p)
		case Close:
			c.beginClosing("peer close")
			return nil
		case Ping:
			c.enqueue(&Envelope{MessageID: env.MessageID, Payload: Pong{}})
		case Pong:
			// arrival alone resets the read deadline above
		default:
			c.logger.Warn("unexpected inbound payload", "payload", p)
		}

		select {
		case <-c.closeCh:
			return nil
		default:
		}
	}
}

func (c *Connection) dispatch(ctx context.Context, messageID string, cmd Command) {
	reqCtx := ctx
	var cancel context.CancelFunc
	if c.cfg.RequestTimeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	switch cmd.Variant {
	case CmdSubscribe, CmdUnsubscribe:
		c.handleSubscription(messageID, cmd)
		return
	case CmdHeartbeat:
		c.enqueue(&Envelope{MessageID: messageID, Payload: Reply{Result: struct{ OK bool }{true}}})
		return
	}

	result, err := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("recovered panic in handler", "panic", r)
				err = types.NewError(types.KindInternal, "recovered panic in handler: %v", r)
			}
		}()
		return c.handler.Handle(reqCtx, messageID, c.userID, cmd)
	}()
	reply := Reply{Result: result}
	if err != nil {
		reply.Result = nil
		if e, ok := types.AsError(err); ok {
			reply.Error = e
		} else {
			reply.Error = types.NewError(types.KindInternal, "%v", err)
		}
	}
	c.enqueue(&Envelope{MessageID: messageID, Payload: reply})
}

func (c *Connection) handleSubscription(messageID string, cmd Command) {
	args, _ := cmd.Args.(SubscribeArgs)
	ids := args.ProjectIDs
	c.mu.Lock()
	for _, pid := range ids {
		if cmd.Variant == CmdSubscribe {
			c.projects[pid] = true
		} else {
			delete(c.projects, pid)
		}
	}
	c.mu.Unlock()

	for _, pid := range ids {
		if cmd.Variant == CmdSubscribe {
			ch := c.broadcaster.Subscribe(c.id, pid)
			go c.forwardEvents(ch)
		} else {
			c.broadcaster.Unsubscribe(c.id, pid)
		}
	}
	c.enqueue(&Envelope{MessageID: messageID, Payload: Reply{Result: struct{ OK bool }{true}}})
}

// forwardEvents relays events from a per-project subscription channel onto
// this connection's single outbound queue until the connection closes.
func (c *Connection) forwardEvents(ch <-chan *events.Event) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			c.publish(ev)
		case <-c.closeCh:
			return
		}
	}
}

func (c *Connection) publish(ev *events.Event) {
	c.enqueue(&Envelope{
		MessageID: "",
		Payload: EventFrame{
			ProjectID:    ev.ProjectID,
			Variant:      string(ev.Kind),
			Payload:      ev.Payload,
			FieldChanges: ev.FieldChanges,
		},
	})
}

func (c *Connection) outboundLoop(ctx context.Context) error {
	for {
		select {
		case env := <-c.outbound:
			if c.cfg.HeartbeatInterval > 0 {
				c.conn.SetWriteDeadline(time.Now().Add(c.cfg.HeartbeatInterval))
			}
			if err := writeFrame(c.conn, env); err != nil {
				c.beginClosing("write error")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closeCh:
			return nil
		}
	}
}

func (c *Connection) heartbeatLoop(ctx context.Context) error {
	if c.cfg.HeartbeatInterval <= 0 {
		<-c.closeCh
		return nil
	}
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.enqueue(&Envelope{Payload: Ping{}})
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closeCh:
			return nil
		}
	}
}

// enqueue is safe for concurrent callers (handler replies and forwarded
// broadcast events). A full queue means the peer isn't draining; the
// connection is dropped rather than blocking the sender.
func (c *Connection) enqueue(env *Envelope) {
	select {
	case c.outbound <- env:
	case <-c.closeCh:
	default:
		c.beginClosing("outbound queue full")
	}
}

func (c *Connection) beginClosing(reason string) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = stateClosing
		c.mu.Unlock()
		close(c.closeCh)
		c.logger.Debug("connection closing", "reason", reason)
	})
}

// Close begins a graceful close of the connection from the server side, as
// happens during shutdown: the peer is notified with ServerClosing before
// this is called.
func (c *Connection) Close() {
	c.beginClosing("server close")
}

func (c *Connection) teardown() {
	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
	c.broadcaster.UnsubscribeAll(c.id)
	c.conn.Close()
}
