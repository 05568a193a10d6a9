package rpc

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/pmcore/pmcored/internal/broadcast"
	"github.com/pmcore/pmcored/internal/events"
	"github.com/pmcore/pmcored/internal/types"
)

func testConnConfig() ConnectionConfig {
	return ConnectionConfig{
		HeartbeatInterval: 0,
		HeartbeatTimeout:  0,
		RequestTimeout:    2 * time.Second,
		FrameLimit:        DefaultFrameLimit,
		QueueDepth:        16,
	}
}

// peer wraps the client side of a net.Pipe so tests can send/receive
// envelopes without a real TCP socket.
type peer struct {
	conn   net.Conn
	reader *bufio.Reader
}

func newPeer(conn net.Conn) *peer {
	return &peer{conn: conn, reader: bufio.NewReader(conn)}
}

func (p *peer) send(t *testing.T, env *Envelope) {
	t.Helper()
	if err := writeFrame(p.conn, env); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func (p *peer) recv(t *testing.T) *Envelope {
	t.Helper()
	env, err := readFrame(p.reader, DefaultFrameLimit)
	if err != nil {
		t.Fatalf("recv: %v", err)
	}
	return env
}

func TestConnectionRejectsNonIdentifyFirstFrame(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	h := newTestHandler(t)
	c := newConnection("c1", server, testConnConfig(), h, broadcast.New(10), slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan struct{})
	go func() { c.Run(context.Background()); close(done) }()

	p := newPeer(client)
	p.send(t, &Envelope{MessageID: "m1", Payload: Command{Variant: CmdProjectList}})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected connection to close after a non-identify first frame")
	}
}

func TestConnectionIdentifyThenCommandRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	h := newTestHandler(t)
	c := newConnection("c1", server, testConnConfig(), h, broadcast.New(10), slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan struct{})
	go func() { c.Run(context.Background()); close(done) }()
	defer func() {
		p := newPeer(client)
		p.send(t, &Envelope{Payload: Close{Reason: "test done"}})
		<-done
	}()

	p := newPeer(client)
	p.send(t, &Envelope{MessageID: "id-1", Payload: Command{Variant: CmdIdentify, Args: IdentifyArgs{UserID: "alice"}}})
	ack := p.recv(t)
	reply, ok := ack.Payload.(Reply)
	if !ok || reply.Error != nil {
		t.Fatalf("expected identify ack, got %#v", ack.Payload)
	}

	p.send(t, &Envelope{MessageID: "msg-1", Payload: Command{
		Variant: CmdProjectCreate,
		Args:    ProjectCreateArgs{Title: "Core", Key: "CORE"},
	}})
	resp := p.recv(t)
	reply, ok = resp.Payload.(Reply)
	if !ok {
		t.Fatalf("expected a Reply payload, got %#v", resp.Payload)
	}
	if reply.Error != nil {
		t.Fatalf("expected no error, got %v", reply.Error)
	}
}

func TestConnectionSubscribeReceivesBroadcastEvent(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()

	b := broadcast.New(10)
	h := newTestHandler(t)
	h.broadcaster = b
	c := newConnection("c1", server, testConnConfig(), h, b, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan struct{})
	go func() { c.Run(context.Background()); close(done) }()

	p := newPeer(client)
	p.send(t, &Envelope{MessageID: "id-1", Payload: Command{Variant: CmdIdentify, Args: IdentifyArgs{UserID: "alice"}}})
	p.recv(t)

	p.send(t, &Envelope{MessageID: "msg-1", Payload: Command{
		Variant: CmdProjectCreate,
		Args:    ProjectCreateArgs{Title: "Core", Key: "CORE"},
	}})
	createResp := p.recv(t)
	reply := createResp.Payload.(Reply)
	proj := reply.Result.(*types.Project)

	p.send(t, &Envelope{MessageID: "sub-1", Payload: Command{
		Variant: CmdSubscribe,
		Args:    SubscribeArgs{ProjectIDs: []types.ID{proj.ID}},
	}})
	p.recv(t) // subscribe ack

	b.Publish(&events.Event{
		ProjectID: proj.ID,
		Kind:      events.KindProjectUpdated,
		Payload:   events.ProjectPayload{Project: proj},
	})

	frame := p.recv(t)
	ef, ok := frame.Payload.(EventFrame)
	if !ok || ef.ProjectID != proj.ID || ef.Variant != string(events.KindProjectUpdated) {
		t.Fatalf("expected forwarded EventFrame for the subscribed project, got %#v", frame.Payload)
	}

	p.send(t, &Envelope{Payload: Close{Reason: "done"}})
	<-done
}
