// Package rpc implements the daemon side of the persistent binary protocol:
// framing, the connection state machine, command dispatch, and the
// listener that accepts peers and coordinates graceful shutdown.
package rpc

import (
	"bufio"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/pmcore/pmcored/internal/types"
)

// DefaultFrameLimit bounds a single frame's encoded length. A peer that
// exceeds it is disconnected with reason FrameTooLarge.
const DefaultFrameLimit = 64 * 1024

// CommandVariant identifies the payload carried by a Command envelope.
type CommandVariant string

const (
	CmdProjectCreate CommandVariant = "project_create"
	CmdProjectUpdate CommandVariant = "project_update"
	CmdProjectDelete CommandVariant = "project_delete"
	CmdProjectList   CommandVariant = "project_list"

	CmdWorkItemCreate CommandVariant = "work_item_create"
	CmdWorkItemUpdate CommandVariant = "work_item_update"
	CmdWorkItemDelete CommandVariant = "work_item_delete"
	CmdWorkItemList   CommandVariant = "work_item_list"

	CmdSprintCreate   CommandVariant = "sprint_create"
	CmdSprintUpdate   CommandVariant = "sprint_update"
	CmdSprintStart    CommandVariant = "sprint_start"
	CmdSprintComplete CommandVariant = "sprint_complete"
	CmdSprintCancel   CommandVariant = "sprint_cancel"
	CmdSprintDelete   CommandVariant = "sprint_delete"
	CmdSprintList     CommandVariant = "sprint_list"

	CmdCommentCreate CommandVariant = "comment_create"
	CmdCommentUpdate CommandVariant = "comment_update"
	CmdCommentDelete CommandVariant = "comment_delete"
	CmdCommentList   CommandVariant = "comment_list"

	CmdTimerStart        CommandVariant = "timer_start"
	CmdTimerStop         CommandVariant = "timer_stop"
	CmdTimeEntryCreate   CommandVariant = "time_entry_create"
	CmdTimeEntryUpdate   CommandVariant = "time_entry_update"
	CmdTimeEntryDelete   CommandVariant = "time_entry_delete"
	CmdTimeEntryList     CommandVariant = "time_entry_list"
	CmdTimeEntryRunning  CommandVariant = "time_entry_running"

	CmdDependencyCreate CommandVariant = "dependency_create"
	CmdDependencyDelete CommandVariant = "dependency_delete"
	CmdDependencyList   CommandVariant = "dependency_list"

	CmdActivityLogList CommandVariant = "activity_log_list"

	CmdSubscribe   CommandVariant = "subscribe"
	CmdUnsubscribe CommandVariant = "unsubscribe"
	CmdHeartbeat   CommandVariant = "heartbeat"
	CmdIdentify    CommandVariant = "identify"
)

// Command is the client-to-server payload of an Envelope.
type Command struct {
	Variant         CommandVariant
	ExpectedVersion *uint32
	Args            any
}

// Reply is the server-to-client payload answering a Command by MessageID.
type Reply struct {
	Result any
	Error  *types.Error
}

// EventFrame is the server-to-client payload announcing a committed
// mutation to subscribers; it mirrors events.Event over the wire.
type EventFrame struct {
	ProjectID    types.ID
	Variant      string
	Payload      any
	FieldChanges []types.FieldChange
}

// Ping and Pong are heartbeat payloads; neither carries data.
type Ping struct{}
type Pong struct{}

// Close is sent by either side to begin a graceful shutdown of one connection.
type Close struct {
	Reason string
}

// Envelope is the single frame type exchanged over the wire. Payload holds
// exactly one of Command, Reply, EventFrame, Ping, Pong, or Close.
type Envelope struct {
	MessageID string
	Payload   any
}

func init() {
	gob.Register(Command{})
	gob.Register(Reply{})
	gob.Register(EventFrame{})
	gob.Register(Ping{})
	gob.Register(Pong{})
	gob.Register(Close{})
}

// IdentifyArgs is the Opening-state frame a client must send before any
// command is accepted; UserID establishes the actor for authorization and
// audit trails.
type IdentifyArgs struct {
	UserID string
}

// writeFrame encodes v as length(u32 BE) + gob(v) and writes it to w.
func writeFrame(w io.Writer, v *Envelope) error {
	buf := gobEncode(v)

	var lenBytes [4]byte
	binary.BigEndian.PutUint32(lenBytes[:], uint32(len(buf)))
	if _, err := w.Write(lenBytes[:]); err != nil {
		return fmt.Errorf("write frame length: %w", err)
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed frame from r, rejecting any frame
// whose declared length exceeds limit with ErrFrameTooLarge.
func readFrame(r *bufio.Reader, limit uint32) (*Envelope, error) {
	var lenBytes [4]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBytes[:])
	if n > limit {
		return nil, ErrFrameTooLarge
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return gobDecode(body)
}

// ErrFrameTooLarge is returned by readFrame when a peer's declared frame
// length exceeds the configured receive buffer size.
var ErrFrameTooLarge = fmt.Errorf("frame exceeds receive buffer limit")
