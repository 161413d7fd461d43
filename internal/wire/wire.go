// Package wire is the concrete transport/marshaller adapter binding
// internal/sessionparser's framed byte stream to internal/dispatch and
// internal/transport's contracts. It is the one place a real network
// socket and a real RPC encoding exist in this module; everything upstream
// of it depends only on interfaces.
package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/chenyukaola/feeds-service/internal/byteutil"
	"github.com/chenyukaola/feeds-service/internal/sessionparser"
	"github.com/chenyukaola/feeds-service/internal/transport"
)

// header is the small JSON document sessionparser hands back as the
// section's head_size bytes — just enough to route the request before the
// (possibly large) body is read from its cache file.
type header struct {
	Method string `json:"method"`
	TsxID  uint64 `json:"tsx_id"`
}

// Marshaler implements transport.Marshaler over plain JSON. The RPC
// encoding is itself an external collaborator (spec.md §1); this is the
// module's own default so the server is runnable without a second
// process supplying one.
type Marshaler struct{}

var _ transport.Marshaler = Marshaler{}

func (Marshaler) UnmarshalParams(raw []byte, v any) error { return json.Unmarshal(raw, v) }
func (Marshaler) MarshalResult(v any) ([]byte, error)     { return json.Marshal(v) }

func (Marshaler) EncodeResponse(resp transport.Response) ([]byte, error) {
	return encodeSection(resp)
}

func (Marshaler) EncodeNotification(n transport.Notification) ([]byte, error) {
	return encodeSection(n)
}

func encodeSection(payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("wire: marshal section body: %w", err)
	}
	head, err := json.Marshal(headerFor(payload))
	if err != nil {
		return nil, fmt.Errorf("wire: marshal section header: %w", err)
	}
	h := byteutil.Header{
		Magic: byteutil.ProtocolMagic, Version: byteutil.ProtocolVersion,
		HeadSize: uint64(len(head)), BodySize: uint64(len(body)),
	}
	frame := make([]byte, 0, byteutil.HeaderSize+len(head)+len(body))
	frame = append(frame, h.Encode()...)
	frame = append(frame, head...)
	frame = append(frame, body...)
	return frame, nil
}

func headerFor(payload any) header {
	switch p := payload.(type) {
	case transport.Response:
		return header{Method: "", TsxID: p.TsxID}
	case transport.Notification:
		return header{Method: p.Method}
	default:
		return header{}
	}
}

// DecodeHeader parses a section's header bytes back into method/tsx_id,
// used on the inbound side by Listener.
func DecodeHeader(raw []byte) (method string, tsxID uint64, err error) {
	var h header
	if err := json.Unmarshal(raw, &h); err != nil {
		return "", 0, fmt.Errorf("wire: decode header: %w", err)
	}
	return h.Method, h.TsxID, nil
}

// Dispatcher is the subset of dispatch.Dispatcher the Listener adapter
// needs, named locally to avoid an import cycle back into internal/dispatch.
type Dispatcher interface {
	Handle(ctx context.Context, nodeID string, req transport.Request) error
	Disconnect(nodeID string)
}

// Queue is a process-wide registry of live connections, implementing
// transport.OutboundQueue by writing directly to the socket owning nodeID.
type Queue struct {
	mu    sync.Mutex
	conns map[string]net.Conn
}

var _ transport.OutboundQueue = (*Queue)(nil)

// NewQueue constructs an empty connection registry.
func NewQueue() *Queue { return &Queue{conns: make(map[string]net.Conn)} }

// Register associates nodeID with its live connection, replacing the
// lookup bound to its node id on (re)connect.
func (q *Queue) Register(nodeID string, conn net.Conn) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.conns[nodeID] = conn
}

// Unregister drops nodeID's connection, called once the connection closes.
func (q *Queue) Unregister(nodeID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.conns, nodeID)
}

// Enqueue writes frame to nodeID's socket if still connected; an
// unreachable peer is reported, not retried — the caller already moved on.
func (q *Queue) Enqueue(_ context.Context, nodeID string, frame []byte) error {
	q.mu.Lock()
	conn := q.conns[nodeID]
	q.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("wire: node %s not connected", nodeID)
	}
	_, err := conn.Write(frame)
	return err
}

// Listener adapts one connection's sessionparser.Listener callbacks into
// calls against the dispatcher, reading each section's body from its
// spooled cache file and deleting it once handled.
type Listener struct {
	ctx      context.Context
	nodeID   string
	d        Dispatcher
	logger   *zap.Logger
	readBody func(path string) ([]byte, error)
}

// NewListener builds a sessionparser.Listener bound to one connection.
// readBody is injected so callers can swap in the real os.ReadFile (the
// default) or a fake in tests.
func NewListener(ctx context.Context, nodeID string, d Dispatcher, logger *zap.Logger, readBody func(string) ([]byte, error)) *Listener {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Listener{ctx: ctx, nodeID: nodeID, d: d, logger: logger, readBody: readBody}
}

var _ sessionparser.Listener = (*Listener)(nil)

func (l *Listener) OnSection(headerBytes []byte, bodyCachePath string) error {
	defer func() {
		if err := os.Remove(bodyCachePath); err != nil {
			l.logger.Warn("wire: remove body cache", zap.String("node_id", l.nodeID), zap.Error(err))
		}
	}()
	method, tsxID, err := DecodeHeader(headerBytes)
	if err != nil {
		l.logger.Warn("wire: malformed section header", zap.String("node_id", l.nodeID), zap.Error(err))
		return nil
	}
	body, err := l.readBody(bodyCachePath)
	if err != nil {
		return fmt.Errorf("wire: read body cache: %w", err)
	}
	return l.d.Handle(l.ctx, l.nodeID, transport.Request{Method: method, TsxID: tsxID, Params: body})
}
