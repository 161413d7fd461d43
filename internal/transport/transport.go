// Package transport declares the contracts the dispatcher and notification
// fan-out depend on without ever importing a concrete networking or RPC
// marshalling implementation. The underlying peer-to-peer transport
// (frames addressed by node id), the RPC encoding, and the per-peer
// outbound queue are all external collaborators; only their shapes live
// here.
package transport

import "context"

// Request is everything the dispatcher needs from an inbound RPC call.
// TsxID is echoed back on every response so the caller can correlate it.
type Request struct {
	Method string
	TsxID  uint64
	Params []byte
}

// Response is a single reply to a Request. EC is zero on success; Result
// carries method-specific success data already encoded by the RPC
// marshaller. IsLast frames chunked listing responses (4.7) — every
// non-chunked response has IsLast = true.
type Response struct {
	TsxID  uint64
	Result []byte
	EC     int
	IsLast bool
}

// Notification is a server-initiated message with no TsxID, fanned out to
// zero or more peers outside of any request/response cycle.
type Notification struct {
	Method string
	Params []byte
}

// Marshaler owns both directions of RPC encoding: typed params out of an
// inbound Request, and a full wire frame out of an outbound Response or
// Notification. The dispatcher never builds wire bytes itself.
type Marshaler interface {
	UnmarshalParams(raw []byte, v any) error
	MarshalResult(v any) ([]byte, error)
	EncodeResponse(resp Response) ([]byte, error)
	EncodeNotification(n Notification) ([]byte, error)
}

// OutboundQueue delivers an already-marshalled frame to nodeID, retrying
// delivery on its own schedule. The dispatcher enqueues and moves on; it
// never blocks on delivery.
type OutboundQueue interface {
	Enqueue(ctx context.Context, nodeID string, frame []byte) error
}

// Transport is the peer-to-peer byte-frame channel feeding the session
// parser. It is addressed by node id and has no concept of a request or
// response — those are layered on top by the dispatcher.
type Transport interface {
	// Send delivers an opaque frame to nodeID.
	Send(ctx context.Context, nodeID string, frame []byte) error
}
