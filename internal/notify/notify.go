// Package notify implements chunked listing responses and real-time
// notification fan-out to connected peers.
package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/chenyukaola/feeds-service/internal/subsidx"
	"github.com/chenyukaola/feeds-service/internal/transport"
)

// DefaultMaxContentLen is the fallback response-body budget when the
// caller does not set one explicitly: a typical transport maximum minus a
// 100 KiB header/envelope allowance.
const DefaultMaxContentLen = 1<<20 - 100<<10

// Fanout marshals and enqueues responses and notifications on behalf of
// the dispatcher. It holds no state of its own beyond its collaborators.
type Fanout struct {
	idx           *subsidx.Index
	queue         transport.OutboundQueue
	marshal       transport.Marshaler
	maxContentLen int
	logger        *zap.Logger
}

// New constructs a Fanout. maxContentLen <= 0 selects DefaultMaxContentLen.
func New(idx *subsidx.Index, queue transport.OutboundQueue, marshal transport.Marshaler, maxContentLen int, logger *zap.Logger) *Fanout {
	if maxContentLen <= 0 {
		maxContentLen = DefaultMaxContentLen
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fanout{idx: idx, queue: queue, marshal: marshal, maxContentLen: maxContentLen, logger: logger}
}

// SendResponse marshals a single non-chunked success response and
// enqueues it to nodeID.
func (f *Fanout) SendResponse(ctx context.Context, nodeID string, tsxID uint64, result any) error {
	return f.sendOne(ctx, nodeID, tsxID, result, 0, true)
}

// SendError marshals and enqueues an error response carrying ec.
func (f *Fanout) SendError(ctx context.Context, nodeID string, tsxID uint64, ec int) error {
	frame, err := f.marshal.EncodeResponse(transport.Response{TsxID: tsxID, EC: ec, IsLast: true})
	if err != nil {
		return fmt.Errorf("notify: encode error response: %w", err)
	}
	return f.queue.Enqueue(ctx, nodeID, frame)
}

func (f *Fanout) sendOne(ctx context.Context, nodeID string, tsxID uint64, result any, ec int, isLast bool) error {
	resultBytes, err := f.marshal.MarshalResult(result)
	if err != nil {
		return fmt.Errorf("notify: marshal result: %w", err)
	}
	frame, err := f.marshal.EncodeResponse(transport.Response{TsxID: tsxID, Result: resultBytes, EC: ec, IsLast: isLast})
	if err != nil {
		return fmt.Errorf("notify: encode response: %w", err)
	}
	return f.queue.Enqueue(ctx, nodeID, frame)
}

// Notify broadcasts a single notification to every nodeID in targets,
// skipping any delivery failure rather than aborting the whole fan-out —
// one unreachable peer must never block notifying the rest.
func (f *Fanout) Notify(ctx context.Context, targets []string, method string, params any) error {
	if len(targets) == 0 {
		return nil
	}
	paramBytes, err := f.marshal.MarshalResult(params)
	if err != nil {
		return fmt.Errorf("notify: marshal notification params: %w", err)
	}
	frame, err := f.marshal.EncodeNotification(transport.Notification{Method: method, Params: paramBytes})
	if err != nil {
		return fmt.Errorf("notify: encode notification: %w", err)
	}
	for _, nodeID := range targets {
		if err := f.queue.Enqueue(ctx, nodeID, frame); err != nil {
			f.logger.Warn("notify: enqueue failed", zap.String("node_id", nodeID), zap.String("method", method), zap.Error(err))
		}
	}
	return nil
}

// NotifyChannel fans a notification out to every active subscriber of
// chanID, as tracked by the subscription index.
func (f *Fanout) NotifyChannel(ctx context.Context, chanID uint64, method string, params any) error {
	return f.Notify(ctx, f.idx.NotifyTargets(chanID), method, params)
}

// NotifyOwner fans a notification out to whichever peer currently holds
// the owner notification slot, if any.
func (f *Fanout) NotifyOwner(ctx context.Context, method string, params any) error {
	nodeID := f.idx.OwnerNotifNodeID()
	if nodeID == "" {
		return nil
	}
	return f.Notify(ctx, []string{nodeID}, method, params)
}

// ItemSizer reports the wire size an item will occupy once marshalled, so
// SendListing can decide when a batch would exceed the content-length
// budget before it actually marshals the batch.
type ItemSizer[T any] func(item T) int

// BatchBuilder turns one chunk of items into the result value MarshalResult
// will encode.
type BatchBuilder[T any] func(batch []T, isLast bool) any

// SendListing implements the bounded chunking algorithm shared by every
// listing endpoint: iterate items in order, accumulate into a batch while
// under the content-length budget, and flush a response whenever the next
// item would exceed it. An empty result set still produces exactly one
// response with IsLast = true.
func SendListing[T any](ctx context.Context, f *Fanout, nodeID string, tsxID uint64, items []T, size ItemSizer[T], build BatchBuilder[T]) error {
	if len(items) == 0 {
		return f.sendOne(ctx, nodeID, tsxID, build(nil, true), 0, true)
	}

	remaining := f.maxContentLen
	batch := make([]T, 0, len(items))
	flush := func(isLast bool) error {
		err := f.sendOne(ctx, nodeID, tsxID, build(batch, isLast), 0, isLast)
		batch = batch[:0]
		remaining = f.maxContentLen
		return err
	}

	for i, item := range items {
		itemSize := size(item)
		if len(batch) > 0 && itemSize > remaining {
			if err := flush(false); err != nil {
				return err
			}
		}
		batch = append(batch, item)
		remaining -= itemSize
		if i == len(items)-1 {
			return flush(true)
		}
	}
	return nil
}
