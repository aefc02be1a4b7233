package event

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"spread_go/internal/domain"
)

// OverflowPolicy decides what Send does when the channel is at capacity.
type OverflowPolicy string

const (
	// OverflowBlock waits for the consumer to make room.
	OverflowBlock OverflowPolicy = "block"
	// OverflowDropOldest evicts the oldest queued batch to make room.
	OverflowDropOldest OverflowPolicy = "drop_oldest"
	// OverflowReject refuses the new batch with domain.ErrChannelFull.
	OverflowReject OverflowPolicy = "reject"
)

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 64

// ParseOverflowPolicy validates a configured policy name.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case OverflowBlock, OverflowDropOldest, OverflowReject:
		return p, nil
	case "":
		return OverflowBlock, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Channel is the bounded multi-producer/single-consumer hand-off of signal batches.
// Batches are delivered in FIFO order.
type Channel struct {
	ch      chan Batch
	policy  OverflowPolicy
	sendMu  sync.Mutex // serializes evict-then-send under OverflowDropOldest
	dropped atomic.Uint64
}

// NewChannel creates a channel holding at most capacity batches.
func NewChannel(capacity int, policy OverflowPolicy) *Channel {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if policy == "" {
		policy = OverflowBlock
	}
	return &Channel{
		ch:     make(chan Batch, capacity),
		policy: policy,
	}
}

// Send enqueues b according to the overflow policy.
func (c *Channel) Send(ctx context.Context, b Batch) error {
	switch c.policy {
	case OverflowReject:
		select {
		case c.ch <- b:
			return nil
		default:
			c.dropped.Add(1)
			return domain.ErrChannelFull
		}

	case OverflowDropOldest:
		c.sendMu.Lock()
		defer c.sendMu.Unlock()
		for {
			select {
			case c.ch <- b:
				return nil
			default:
			}
			select {
			case <-c.ch:
				c.dropped.Add(1)
			default:
			}
			if err := ctx.Err(); err != nil {
				return err
			}
		}

	default:
		select {
		case c.ch <- b:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Receive blocks until a batch is available or ctx is done.
func (c *Channel) Receive(ctx context.Context) (Batch, error) {
	select {
	case b := <-c.ch:
		return b, nil
	case <-ctx.Done():
		return Batch{}, ctx.Err()
	}
}

// Len returns the number of queued batches.
func (c *Channel) Len() int {
	return len(c.ch)
}

// Cap returns the channel capacity.
func (c *Channel) Cap() int {
	return cap(c.ch)
}

// Policy returns the overflow policy.
func (c *Channel) Policy() OverflowPolicy {
	return c.policy
}

// Dropped returns how many batches were evicted or rejected.
func (c *Channel) Dropped() uint64 {
	return c.dropped.Load()
}
