// Package queue publishes crawl step events to a durable queue so that
// downstream consumers (visualization, graph-metrics jobs) can follow a crawl
// without touching its checkpoint store.
package queue

import "context"

// Msg is a single queue message. Key is used for partitioning when the
// backend supports it; a crawl keys its events by token address so one
// crawl's steps stay ordered on one partition.
type Msg struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Publisher publishes messages to a queue.
type Publisher interface {
	// Publish sends a message, blocking until the backend confirms delivery
	// or the context is cancelled.
	Publish(ctx context.Context, msg Msg) error

	// Close flushes in-flight messages and releases resources. It must be
	// called exactly once; cancelling the context abandons the flush.
	Close(ctx context.Context)
}
