package lightdb

import "context"

// Channel is connected, authenticated datagram transport.
// Each Send is one datagram, each Receive returns one datagram.
// Receive blocks until data, ctx done or link failure.
// Client calls Send from many goroutines (serialized) and Receive from one.
type Channel interface {
	Send(ctx context.Context, b []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}
