// internal/hub/client.go
package hub

import (
	"errors"

	"github.com/google/uuid"
)

var (
	// ErrSendQueueFull means the client is too slow; the message is dropped
	// but the client stays registered.
	ErrSendQueueFull = errors.New("send queue full")
	// ErrSocketClosed means the transport is gone and the client must be reaped.
	ErrSocketClosed = errors.New("socket closed")
)

// Socket is the outbound half of a client connection.
type Socket interface {
	// TrySend queues payload without blocking.
	TrySend(payload []byte) error
	Close() error
}

// Client represents an accepted connection.
type Client struct {
	ID     uuid.UUID // log correlation only
	Salt   uint64    // pseudonym input, never sent or logged
	Socket Socket
}

// NewClient wraps socket with a fresh log ID and the given salt.
func NewClient(socket Socket, salt uint64) *Client {
	return &Client{
		ID:     uuid.New(),
		Salt:   salt,
		Socket: socket,
	}
}
