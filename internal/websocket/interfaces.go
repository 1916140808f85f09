package websocket

import (
	"context"
	"net"
	"time"

	"asyncops/pkg/contracts/events"
)

// Connection is the subset of *websocket.Conn used by a client.
// It exists so pumps can be tested without a network.
type Connection interface {
	WriteMessage(messageType int, data []byte) error
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	RemoteAddr() net.Addr
}

// Broadcaster fans a typed message out to every connected client
type Broadcaster interface {
	BroadcastMessage(ctx context.Context, msgType events.MessageType, data any) error
}
