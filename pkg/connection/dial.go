package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/coder/websocket"
)

// Conn is the subset of *websocket.Conn the manager uses.
type Conn interface {
	Read(ctx context.Context) (websocket.MessageType, []byte, error)
	Write(ctx context.Context, typ websocket.MessageType, p []byte) error
	Close(code websocket.StatusCode, reason string) error
	CloseNow() error
}

// Dialer opens a connection to url.
type Dialer func(ctx context.Context, url string) (Conn, error)

// WebsocketDialer returns a Dialer backed by github.com/coder/websocket. A
// positive readLimit overrides the library's default message size limit.
func WebsocketDialer(readLimit int64) Dialer {
	return func(ctx context.Context, url string) (Conn, error) {
		conn, _, err := websocket.Dial(ctx, url, nil)
		if err != nil {
			return nil, fmt.Errorf("dial websocket: %w", err)
		}
		if readLimit > 0 {
			conn.SetReadLimit(readLimit)
		}
		return conn, nil
	}
}

// IsCoreAbsent reports whether a dial error means nothing is reachable at the
// core address: the connection was refused, the host or network is
// unreachable, or the host name did not resolve. Any other failure means the
// core is probably running but unhealthy.
func IsCoreAbsent(err error) bool {
	if err == nil {
		return false
	}
	for _, errno := range []syscall.Errno{syscall.ECONNREFUSED, syscall.EHOSTUNREACH, syscall.ENETUNREACH} {
		if errors.Is(err, errno) {
			return true
		}
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
