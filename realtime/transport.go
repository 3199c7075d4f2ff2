package realtime

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is the part of *websocket.Conn the channel uses.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// DialFunc opens a connection to endpoint.
type DialFunc func(ctx context.Context, endpoint string) (Conn, error)

// GorillaDialer dials with gorilla/websocket.
func GorillaDialer(handshakeTimeout time.Duration) DialFunc {
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeTimeout,
	}
	return func(ctx context.Context, endpoint string) (Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, endpoint, nil)
		if err != nil {
			if resp != nil {
				return nil, fmt.Errorf("handshake rejected with %d: %w", resp.StatusCode, err)
			}
			return nil, err
		}
		return conn, nil
	}
}

// Timer is a pending scheduled call.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type clockScheduler struct{}

func (clockScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
