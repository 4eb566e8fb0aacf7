package web

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// StatusClient follows the /ws/status stream of a running creature.
type StatusClient struct {
	ws *websocket.Conn
}

// DialStatus connects to the status stream at addr (host:port).
func DialStatus(ctx context.Context, addr string) (*StatusClient, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/status"}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", u.String(), err)
	}
	return &StatusClient{ws: ws}, nil
}

// Next blocks for the next status push. A deadline on ctx bounds the wait.
func (c *StatusClient) Next(ctx context.Context) (Status, error) {
	var st Status
	if err := ctx.Err(); err != nil {
		return st, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		c.ws.SetReadDeadline(deadline)
	} else {
		c.ws.SetReadDeadline(time.Time{})
	}

	stop := context.AfterFunc(ctx, func() {
		c.ws.SetReadDeadline(time.Now())
	})
	defer stop()

	if err := c.ws.ReadJSON(&st); err != nil {
		if ctx.Err() != nil {
			return st, ctx.Err()
		}
		return st, fmt.Errorf("read status: %w", err)
	}
	return st, nil
}

// Close sends a close frame and closes the connection.
func (c *StatusClient) Close() error {
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return c.ws.Close()
}
