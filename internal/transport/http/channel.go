package http

import (
	"context"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// wsChannel adapts a websocket connection to the core Channel interface.
// Safe for the registry to hand out across sessions: wsjson serializes
// whole-message writes.
type wsChannel struct {
	conn *websocket.Conn
}

func (c *wsChannel) Send(ctx context.Context, v any) error {
	return wsjson.Write(ctx, c.conn, v)
}
