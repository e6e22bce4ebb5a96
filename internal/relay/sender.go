package relay

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/callroom/internal/protocol"
)

const writeTimeout = 5 * time.Second

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("relay channel closed")

// Send encodes msg and writes it as one text frame, guarded by a mutex.
func (c *Client) Send(msg protocol.Message) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
