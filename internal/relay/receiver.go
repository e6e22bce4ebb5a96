package relay

import (
	"github.com/gorilla/websocket"

	"github.com/1ureka/callroom/internal/protocol"
	"github.com/1ureka/callroom/internal/util"
)

// Handlers receive inbound relay events. Both are optional and are called
// from the read loop goroutine.
type Handlers struct {
	OnMessage func(protocol.Message)

	// OnClose is called once when the read loop exits. err is nil after a
	// local Close or a normal close from the server.
	OnClose func(err error)
}

// Listen starts the read loop. Malformed messages are logged and dropped.
func (c *Client) Listen(h Handlers) {
	go func() {
		err := c.watch(h)
		close(c.done)
		if h.OnClose != nil {
			h.OnClose(err)
		}
	}()
}

func (c *Client) watch(h Handlers) error {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return nil
			default:
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			util.Stats.AddDropped()
			util.LogWarning("Dropping relay message: %v", err)
			continue
		}

		if h.OnMessage != nil {
			h.OnMessage(msg)
		}
	}
}
