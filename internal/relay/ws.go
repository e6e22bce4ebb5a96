// Package relay carries signaling messages between the two peers of a call
// over websockets: a client implementing signaling.RelayChannel and the room
// relay server it connects to.
package relay

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a websocket connection to the room relay server. It implements
// signaling.RelayChannel.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
}

// Dial connects to the relay websocket at wsURL. The read loop starts with
// Listen.
func Dial(ctx context.Context, wsURL string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to relay: %w", err)
	}
	return &Client{
		conn:   conn,
		closed: make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Done is closed when the read loop has exited.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close sends a close frame and closes the connection. It is safe to call
// more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)

		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
			time.Now().Add(writeTimeout))

		err = c.conn.Close()
	})
	return err
}

// SocketURL turns a relay base URL (http, https, ws or wss) into the
// websocket URL for the given room and client.
func SocketURL(base, room, clientID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", base)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}

	u.Path = "/ws"
	u.RawQuery = url.Values{"r": {room}, "u": {clientID}}.Encode()
	return u.String(), nil
}

// HTTPURL turns a relay base URL into its http(s) form with the given path.
func HTTPURL(base, path string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", base)
	}

	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "http"
	default:
		u.Scheme = "https"
	}

	u.Path = path
	u.RawQuery = ""
	return u.String(), nil
}
