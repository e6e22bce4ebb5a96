package relay

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/callroom/internal/iceconfig"
	"github.com/1ureka/callroom/internal/protocol"
)

const waitFor = 2 * time.Second

type peer struct {
	join   JoinResponse
	client *Client
	inbox  chan protocol.Message
	closed chan error
}

func newTestServer(t *testing.T, cfg ServerConfig) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(cfg)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return s, srv
}

func joinAndDial(t *testing.T, base, room string) *peer {
	t.Helper()
	ctx := context.Background()

	join, err := Join(ctx, nil, base, room)
	require.NoError(t, err)

	wsURL, err := SocketURL(base, join.RoomID, join.ClientID)
	require.NoError(t, err)
	client, err := Dial(ctx, wsURL)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	p := &peer{
		join:   join,
		client: client,
		inbox:  make(chan protocol.Message, 16),
		closed: make(chan error, 1),
	}
	client.Listen(Handlers{
		OnMessage: func(msg protocol.Message) { p.inbox <- msg },
		OnClose:   func(err error) { p.closed <- err },
	})
	return p
}

func (p *peer) next(t *testing.T) protocol.Message {
	t.Helper()
	select {
	case msg := <-p.inbox:
		return msg
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for relay message")
		return protocol.Message{}
	}
}

func TestJoinAssignsInitiator(t *testing.T) {
	stun := iceconfig.DefaultServers()
	s, srv := newTestServer(t, ServerConfig{ICEServers: stun})
	ctx := context.Background()

	first, err := Join(ctx, nil, srv.URL, "room1")
	require.NoError(t, err)
	second, err := Join(ctx, nil, srv.URL, "room1")
	require.NoError(t, err)
	_, err = Join(ctx, nil, srv.URL, "room1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "full")

	assert.True(t, first.Initiator)
	assert.False(t, second.Initiator)
	assert.NotEqual(t, first.ClientID, second.ClientID)
	assert.Equal(t, "room1", first.RoomID)
	assert.Empty(t, first.TurnURL)
	require.Len(t, first.ICEServers, 1)
	assert.Equal(t, stun[0].URLs, first.ICEServers[0].URLs)

	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.rooms))
	assert.Equal(t, float64(2), testutil.ToFloat64(s.metrics.members))
}

func TestJoinRequiresRoom(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})

	resp, err := http.Get(srv.URL + "/join")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestForwardBuffersUntilPeerConnects(t *testing.T) {
	s, srv := newTestServer(t, ServerConfig{})

	caller := joinAndDial(t, srv.URL, "room")
	require.NoError(t, caller.client.Send(protocol.NewOffer("v=0\r\n")))
	require.NoError(t, caller.client.Send(protocol.NewCandidate(protocol.Candidate{SDPMid: "0", Candidate: "candidate:1"})))

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.buffered) == 2
	}, waitFor, 5*time.Millisecond)

	callee := joinAndDial(t, srv.URL, "room")
	assert.Equal(t, protocol.NewOffer("v=0\r\n"), callee.next(t))
	cand := callee.next(t)
	require.Equal(t, protocol.TypeCandidate, cand.Type)
	assert.Equal(t, "candidate:1", cand.Candidate.Candidate)

	require.NoError(t, callee.client.Send(protocol.NewAnswer("v=0\r\n")))
	assert.Equal(t, protocol.NewAnswer("v=0\r\n"), caller.next(t))

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(s.metrics.forwarded.WithLabelValues("answer")) == 1
	}, waitFor, 5*time.Millisecond)
}

func TestLeaveSendsBye(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})

	a := joinAndDial(t, srv.URL, "room")
	b := joinAndDial(t, srv.URL, "room")

	require.NoError(t, b.client.Close())
	assert.Equal(t, protocol.NewBye(), a.next(t))

	// The next joiner initiates against the remaining member.
	require.Eventually(t, func() bool {
		join, err := Join(context.Background(), nil, srv.URL, "room")
		return err == nil && join.Initiator
	}, waitFor, 10*time.Millisecond)
}

func TestExplicitByeIsNotRepeated(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})

	a := joinAndDial(t, srv.URL, "room")
	b := joinAndDial(t, srv.URL, "room")

	require.NoError(t, b.client.Send(protocol.NewBye()))
	require.NoError(t, b.client.Close())

	assert.Equal(t, protocol.NewBye(), a.next(t))
	select {
	case msg := <-a.inbox:
		t.Fatalf("unexpected message after bye: %v", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	s, srv := newTestServer(t, ServerConfig{})

	a := joinAndDial(t, srv.URL, "room")
	join, err := Join(context.Background(), nil, srv.URL, "room")
	require.NoError(t, err)
	wsURL, err := SocketURL(srv.URL, join.RoomID, join.ClientID)
	require.NoError(t, err)

	raw, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer raw.Close()

	require.NoError(t, raw.WriteMessage(websocket.TextMessage, []byte(`{"type":"offer"}`)))
	require.NoError(t, raw.WriteMessage(websocket.TextMessage, []byte(`{"type":"bye"}`)))

	assert.Equal(t, protocol.NewBye(), a.next(t))
	assert.Equal(t, float64(1), testutil.ToFloat64(s.metrics.dropped.WithLabelValues("malformed")))
}

func TestClientDropsMalformedFromServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"nope"}`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bye"}`))
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	client, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)
	defer client.Close()

	inbox := make(chan protocol.Message, 4)
	closed := make(chan error, 1)
	client.Listen(Handlers{
		OnMessage: func(msg protocol.Message) { inbox <- msg },
		OnClose:   func(err error) { closed <- err },
	})

	select {
	case err := <-closed:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("read loop did not exit")
	}
	require.Len(t, inbox, 1)
	assert.Equal(t, protocol.NewBye(), <-inbox)
	<-client.Done()
}

func TestSendAfterClose(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})
	a := joinAndDial(t, srv.URL, "room")

	require.NoError(t, a.client.Close())
	assert.ErrorIs(t, a.client.Send(protocol.NewBye()), ErrClosed)
	assert.NoError(t, a.client.Close())
}

func TestCloseSendsCloseFrameDespiteStaleDeadline(t *testing.T) {
	received := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, _, err = conn.ReadMessage()
		received <- err
	}))
	defer srv.Close()

	client, err := Dial(context.Background(), "ws"+strings.TrimPrefix(srv.URL, "http"))
	require.NoError(t, err)

	require.NoError(t, client.conn.SetWriteDeadline(time.Now().Add(-time.Second)))
	_ = client.Close()

	select {
	case err := <-received:
		assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
	case <-time.After(waitFor):
		t.Fatal("server did not see the close frame")
	}
}

func TestUnknownMemberIsRejected(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})

	wsURL, err := SocketURL(srv.URL, "room", "nobody")
	require.NoError(t, err)
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTurnEndpoint(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		_, srv := newTestServer(t, ServerConfig{})

		resp, err := http.Get(srv.URL + "/turn?username=a")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("enabled", func(t *testing.T) {
		gen, err := iceconfig.NewGenerator(iceconfig.GeneratorConfig{
			SharedSecret: "secret",
			TTL:          time.Hour,
			Prefix:       "callroom",
		})
		require.NoError(t, err)
		_, srv := newTestServer(t, ServerConfig{Turn: gen, TurnURIs: []string{"turn:turn.example.com:3478"}})

		join, err := Join(context.Background(), nil, srv.URL, "room")
		require.NoError(t, err)
		require.NotEmpty(t, join.TurnURL)
		assert.Contains(t, join.TurnURL, "username="+join.ClientID)

		servers, err := iceconfig.NewProvider(join.TurnURL).Resolve(context.Background())
		require.NoError(t, err)
		require.Len(t, servers, 1)
		assert.Equal(t, []string{"turn:turn.example.com:3478"}, servers[0].URLs)
		assert.Contains(t, servers[0].Username, ":callroom:"+join.ClientID)
		assert.NotEmpty(t, servers[0].Credential)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	_, srv := newTestServer(t, ServerConfig{})
	_, err := Join(context.Background(), nil, srv.URL, "room")
	require.NoError(t, err)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "callroom_room_total 1")
	assert.Contains(t, string(body), "callroom_member_total 1")
}

func TestURLs(t *testing.T) {
	tests := []struct {
		base     string
		wantWS   string
		wantHTTP string
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws?r=room&u=me", "http://localhost:8080/join"},
		{"https://relay.example.com/anything", "wss://relay.example.com/ws?r=room&u=me", "https://relay.example.com/join"},
		{"wss://relay.example.com", "wss://relay.example.com/ws?r=room&u=me", "https://relay.example.com/join"},
		{"ws://127.0.0.1:1", "ws://127.0.0.1:1/ws?r=room&u=me", "http://127.0.0.1:1/join"},
	}

	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			ws, err := SocketURL(tt.base, "room", "me")
			require.NoError(t, err)
			assert.Equal(t, tt.wantWS, ws)

			h, err := HTTPURL(tt.base, "/join")
			require.NoError(t, err)
			assert.Equal(t, tt.wantHTTP, h)
		})
	}

	_, err := SocketURL("not a url", "room", "me")
	assert.Error(t, err)
}
