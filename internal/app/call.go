// Package app contains the top-level orchestration for the join and serve
// commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/callroom/internal/config"
	"github.com/1ureka/callroom/internal/iceconfig"
	"github.com/1ureka/callroom/internal/relay"
	"github.com/1ureka/callroom/internal/signaling"
	"github.com/1ureka/callroom/internal/util"
)

// ErrRelayClosed is returned by Call.Run when the relay connection fails
// while the call is running.
var ErrRelayClosed = errors.New("relay connection lost")

// Call is one participant of a two-party call.
type Call struct {
	cfg         config.Config
	capture     signaling.MediaCapture
	newEndpoint signaling.EndpointFactory

	// HTTPClient is used for the join request. Nil means http.DefaultClient.
	HTTPClient *http.Client

	// Observer receives session notifications in addition to the built-in
	// logging.
	Observer signaling.Observer
}

func NewCall(cfg config.Config, capture signaling.MediaCapture, newEndpoint signaling.EndpointFactory) *Call {
	return &Call{cfg: cfg, capture: capture, newEndpoint: newEndpoint}
}

// Run orchestrates the full call lifecycle:
//  1. Join the room on the relay server (role, ICE servers, TURN URL)
//  2. Connect the relay websocket and start the session
//  3. Resolve TURN servers and capture local media in the background
//  4. Run until ctx is cancelled or the relay connection ends
//  5. Hang up locally, or treat the lost relay as a remote hang up
//
// A capture failure is returned as *signaling.CaptureError and a failed relay
// connection as ErrRelayClosed.
func (c *Call) Run(ctx context.Context) error {
	// ── 1. Join ─────────────────────────────────────────────────────────
	join, err := relay.Join(ctx, c.HTTPClient, c.cfg.Server, c.cfg.Room)
	if err != nil {
		return err
	}

	role := signaling.RoleCallee
	if join.Initiator {
		role = signaling.RoleCaller
	}
	util.LogInfo("Joined room %s as %s (client %s)", join.RoomID, role, join.ClientID)

	servers, err := c.iceServers(join)
	if err != nil {
		return err
	}

	// ── 2. Relay + session ──────────────────────────────────────────────
	wsURL, err := relay.SocketURL(c.cfg.Server, join.RoomID, join.ClientID)
	if err != nil {
		return err
	}
	channel, err := relay.Dial(ctx, wsURL)
	if err != nil {
		return err
	}
	defer channel.Close()

	session := signaling.NewSession(signaling.Config{
		Role:             role,
		PreferredCodec:   c.cfg.Codec.Name,
		ClockRate:        c.cfg.Codec.ClockRate,
		Stereo:           c.cfg.Codec.Stereo,
		ICEServers:       servers,
		OfferConstraints: c.cfg.OfferConstraints,
		SDPConstraints:   signaling.DefaultSDPConstraints(),
	}, c.newEndpoint, channel, c.observer())

	var stream signaling.Stream
	sessionCtx, stopSession := context.WithCancel(context.Background())
	defer func() {
		stopSession()
		<-session.Done()
		if stream != nil {
			_ = stream.Close()
		}
	}()
	go session.Run(sessionCtx)

	relayClosed := make(chan error, 1)
	channel.Listen(relay.Handlers{
		OnMessage: session.ReceiveMessage,
		OnClose:   func(err error) { relayClosed <- err },
	})
	session.NotifyChannelOpen()

	// ── 3. ICE + media ──────────────────────────────────────────────────
	turnURL := c.cfg.ICE.TurnURL
	if turnURL == "" {
		turnURL = join.TurnURL
	}
	var provider signaling.IceConfigProvider
	if turnURL != "" {
		provider = iceconfig.NewProvider(turnURL)
	}
	session.ResolveIceConfig(ctx, provider)

	stream, err = c.capture.Acquire(ctx, c.cfg.Media)
	if err != nil {
		capErr := &signaling.CaptureError{Err: err}
		util.LogError("%v", capErr)
		if c.Observer.OnError != nil {
			c.Observer.OnError(capErr)
		}
		return capErr
	}
	if c.cfg.Mute.Audio {
		session.SetAudioMuted(true)
	}
	if c.cfg.Mute.Video {
		session.SetVideoMuted(true)
	}
	session.NotifyLocalMediaReady(stream)

	if c.cfg.StatsInterval > 0 {
		util.StartStatsReporter(sessionCtx, c.cfg.StatsInterval)
	}

	// ── 4. Wait ─────────────────────────────────────────────────────────
	var relayErr error
	select {
	case <-ctx.Done():
		// ── 5a. Local hang up ───────────────────────────────────────────
		session.Hangup()

	case err := <-relayClosed:
		// ── 5b. The relay went away: the peer can no longer be told, so
		// the call ends as if the peer had hung up.
		if err != nil {
			util.LogWarning("Relay connection lost: %v", err)
			relayErr = fmt.Errorf("%w: %v", ErrRelayClosed, err)
		} else {
			util.LogInfo("Relay connection closed")
		}
		session.NotifyRemoteHangup()
	}

	st := session.Snapshot()
	util.LogDebug("Session finished in state %s as %s", st.State, st.Role)
	return relayErr
}

// iceServers prefers locally configured servers, then those handed out by the
// relay server, then the built-in defaults.
func (c *Call) iceServers(join relay.JoinResponse) ([]webrtc.ICEServer, error) {
	if c.cfg.ICE.Explicit() || len(join.ICEServers) == 0 {
		return c.cfg.ICEServers()
	}
	for i, srv := range join.ICEServers {
		if err := iceconfig.Validate(srv); err != nil {
			return nil, fmt.Errorf("relay handed out invalid ice server %d: %w", i, err)
		}
	}
	return join.ICEServers, nil
}

func (c *Call) observer() signaling.Observer {
	return signaling.Observer{
		OnStateChange: func(st signaling.State) {
			switch st {
			case signaling.StateActive:
				util.LogSuccess("Call established")
			case signaling.StateClosed:
				util.LogInfo("Call ended")
			}
			if c.Observer.OnStateChange != nil {
				c.Observer.OnStateChange(st)
			}
		},
		OnRemoteStream: func(id string) {
			if c.Observer.OnRemoteStream != nil {
				c.Observer.OnRemoteStream(id)
			}
		},
		OnError: func(err error) {
			if c.Observer.OnError != nil {
				c.Observer.OnError(err)
			}
		},
	}
}
