package signaling

import (
	"context"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/callroom/internal/iceconfig"
	"github.com/1ureka/callroom/internal/protocol"
	"github.com/1ureka/callroom/internal/sdp"
	"github.com/1ureka/callroom/internal/util"
)

// Config holds the per-session parameters fixed at construction time.
type Config struct {
	Role Role

	// PreferredCodec and ClockRate select the audio codec moved to the front
	// of every local description.
	PreferredCodec string
	ClockRate      int

	// Stereo requests stereo=1 on the preferred codec of remote descriptions.
	Stereo bool

	// ICEServers are the servers known before any lookup. Servers returned by
	// an IceConfigProvider are appended to them.
	ICEServers []webrtc.ICEServer

	OfferConstraints Constraints
	SDPConstraints   Constraints
}

// Observer receives session notifications. Every field is optional and is
// invoked from the session loop goroutine.
type Observer struct {
	OnStateChange  func(State)
	OnRemoteStream func(streamID string)
	OnError        func(error)
}

// Status is a point-in-time copy of the session state.
type Status struct {
	State             State
	Role              Role
	Started           bool
	LocalMediaReady   bool
	ChannelReady      bool
	IceConfigResolved bool
	SignalingReady    bool
	AudioMuted        bool
	VideoMuted        bool
	HasEndpoint       bool
	ICEServers        []webrtc.ICEServer
	Queued            []protocol.Message
}

// Session coordinates call setup between two peers: it waits for local media,
// the relay channel and the ICE configuration, then runs the offer/answer
// exchange over the relay channel.
//
// All state is owned by the goroutine running Run. Every exported method only
// posts an event, so they are safe to call from any goroutine, including pion
// callbacks.
type Session struct {
	cfg         Config
	newEndpoint EndpointFactory
	relay       RelayChannel
	observer    Observer

	events *eventQueue
	done   chan struct{}

	// Loop-owned state below.
	ctx   context.Context
	role  Role
	state State

	started           bool
	closedLocally     bool
	localMediaReady   bool
	channelReady      bool
	iceConfigResolved bool
	signalingReady    bool

	audioMuted bool
	videoMuted bool

	epoch       uint64
	queue       *MessageQueue
	endpoint    MediaEndpoint
	localStream Stream
	iceServers  []webrtc.ICEServer
}

func NewSession(cfg Config, newEndpoint EndpointFactory, relay RelayChannel, observer Observer) *Session {
	if cfg.PreferredCodec == "" {
		cfg.PreferredCodec = "opus"
		cfg.ClockRate = 48000
	}

	s := &Session{
		cfg:         cfg,
		newEndpoint: newEndpoint,
		relay:       relay,
		observer:    observer,
		events:      newEventQueue(),
		done:        make(chan struct{}),
		ctx:         context.Background(),
		role:        cfg.Role,
		queue:       NewMessageQueue(),
		iceServers:  append([]webrtc.ICEServer(nil), cfg.ICEServers...),
	}
	s.signalingReady = cfg.Role == RoleCaller
	return s
}

// Run processes session events until ctx is cancelled. The media endpoint, if
// any, is closed before Run returns.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)
	defer s.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.events.signal:
			for _, fn := range s.events.drain() {
				fn()
			}
		}
	}
}

// Done is closed once Run has returned.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) NotifyLocalMediaReady(stream Stream) {
	s.events.post(func() {
		if s.ignoreAfterHangup("local media ready") {
			return
		}
		s.localStream = stream
		s.localMediaReady = true
		if s.audioMuted {
			s.applyMute(webrtc.RTPCodecTypeAudio, true)
		}
		if s.videoMuted {
			s.applyMute(webrtc.RTPCodecTypeVideo, true)
		}
		s.maybeStart()
	})
}

func (s *Session) NotifyChannelOpen() {
	s.events.post(func() {
		if s.ignoreAfterHangup("channel open") {
			return
		}
		s.channelReady = true
		s.maybeStart()
	})
}

// NotifyIceConfigResolved appends the looked-up servers (possibly none) to the
// configured ones and marks the ICE configuration as resolved.
func (s *Session) NotifyIceConfigResolved(servers []webrtc.ICEServer) {
	s.events.post(func() {
		if s.ignoreAfterHangup("ice config resolved") {
			return
		}
		if !s.iceConfigResolved {
			s.iceServers = append(s.iceServers, servers...)
		}
		s.iceConfigResolved = true
		s.maybeStart()
	})
}

// ResolveIceConfig looks up extra ICE servers in the background and always
// ends in NotifyIceConfigResolved. A lookup is skipped when the configured
// servers already include TURN or provider is nil; a failed lookup is logged
// and the session continues with the configured servers.
func (s *Session) ResolveIceConfig(ctx context.Context, provider IceConfigProvider) {
	if provider == nil || iceconfig.HasTURN(s.cfg.ICEServers) {
		s.NotifyIceConfigResolved(nil)
		return
	}

	go func() {
		servers, err := provider.Resolve(ctx)
		if err != nil {
			util.LogWarning("%v, continuing with configured ICE servers", &IceConfigError{Err: err})
			servers = nil
		}
		s.NotifyIceConfigResolved(servers)
	}()
}

// ReceiveMessage hands an inbound signaling message to the session.
func (s *Session) ReceiveMessage(msg protocol.Message) {
	s.events.post(func() {
		util.Stats.AddRecv()
		s.handleInbound(msg)
	})
}

// Hangup ends the call locally: the endpoint is closed, a Bye is sent and the
// relay channel is closed. Later calls have no effect.
func (s *Session) Hangup() {
	s.events.post(s.hangup)
}

// NotifyRemoteHangup ends the call on behalf of the remote peer. The relay
// channel stays open and the session waits, as callee, for a new offer.
func (s *Session) NotifyRemoteHangup() {
	s.events.post(s.remoteHangup)
}

// SetAudioMuted disables or re-enables the local audio tracks. The flag is
// reset when the call ends.
func (s *Session) SetAudioMuted(muted bool) {
	s.events.post(func() {
		if s.ignoreAfterHangup("audio mute") {
			return
		}
		s.audioMuted = muted
		s.applyMute(webrtc.RTPCodecTypeAudio, muted)
	})
}

// SetVideoMuted disables or re-enables the local video tracks. The flag is
// reset when the call ends.
func (s *Session) SetVideoMuted(muted bool) {
	s.events.post(func() {
		if s.ignoreAfterHangup("video mute") {
			return
		}
		s.videoMuted = muted
		s.applyMute(webrtc.RTPCodecTypeVideo, muted)
	})
}

// Snapshot returns the current status. It waits for all previously posted
// events to be processed, unless Run is not running.
func (s *Session) Snapshot() Status {
	reply := make(chan Status, 1)
	s.events.post(func() { reply <- s.status() })

	select {
	case st := <-reply:
		return st
	case <-s.done:
		return s.status()
	}
}

func (s *Session) status() Status {
	return Status{
		State:             s.state,
		Role:              s.role,
		Started:           s.started,
		LocalMediaReady:   s.localMediaReady,
		ChannelReady:      s.channelReady,
		IceConfigResolved: s.iceConfigResolved,
		SignalingReady:    s.signalingReady,
		AudioMuted:        s.audioMuted,
		VideoMuted:        s.videoMuted,
		HasEndpoint:       s.endpoint != nil,
		ICEServers:        append([]webrtc.ICEServer(nil), s.iceServers...),
		Queued:            s.queue.Snapshot(),
	}
}

func (s *Session) ignoreAfterHangup(event string) bool {
	if s.closedLocally {
		util.LogDebug("Ignoring %s after hangup", event)
		return true
	}
	return false
}

// ----------------------------------------------------------------------------
// Start
// ----------------------------------------------------------------------------

func (s *Session) maybeStart() {
	if s.started || s.state != StateIdle {
		return
	}
	if !s.localMediaReady || !s.channelReady || !s.iceConfigResolved || !s.signalingReady {
		return
	}

	util.LogDebug("Creating media endpoint with %d ICE server(s)", len(s.iceServers))
	ep, err := s.newEndpoint(s.iceServers)
	if err != nil {
		s.fail(&EndpointError{Op: "create endpoint", Err: err})
		return
	}

	s.started = true
	s.epoch++
	s.endpoint = ep

	epoch := s.epoch
	ep.OnICECandidate(func(c *webrtc.ICECandidateInit) {
		s.events.post(func() { s.onLocalCandidate(epoch, c) })
	})
	ep.OnRemoteStream(func(streamID string) {
		s.events.post(func() { s.onRemoteStream(epoch, streamID) })
	})

	if s.localStream != nil {
		if err := ep.AddStream(s.localStream); err != nil {
			s.fail(&EndpointError{Op: "add local stream", Err: err})
		}
	}

	util.Stats.AddSession()
	s.setState(StateNegotiating)

	if s.role == RoleCaller {
		s.doCall()
		return
	}
	s.drainQueue()
}

func (s *Session) doCall() {
	constraints := MergeConstraints(s.cfg.OfferConstraints, DefaultSDPConstraints())
	ep := s.endpoint
	util.LogInfo("Sending offer to peer")
	s.async(
		func(ctx context.Context) (webrtc.SessionDescription, error) { return ep.CreateOffer(ctx, constraints) },
		func(desc webrtc.SessionDescription, err error) { s.setLocalAndSend(desc, err, protocol.TypeOffer) },
	)
}

func (s *Session) drainQueue() {
	for {
		msg, ok := s.queue.PopFront()
		if !ok {
			return
		}
		s.process(msg)
	}
}

// async runs op off the loop and posts done back. done is skipped when the
// endpoint that op was issued against has been released in the meantime.
func (s *Session) async(
	op func(ctx context.Context) (webrtc.SessionDescription, error),
	done func(webrtc.SessionDescription, error),
) {
	epoch := s.epoch
	ctx := s.ctx
	go func() {
		desc, err := op(ctx)
		s.events.post(func() {
			if epoch != s.epoch || s.endpoint == nil {
				util.LogDebug("Discarding stale %s completion", desc.Type)
				return
			}
			done(desc, err)
		})
	}()
}

// ----------------------------------------------------------------------------
// Inbound messages
// ----------------------------------------------------------------------------

func (s *Session) handleInbound(msg protocol.Message) {
	if s.closedLocally {
		s.violation(msg, "session hung up")
		return
	}

	// After a remote hangup the session waits as callee for the next offer;
	// anything that overtakes that offer is held for it.
	if s.state == StateClosed {
		switch msg.Type {
		case protocol.TypeOffer:
			s.rearm()
		case protocol.TypeBye:
			util.LogDebug("Ignoring bye, session already closed")
			return
		default:
			s.queue.PushBack(msg)
			return
		}
	}

	if s.state == StateIdle {
		if msg.Type == protocol.TypeBye {
			s.remoteHangup()
			return
		}
		if s.role == RoleCallee {
			s.buffer(msg)
			return
		}
		s.violation(msg, "caller has not started")
		return
	}

	s.process(msg)
}

func (s *Session) buffer(msg protocol.Message) {
	if msg.Type != protocol.TypeOffer {
		s.queue.PushBack(msg)
		return
	}

	if s.queue.HasOffer() {
		s.violation(msg, "second offer before start")
		return
	}
	s.queue.PushFront(msg)
	s.signalingReady = true
	s.maybeStart()
}

func (s *Session) process(msg protocol.Message) {
	if s.endpoint == nil {
		s.violation(msg, "no media endpoint")
		return
	}

	switch msg.Type {
	case protocol.TypeOffer:
		s.onRemoteDescription(webrtc.SDPTypeOffer, msg.SDP)
	case protocol.TypeAnswer:
		s.onRemoteDescription(webrtc.SDPTypeAnswer, msg.SDP)
	case protocol.TypeCandidate:
		if msg.Candidate == nil {
			s.violation(msg, "candidate without payload")
			return
		}
		if err := s.endpoint.AddICECandidate(candidateToInit(*msg.Candidate)); err != nil {
			s.fail(&EndpointError{Op: "add ice candidate", Err: err})
		}
	case protocol.TypeBye:
		s.remoteHangup()
	default:
		s.violation(msg, "unknown message type")
	}
}

func (s *Session) onRemoteDescription(typ webrtc.SDPType, text string) {
	if s.cfg.Stereo {
		text = sdp.InjectStereo(text, s.cfg.PreferredCodec, s.cfg.ClockRate)
	}
	s.logCodecs("remote "+typ.String(), text)

	err := s.endpoint.SetRemoteDescription(webrtc.SessionDescription{Type: typ, SDP: text})
	if err != nil {
		s.fail(&EndpointError{Op: "set remote " + typ.String(), Err: err})
		return
	}

	if typ == webrtc.SDPTypeAnswer {
		s.setState(StateActive)
		return
	}

	constraints := s.cfg.SDPConstraints
	ep := s.endpoint
	util.LogInfo("Sending answer to peer")
	s.async(
		func(ctx context.Context) (webrtc.SessionDescription, error) { return ep.CreateAnswer(ctx, constraints) },
		func(desc webrtc.SessionDescription, err error) { s.setLocalAndSend(desc, err, protocol.TypeAnswer) },
	)
}

func (s *Session) setLocalAndSend(desc webrtc.SessionDescription, err error, typ protocol.Type) {
	if err != nil {
		s.fail(&EndpointError{Op: "create " + string(typ), Err: err})
		return
	}

	desc.SDP = sdp.PreferCodec(desc.SDP, s.cfg.PreferredCodec, s.cfg.ClockRate)
	if err := s.endpoint.SetLocalDescription(desc); err != nil {
		s.fail(&EndpointError{Op: "set local " + string(typ), Err: err})
		return
	}
	s.logCodecs("local "+string(typ), desc.SDP)

	if typ == protocol.TypeOffer {
		s.send(protocol.NewOffer(desc.SDP))
		return
	}
	s.send(protocol.NewAnswer(desc.SDP))
	s.setState(StateActive)
}

func (s *Session) onLocalCandidate(epoch uint64, c *webrtc.ICECandidateInit) {
	if epoch != s.epoch || s.endpoint == nil {
		return
	}
	if c == nil {
		util.LogDebug("End of local ICE candidates")
		return
	}
	s.send(protocol.NewCandidate(candidateFromInit(*c)))
}

func (s *Session) onRemoteStream(epoch uint64, streamID string) {
	if epoch != s.epoch || s.endpoint == nil {
		return
	}
	util.LogSuccess("Remote stream added: %s", streamID)
	if s.observer.OnRemoteStream != nil {
		s.observer.OnRemoteStream(streamID)
	}
}

// ----------------------------------------------------------------------------
// Teardown
// ----------------------------------------------------------------------------

func (s *Session) hangup() {
	if s.closedLocally {
		return
	}
	util.LogInfo("Hanging up")
	s.closedLocally = true
	s.release()
	s.setState(StateClosed)

	s.send(protocol.NewBye())
	if err := s.relay.Close(); err != nil {
		util.LogDebug("Closing relay channel: %v", err)
	}
}

func (s *Session) remoteHangup() {
	if s.closedLocally || s.state == StateClosed {
		return
	}
	util.LogInfo("Session terminated by remote peer")
	s.role = RoleCallee
	s.release()
	s.setState(StateClosed)
}

// rearm turns a remotely closed session into a fresh callee instance waiting
// for the offer that is about to be buffered.
func (s *Session) rearm() {
	util.LogInfo("New offer after remote hangup, waiting as callee")
	s.role = RoleCallee
	s.started = false
	s.signalingReady = false
	s.epoch++
	s.setState(StateIdle)
}

// release closes the endpoint and drops everything tied to it. Pending async
// completions become stale.
func (s *Session) release() {
	s.epoch++
	if s.endpoint != nil {
		if err := s.endpoint.Close(); err != nil {
			util.LogDebug("Closing media endpoint: %v", err)
		}
		s.endpoint = nil
	}
	s.queue.Clear()
	s.started = false
	s.signalingReady = s.role == RoleCaller

	if s.audioMuted {
		s.audioMuted = false
		s.applyMute(webrtc.RTPCodecTypeAudio, false)
	}
	if s.videoMuted {
		s.videoMuted = false
		s.applyMute(webrtc.RTPCodecTypeVideo, false)
	}
}

func (s *Session) shutdown() {
	if s.endpoint != nil {
		if err := s.endpoint.Close(); err != nil {
			util.LogDebug("Closing media endpoint: %v", err)
		}
		s.endpoint = nil
	}
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func (s *Session) send(msg protocol.Message) {
	if err := s.relay.Send(msg); err != nil {
		util.LogWarning("Failed to send %s: %v", msg.Type, err)
		return
	}
	util.Stats.AddSent()
}

func (s *Session) applyMute(kind webrtc.RTPCodecType, muted bool) {
	if s.localStream == nil {
		return
	}
	s.localStream.SetEnabled(kind, !muted)
	util.LogDebug("Local %s muted: %v", kind, muted)
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	util.LogDebug("Session state %s -> %s", s.state, st)
	s.state = st
	if s.observer.OnStateChange != nil {
		s.observer.OnStateChange(st)
	}
}

func (s *Session) fail(err error) {
	util.LogError("%v", err)
	if s.observer.OnError != nil {
		s.observer.OnError(err)
	}
}

func (s *Session) violation(msg protocol.Message, reason string) {
	util.Stats.AddDropped()
	util.LogWarning("%v: dropping %s (%s)", ErrProtocolViolation, msg.Type, reason)
}

func (s *Session) logCodecs(label, text string) {
	codecs, err := sdp.AudioCodecs(text)
	if err != nil || len(codecs) == 0 {
		return
	}
	names := make([]string, len(codecs))
	for i, c := range codecs {
		names[i] = c.String()
	}
	util.LogDebug("%s audio codecs: %s", label, strings.Join(names, ", "))
}
