package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/callroom/internal/signaling"
	"github.com/1ureka/callroom/internal/util"
)

// Endpoint is the pion-backed signaling.MediaEndpoint. It wraps a single
// PeerConnection; every remote track is read and discarded, and remote streams
// are reported once per stream ID.
type Endpoint struct {
	pc *webrtc.PeerConnection

	mu          sync.RWMutex
	pcState     webrtc.PeerConnectionState
	seenStreams map[string]bool
	senders     []*webrtc.RTPSender
}

// NewEndpoint creates an Endpoint backed by a new PeerConnection.
func NewEndpoint(servers []webrtc.ICEServer) (*Endpoint, error) {
	pc, err := newPeerConnection(servers)
	if err != nil {
		return nil, err
	}

	e := &Endpoint{
		pc:          pc,
		pcState:     webrtc.PeerConnectionStateNew,
		seenStreams: make(map[string]bool),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogInfo("PeerConnection state: %s", state.String())
		e.mu.Lock()
		e.pcState = state
		e.mu.Unlock()
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		util.LogDebug("ICE connection state: %s", state.String())
	})

	return e, nil
}

// Factory adapts NewEndpoint to signaling.EndpointFactory.
func Factory(servers []webrtc.ICEServer) (signaling.MediaEndpoint, error) {
	return NewEndpoint(servers)
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Close shuts down the senders and the PeerConnection.
func (e *Endpoint) Close() error {
	e.mu.RLock()
	senders := append([]*webrtc.RTPSender(nil), e.senders...)
	e.mu.RUnlock()

	errs := make([]error, 0, len(senders)+1)
	for _, s := range senders {
		errs = append(errs, s.Stop())
	}
	errs = append(errs, e.pc.Close())
	return errors.Join(errs...)
}

// ConnectionState returns the last observed PeerConnection state.
func (e *Endpoint) ConnectionState() webrtc.PeerConnectionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.pcState
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer. Receive-only transceivers are added for
// the kinds requested by constraints that no local track already covers.
func (e *Endpoint) CreateOffer(ctx context.Context, constraints signaling.Constraints) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := e.ensureReceivers(constraints); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return e.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: constraints.Wants("IceRestart")})
}

// CreateAnswer generates an SDP answer for the applied remote offer.
func (e *Endpoint) CreateAnswer(ctx context.Context, _ signaling.Constraints) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return e.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (e *Endpoint) SetLocalDescription(desc webrtc.SessionDescription) error {
	return e.pc.SetLocalDescription(desc)
}

// SetRemoteDescription applies the remote SDP.
func (e *Endpoint) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return e.pc.SetRemoteDescription(desc)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (e *Endpoint) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return e.pc.AddICECandidate(candidate)
}

// OnICECandidate registers a callback invoked whenever a new local ICE
// candidate is gathered. A nil candidate signals the end of gathering.
func (e *Endpoint) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	e.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			fn(nil)
			return
		}
		init := c.ToJSON()
		fn(&init)
	})
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddStream attaches every track of stream to the PeerConnection.
func (e *Endpoint) AddStream(stream signaling.Stream) error {
	for _, track := range stream.Tracks() {
		sender, err := e.pc.AddTrack(track)
		if err != nil {
			return err
		}

		e.mu.Lock()
		e.senders = append(e.senders, sender)
		e.mu.Unlock()

		go drainRTCP(sender)
	}
	return nil
}

// OnRemoteStream registers a callback invoked once for each remote stream.
func (e *Endpoint) OnRemoteStream(fn func(streamID string)) {
	e.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		util.LogDebug("Remote track: kind=%s codec=%s stream=%s",
			track.Kind(), track.Codec().MimeType, track.StreamID())

		go discardRTP(track)

		e.mu.Lock()
		seen := e.seenStreams[track.StreamID()]
		e.seenStreams[track.StreamID()] = true
		e.mu.Unlock()

		if !seen {
			fn(track.StreamID())
		}
	})
}

func (e *Endpoint) ensureReceivers(constraints signaling.Constraints) error {
	wanted := []struct {
		name string
		kind webrtc.RTPCodecType
	}{
		{signaling.OfferToReceiveAudio, webrtc.RTPCodecTypeAudio},
		{signaling.OfferToReceiveVideo, webrtc.RTPCodecTypeVideo},
	}

	for _, w := range wanted {
		if !constraints.Wants(w.name) || e.hasTransceiver(w.kind) {
			continue
		}
		_, err := e.pc.AddTransceiverFromKind(w.kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Endpoint) hasTransceiver(kind webrtc.RTPCodecType) bool {
	for _, tr := range e.pc.GetTransceivers() {
		if tr.Kind() == kind {
			return true
		}
	}
	return false
}

// drainRTCP reads RTCP for a sender until it stops; interceptors only run
// while somebody reads.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func discardRTP(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}
