package signaling

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/callroom/internal/protocol"
)

// Stream is a set of local tracks obtained from a MediaCapture.
type Stream interface {
	ID() string
	Tracks() []webrtc.TrackLocal

	// SetEnabled turns every track of the given kind on or off. A disabled
	// track stays negotiated but carries no media.
	SetEnabled(kind webrtc.RTPCodecType, enabled bool)

	Close() error
}

// MediaCapture acquires local audio/video.
type MediaCapture interface {
	Acquire(ctx context.Context, constraints MediaConstraints) (Stream, error)
}

// MediaConstraints selects which local media kinds to capture.
type MediaConstraints struct {
	Audio bool `yaml:"audio"`
	Video bool `yaml:"video"`
}

// MediaEndpoint is the peer connection. The session owns exactly one per
// started instance and is the only caller of its mutating methods.
//
// Callbacks may be invoked from any goroutine.
type MediaEndpoint interface {
	CreateOffer(ctx context.Context, constraints Constraints) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context, constraints Constraints) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddStream(stream Stream) error
	Close() error

	// OnICECandidate reports gathered local candidates; nil marks the end of
	// gathering.
	OnICECandidate(fn func(*webrtc.ICECandidateInit))
	OnRemoteStream(fn func(streamID string))
}

// EndpointFactory creates a MediaEndpoint using the resolved ICE servers.
type EndpointFactory func(servers []webrtc.ICEServer) (MediaEndpoint, error)

// RelayChannel carries signaling messages to the remote peer. Inbound events
// (open, message, close) are fed to the session by the channel's owner.
type RelayChannel interface {
	Send(msg protocol.Message) error
	Close() error
}

// IceConfigProvider looks up additional ICE servers (typically TURN).
type IceConfigProvider interface {
	Resolve(ctx context.Context) ([]webrtc.ICEServer, error)
}

// candidateToInit converts a wire candidate into pion's candidate init.
func candidateToInit(c protocol.Candidate) webrtc.ICECandidateInit {
	index := uint16(c.SDPMLineIndex)
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMLineIndex: &index,
	}
	if c.SDPMid != "" {
		mid := c.SDPMid
		init.SDPMid = &mid
	}
	return init
}

// candidateFromInit converts a gathered local candidate into its wire form.
func candidateFromInit(init webrtc.ICECandidateInit) protocol.Candidate {
	c := protocol.Candidate{Candidate: init.Candidate}
	if init.SDPMLineIndex != nil {
		c.SDPMLineIndex = int(*init.SDPMLineIndex)
	}
	if init.SDPMid != nil {
		c.SDPMid = *init.SDPMid
	}
	return c
}
