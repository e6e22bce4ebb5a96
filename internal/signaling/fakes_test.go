package signaling

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/callroom/internal/protocol"
)

const testOfferSDP = "v=0\r\n" +
	"o=- 1 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 103 111 13\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:103 ISAC/16000\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n" +
	"a=fmtp:111 minptime=10\r\n" +
	"a=rtpmap:13 CN/8000\r\n"

// fakeStream is a Stream without tracks that remembers which kinds are
// disabled.
type fakeStream struct {
	id string

	mu       sync.Mutex
	disabled map[webrtc.RTPCodecType]bool
}

func (f *fakeStream) ID() string                  { return f.id }
func (f *fakeStream) Tracks() []webrtc.TrackLocal { return nil }
func (f *fakeStream) Close() error                { return nil }

func (f *fakeStream) SetEnabled(kind webrtc.RTPCodecType, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disabled == nil {
		f.disabled = make(map[webrtc.RTPCodecType]bool)
	}
	f.disabled[kind] = !enabled
}

func (f *fakeStream) isDisabled(kind webrtc.RTPCodecType) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disabled[kind]
}

// fakeEndpoint records every call made by the session.
type fakeEndpoint struct {
	mu sync.Mutex

	offerErr  error
	remoteErr error
	block     chan struct{}

	offerConstraints  []Constraints
	answerConstraints []Constraints
	local             []webrtc.SessionDescription
	remote            []webrtc.SessionDescription
	candidates        []webrtc.ICECandidateInit
	streams           []Stream
	closed            int

	onCandidate func(*webrtc.ICECandidateInit)
	onStream    func(string)
}

func (f *fakeEndpoint) CreateOffer(ctx context.Context, c Constraints) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	f.offerConstraints = append(f.offerConstraints, c)
	block, err := f.block, f.offerErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return webrtc.SessionDescription{}, ctx.Err()
		}
	}
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: testOfferSDP}, nil
}

func (f *fakeEndpoint) CreateAnswer(_ context.Context, c Constraints) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answerConstraints = append(f.answerConstraints, c)
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: testOfferSDP}, nil
}

func (f *fakeEndpoint) SetLocalDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.local = append(f.local, desc)
	return nil
}

func (f *fakeEndpoint) SetRemoteDescription(desc webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remoteErr != nil {
		return f.remoteErr
	}
	f.remote = append(f.remote, desc)
	return nil
}

func (f *fakeEndpoint) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeEndpoint) AddStream(stream Stream) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams = append(f.streams, stream)
	return nil
}

func (f *fakeEndpoint) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeEndpoint) OnICECandidate(fn func(*webrtc.ICECandidateInit)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onCandidate = fn
}

func (f *fakeEndpoint) OnRemoteStream(fn func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStream = fn
}

func (f *fakeEndpoint) fireCandidate(c *webrtc.ICECandidateInit) {
	f.mu.Lock()
	fn := f.onCandidate
	f.mu.Unlock()
	fn(c)
}

func (f *fakeEndpoint) fireStream(id string) {
	f.mu.Lock()
	fn := f.onStream
	f.mu.Unlock()
	fn(id)
}

func (f *fakeEndpoint) remoteDescriptions() []webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.SessionDescription(nil), f.remote...)
}

func (f *fakeEndpoint) addedCandidates() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), f.candidates...)
}

func (f *fakeEndpoint) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeFactory hands out fakeEndpoints prepared by setup.
type fakeFactory struct {
	mu        sync.Mutex
	setup     func(*fakeEndpoint)
	fail      error
	endpoints []*fakeEndpoint
	servers   [][]webrtc.ICEServer
}

func (f *fakeFactory) New(servers []webrtc.ICEServer) (MediaEndpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	ep := &fakeEndpoint{}
	if f.setup != nil {
		f.setup(ep)
	}
	f.endpoints = append(f.endpoints, ep)
	f.servers = append(f.servers, servers)
	return ep, nil
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.endpoints)
}

func (f *fakeFactory) endpoint(i int) *fakeEndpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.endpoints[i]
}

// fakeRelay records outbound messages.
type fakeRelay struct {
	mu      sync.Mutex
	sent    []protocol.Message
	closed  int
	sendErr error
}

func (f *fakeRelay) Send(msg protocol.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeRelay) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeRelay) messages(typ protocol.Type) []protocol.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Message
	for _, m := range f.sent {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

func (f *fakeRelay) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeProvider is an IceConfigProvider with a canned result.
type fakeProvider struct {
	mu      sync.Mutex
	servers []webrtc.ICEServer
	err     error
	calls   int
}

func (f *fakeProvider) Resolve(context.Context) ([]webrtc.ICEServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.servers, f.err
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recorder collects observer notifications.
type recorder struct {
	mu      sync.Mutex
	states  []State
	streams []string
	errs    []error
}

func (r *recorder) observer() Observer {
	return Observer{
		OnStateChange: func(s State) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.states = append(r.states, s)
		},
		OnRemoteStream: func(id string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.streams = append(r.streams, id)
		},
		OnError: func(err error) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.errs = append(r.errs, err)
		},
	}
}

func (r *recorder) stateCount(s State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, st := range r.states {
		if st == s {
			n++
		}
	}
	return n
}

func (r *recorder) remoteStreams() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.streams...)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

var errRejected = errors.New("rejected")
