package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/callroom/internal/signaling"
)

// ErrNoMedia is returned when neither audio nor video is requested.
var ErrNoMedia = errors.New("no media kind requested")

// SyntheticCapture is a signaling.MediaCapture that produces generated media
// instead of reading devices: an Opus track carrying silence and, when video
// is requested, a VP8 track that carries no frames.
type SyntheticCapture struct{}

func NewSyntheticCapture() *SyntheticCapture { return &SyntheticCapture{} }

// Acquire creates a new stream. The audio pump runs until the stream is closed.
func (c *SyntheticCapture) Acquire(ctx context.Context, constraints signaling.MediaConstraints) (signaling.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !constraints.Audio && !constraints.Video {
		return nil, ErrNoMedia
	}

	id := uuid.NewString()
	pumpCtx, cancel := context.WithCancel(context.Background())
	s := &syntheticStream{id: id, cancel: cancel}
	s.audioOn.Store(true)
	s.videoOn.Store(true)

	if constraints.Audio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio-"+id, id,
		)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create audio track: %w", err)
		}
		s.tracks = append(s.tracks, audio)

		pump := &samplePump{track: audio, frame: opusSilence, interval: sampleInterval, enabled: &s.audioOn}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			pump.loop(pumpCtx)
		}()
	}

	if constraints.Video {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video-"+id, id,
		)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create video track: %w", err)
		}
		s.tracks = append(s.tracks, video)
	}

	return s, nil
}

type syntheticStream struct {
	id     string
	tracks []webrtc.TrackLocal
	cancel context.CancelFunc
	wg     sync.WaitGroup

	audioOn atomic.Bool
	videoOn atomic.Bool
}

func (s *syntheticStream) ID() string                  { return s.id }
func (s *syntheticStream) Tracks() []webrtc.TrackLocal { return s.tracks }

// SetEnabled pauses or resumes the sample pump of kind. The video track
// carries no frames, so only its flag changes.
func (s *syntheticStream) SetEnabled(kind webrtc.RTPCodecType, enabled bool) {
	switch kind {
	case webrtc.RTPCodecTypeAudio:
		s.audioOn.Store(enabled)
	case webrtc.RTPCodecTypeVideo:
		s.videoOn.Store(enabled)
	}
}

// Close stops the sample pumps and waits for them to exit.
func (s *syntheticStream) Close() error {
	s.cancel()
	s.wg.Wait()
	return nil
}
