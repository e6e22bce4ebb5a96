package transport

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/1ureka/callroom/internal/util"
)

const sampleInterval = 20 * time.Millisecond

// opusSilence is a single 20ms Opus frame of digital silence.
var opusSilence = []byte{0xF8, 0xFF, 0xFE}

// samplePump writes a fixed sample to a track at a fixed interval. Ticks are
// skipped while enabled is false.
type samplePump struct {
	track    *webrtc.TrackLocalStaticSample
	frame    []byte
	interval time.Duration
	enabled  *atomic.Bool
}

// loop is the single-writer goroutine for the track. It exits when ctx is
// cancelled or the track stops accepting samples.
func (p *samplePump) loop(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !p.enabled.Load() {
				continue
			}
			err := p.track.WriteSample(media.Sample{Data: p.frame, Duration: p.interval})
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			if err != nil {
				util.LogError("failed to write sample (track=%s): %v", p.track.ID(), err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
