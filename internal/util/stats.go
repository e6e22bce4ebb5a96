package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling counter.
var Stats = &stats{}

type stats struct {
	MessagesSent    atomic.Int64 // signaling messages written to the relay channel
	MessagesRecv    atomic.Int64 // signaling messages read from the relay channel
	MessagesDropped atomic.Int64 // protocol violations and undecodable messages
	SessionsStarted atomic.Int64 // media endpoints created
}

func (s *stats) AddSent()    { s.MessagesSent.Add(1) }
func (s *stats) AddRecv()    { s.MessagesRecv.Add(1) }
func (s *stats) AddDropped() { s.MessagesDropped.Add(1) }
func (s *stats) AddSession() { s.SessionsStarted.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling statistics
// every interval, but only when something changed. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prevSent, prevRecv, prevDropped int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.MessagesSent.Load()
				recv := Stats.MessagesRecv.Load()
				dropped := Stats.MessagesDropped.Load()

				if sent != prevSent || recv != prevRecv || dropped != prevDropped {
					pterm.DefaultLogger.Info(formatStats(sent, recv, dropped, Stats.SessionsStarted.Load()))
				}

				prevSent = sent
				prevRecv = recv
				prevDropped = dropped

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(sent, recv, dropped, sessions int64) string {
	return fmt.Sprintf("Signaling: %4d↑ %4d↓ | Dropped: %3d | Sessions: %2d",
		sent,
		recv,
		dropped,
		sessions,
	)
}
