// Package debug provides runtime monitoring and diagnostics.
package debug

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/drake/carremote/network"
)

// EnvVar enables the monitor when set to "1".
const EnvVar = "CARREMOTE_DEBUG"

// DefaultInterval is how often statistics are logged.
const DefaultInterval = 5 * time.Second

// Enabled returns true if debug mode is active (CARREMOTE_DEBUG=1).
func Enabled() bool {
	return os.Getenv(EnvVar) == "1"
}

// Monitor periodically logs link statistics.
type Monitor struct {
	src      network.StatsSource
	interval time.Duration
	log      *slog.Logger
}

// NewMonitor creates a monitor for src. If debug mode is not enabled,
// returns nil; a nil Monitor's Run returns immediately.
func NewMonitor(src network.StatsSource, log *slog.Logger) *Monitor {
	if !Enabled() {
		return nil
	}
	return newMonitor(src, DefaultInterval, log)
}

func newMonitor(src network.StatsSource, interval time.Duration, log *slog.Logger) *Monitor {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Monitor{src: src, interval: interval, log: log}
}

// Run logs statistics every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	if m == nil {
		return
	}
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.log.Debug("monitor started", "interval", m.interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Debug("monitor stopped")
			return
		case <-ticker.C:
			m.logStats()
		}
	}
}

func (m *Monitor) logStats() {
	s := m.src.Stats()

	lastRead := "never"
	if !s.LastReadTime.IsZero() {
		lastRead = time.Since(s.LastReadTime).Round(time.Second).String() + " ago"
	}

	m.log.Info("link stats",
		"state", s.State.String(),
		"peer", s.Peer,
		"read", s.BytesRead,
		"written", s.BytesWritten,
		"frames_in", s.FramesReceived,
		"frames_out", s.FramesSent,
		"connects", s.ConnectAttempt,
		"connect_failed", s.ConnectFailed,
		"lost", s.ConnectionLost,
		"last_read", lastRead,
		"send_q", s.SendQueueLen,
		"send_cap", s.SendQueueCap,
		"goroutines", runtime.NumGoroutine(),
	)
}
