package network

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drake/carremote/event"
)

// Stats holds link statistics for monitoring. Counters are cumulative over
// the supervisor's lifetime.
type Stats struct {
	State          event.State
	Peer           string
	BytesRead      uint64
	BytesWritten   uint64
	FramesReceived uint64
	FramesSent     uint64
	ConnectAttempt uint64
	ConnectFailed  uint64
	ConnectionLost uint64
	LastReadTime   time.Time
	SendQueueLen   int
	SendQueueCap   int
}

// Stats returns current link statistics.
func (s *Supervisor) Stats() Stats {
	s.mu.Lock()
	state, peer, cx := s.state, s.peer, s.current
	var sendQLen, sendQCap int
	if cx != nil {
		sendQLen = len(cx.sendQueue)
		sendQCap = cap(cx.sendQueue)
	}
	s.mu.Unlock()

	var lastRead time.Time
	if ns := s.lastReadTime.Load(); ns != 0 {
		lastRead = time.Unix(0, ns)
	}

	return Stats{
		State:          state,
		Peer:           peer,
		BytesRead:      s.bytesRead.Load(),
		BytesWritten:   s.bytesWritten.Load(),
		FramesReceived: s.framesReceived.Load(),
		FramesSent:     s.framesSent.Load(),
		ConnectAttempt: s.connects.Load(),
		ConnectFailed:  s.connectFails.Load(),
		ConnectionLost: s.losses.Load(),
		LastReadTime:   lastRead,
		SendQueueLen:   sendQLen,
		SendQueueCap:   sendQCap,
	}
}

// StatsSource is anything that reports link statistics.
type StatsSource interface {
	Stats() Stats
}

// Collector exports link statistics as Prometheus metrics. Values are read
// from the source at scrape time.
type Collector struct {
	src StatsSource

	state          *prometheus.Desc
	bytesRead      *prometheus.Desc
	bytesWritten   *prometheus.Desc
	framesReceived *prometheus.Desc
	framesSent     *prometheus.Desc
	connects       *prometheus.Desc
	connectFailed  *prometheus.Desc
	lost           *prometheus.Desc
	sendQueue      *prometheus.Desc
	lastRead       *prometheus.Desc
}

// NewCollector creates a collector for src. Register it with a
// prometheus.Registerer.
func NewCollector(src StatsSource) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc("carremote_link_"+name, help, labels, nil)
	}
	return &Collector{
		src:            src,
		state:          desc("state", "1 for the current link state, 0 otherwise.", "state"),
		bytesRead:      desc("read_bytes_total", "Bytes read from the device."),
		bytesWritten:   desc("written_bytes_total", "Bytes written to the device."),
		framesReceived: desc("frames_received_total", "Frames received from the device."),
		framesSent:     desc("frames_sent_total", "Frames written to the device."),
		connects:       desc("connect_attempts_total", "Connect attempts started."),
		connectFailed:  desc("connect_failures_total", "Connect attempts that failed or were cancelled."),
		lost:           desc("connections_lost_total", "Established sessions that failed."),
		sendQueue:      desc("send_queue_length", "Frames waiting for the writer."),
		lastRead:       desc("last_read_timestamp_seconds", "Unix time of the last read, 0 if never."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.state
	ch <- c.bytesRead
	ch <- c.bytesWritten
	ch <- c.framesReceived
	ch <- c.framesSent
	ch <- c.connects
	ch <- c.connectFailed
	ch <- c.lost
	ch <- c.sendQueue
	ch <- c.lastRead
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats()

	for _, s := range []event.State{event.Idle, event.Connecting, event.Connected} {
		v := 0.0
		if s == st.State {
			v = 1
		}
		ch <- prometheus.MustNewConstMetric(c.state, prometheus.GaugeValue, v, s.String())
	}

	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	counter(c.bytesRead, st.BytesRead)
	counter(c.bytesWritten, st.BytesWritten)
	counter(c.framesReceived, st.FramesReceived)
	counter(c.framesSent, st.FramesSent)
	counter(c.connects, st.ConnectAttempt)
	counter(c.connectFailed, st.ConnectFailed)
	counter(c.lost, st.ConnectionLost)

	ch <- prometheus.MustNewConstMetric(c.sendQueue, prometheus.GaugeValue, float64(st.SendQueueLen))

	var last float64
	if !st.LastReadTime.IsZero() {
		last = float64(st.LastReadTime.UnixNano()) / 1e9
	}
	ch <- prometheus.MustNewConstMetric(c.lastRead, prometheus.GaugeValue, last)
}
