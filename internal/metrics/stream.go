// Package metrics provides Prometheus metrics for capture streams.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	streamsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "linuxgo",
		Subsystem: "stream",
		Name:      "active",
		Help:      "Number of streams currently running",
	})

	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linuxgo",
		Subsystem: "stream",
		Name:      "frames_total",
		Help:      "Frames dequeued per device",
	}, []string{"device"})

	frameBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "linuxgo",
		Subsystem: "stream",
		Name:      "frame_bytes_total",
		Help:      "Frame payload bytes dequeued per device",
	}, []string{"device"})

	frameWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "linuxgo",
		Subsystem: "stream",
		Name:      "frame_wait_seconds",
		Help:      "Time spent waiting for each frame",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"device"})

	// Local cache for API access.
	streamCache   = make(map[string]*StreamSnapshot)
	streamCacheMu sync.RWMutex
)

// StreamSnapshot holds current per-device counters.
type StreamSnapshot struct {
	Frames   uint64
	Bytes    uint64
	LastWait time.Duration
	Running  bool
}

// Recorder implements v4l2.StreamStats on top of the Prometheus metrics.
type Recorder struct{}

// StreamStarted records a stream entering the running state.
func (Recorder) StreamStarted(devicePath string) {
	streamsActive.Inc()
	updateCache(devicePath, func(s *StreamSnapshot) { s.Running = true })
}

// StreamStopped records a stream leaving the running state.
func (Recorder) StreamStopped(devicePath string) {
	streamsActive.Dec()
	updateCache(devicePath, func(s *StreamSnapshot) { s.Running = false })
}

// FrameDequeued records one delivered frame.
func (Recorder) FrameDequeued(devicePath string, bytes int, wait time.Duration) {
	framesTotal.WithLabelValues(devicePath).Inc()
	frameBytesTotal.WithLabelValues(devicePath).Add(float64(bytes))
	frameWaitSeconds.WithLabelValues(devicePath).Observe(wait.Seconds())
	updateCache(devicePath, func(s *StreamSnapshot) {
		s.Frames++
		s.Bytes += uint64(bytes)
		s.LastWait = wait
	})
}

// Snapshot returns the cached counters for a device, or nil.
func Snapshot(devicePath string) *StreamSnapshot {
	streamCacheMu.RLock()
	defer streamCacheMu.RUnlock()
	if s, ok := streamCache[devicePath]; ok {
		copied := *s
		return &copied
	}
	return nil
}

// Delete removes all metrics for a device.
func Delete(devicePath string) {
	framesTotal.DeleteLabelValues(devicePath)
	frameBytesTotal.DeleteLabelValues(devicePath)
	frameWaitSeconds.DeleteLabelValues(devicePath)

	streamCacheMu.Lock()
	delete(streamCache, devicePath)
	streamCacheMu.Unlock()
}

func updateCache(devicePath string, update func(*StreamSnapshot)) {
	streamCacheMu.Lock()
	defer streamCacheMu.Unlock()
	s, ok := streamCache[devicePath]
	if !ok {
		s = &StreamSnapshot{}
		streamCache[devicePath] = s
	}
	update(s)
}
