package metrics

import (
	"testing"
	"time"
)

func TestRecorderCache(t *testing.T) {
	var r Recorder
	const dev = "/dev/video9"
	defer Delete(dev)

	if Snapshot(dev) != nil {
		t.Fatal("snapshot before any activity")
	}

	r.StreamStarted(dev)
	r.FrameDequeued(dev, 614400, 33*time.Millisecond)
	r.FrameDequeued(dev, 614400, 16*time.Millisecond)

	s := Snapshot(dev)
	if s == nil {
		t.Fatal("no snapshot")
	}
	if !s.Running || s.Frames != 2 || s.Bytes != 1228800 {
		t.Errorf("got %+v", s)
	}
	if s.LastWait != 16*time.Millisecond {
		t.Errorf("LastWait: %v", s.LastWait)
	}

	r.StreamStopped(dev)
	if s := Snapshot(dev); s.Running {
		t.Error("still marked running after stop")
	}

	// Snapshot returns a copy, not the live cache entry.
	s.Frames = 999
	if Snapshot(dev).Frames == 999 {
		t.Error("snapshot aliases the cache")
	}
}

func TestDelete(t *testing.T) {
	var r Recorder
	const dev = "/dev/video8"
	r.FrameDequeued(dev, 100, time.Millisecond)
	Delete(dev)
	if Snapshot(dev) != nil {
		t.Error("snapshot survived delete")
	}
}
