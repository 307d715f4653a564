//go:build linux

package backend

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func testBackends(t *testing.T) map[string]Backend {
	t.Helper()
	poller, err := NewPoller()
	if err != nil {
		t.Fatalf("NewPoller: %v", err)
	}
	t.Cleanup(func() { poller.Close() })
	return map[string]Backend{
		"blocking":  Blocking{},
		"poller":    poller,
		"goroutine": Goroutine{},
	}
}

func newPipe(t *testing.T) (r, w int) {
	t.Helper()
	var p [2]int
	if err := unix.Pipe2(p[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		t.Fatalf("pipe: %v", err)
	}
	t.Cleanup(func() {
		unix.Close(p[0])
		unix.Close(p[1])
	})
	return p[0], p[1]
}

// All three backends must observe the same ordered readiness sequence.
func TestBackendEquivalence(t *testing.T) {
	const rounds = 16
	results := make(map[string][]byte)

	for name, be := range testBackends(t) {
		r, w := newPipe(t)

		go func() {
			for i := 0; i < rounds; i++ {
				unix.Write(w, []byte{byte(i)})
				time.Sleep(time.Millisecond)
			}
		}()

		var seen []byte
		for i := 0; i < rounds; i++ {
			if err := be.AwaitReadable(r, -1, 5*time.Second); err != nil {
				t.Fatalf("%s: await %d: %v", name, i, err)
			}
			buf := make([]byte, 1)
			if _, err := unix.Read(r, buf); err != nil {
				t.Fatalf("%s: read %d: %v", name, i, err)
			}
			seen = append(seen, buf[0])
		}
		results[name] = seen
	}

	want := results["blocking"]
	for name, got := range results {
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Errorf("%s observed %v, blocking observed %v", name, got, want)
		}
	}
}

func TestAwaitTimeout(t *testing.T) {
	for name, be := range testBackends(t) {
		r, _ := newPipe(t)
		start := time.Now()
		err := be.AwaitReadable(r, -1, 50*time.Millisecond)
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("%s: got %v, want ErrTimeout", name, err)
		}
		if elapsed := time.Since(start); elapsed > 2*time.Second {
			t.Errorf("%s: timeout took %v", name, elapsed)
		}
	}
}

func TestAwaitCancelled(t *testing.T) {
	for name, be := range testBackends(t) {
		r, _ := newPipe(t)
		cancelR, cancelW := newPipe(t)

		done := make(chan error, 1)
		go func() {
			done <- be.AwaitReadable(r, cancelR, 10*time.Second)
		}()

		time.Sleep(20 * time.Millisecond)
		unix.Write(cancelW, []byte{1})

		select {
		case err := <-done:
			if !errors.Is(err, ErrCancelled) {
				t.Errorf("%s: got %v, want ErrCancelled", name, err)
			}
		case <-time.After(2 * time.Second):
			t.Errorf("%s: cancel did not unblock the wait", name)
		}
	}
}

func TestAwaitWritable(t *testing.T) {
	for name, be := range testBackends(t) {
		_, w := newPipe(t)
		// An empty pipe is immediately writable.
		if err := be.AwaitWritable(w, -1, time.Second); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestRunBlocking(t *testing.T) {
	sentinel := errors.New("sentinel")
	for name, be := range testBackends(t) {
		ran := false
		if err := be.RunBlocking(func() error { ran = true; return sentinel }); err != sentinel {
			t.Errorf("%s: got %v", name, err)
		}
		if !ran {
			t.Errorf("%s: fn did not run", name)
		}
	}
}

func TestPollerConcurrentWaiters(t *testing.T) {
	poller, err := NewPoller()
	if err != nil {
		t.Fatal(err)
	}
	defer poller.Close()

	const n = 8
	type pipePair struct{ r, w int }
	pipes := make([]pipePair, n)
	for i := range pipes {
		r, w := newPipe(t)
		pipes[i] = pipePair{r, w}
	}

	done := make(chan int, n)
	for i, p := range pipes {
		go func(i, fd int) {
			if err := poller.AwaitReadable(fd, -1, 5*time.Second); err == nil {
				done <- i
			}
		}(i, p.r)
	}

	time.Sleep(20 * time.Millisecond)
	for _, p := range pipes {
		unix.Write(p.w, []byte{1})
	}

	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		select {
		case idx := <-done:
			seen[idx] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("only %d of %d waiters woke", len(seen), n)
		}
	}
}
