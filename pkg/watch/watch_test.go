package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"datainspect/internal/models"
	"datainspect/pkg/source"
)

type fakeTarget struct {
	mu      sync.Mutex
	sources []*source.Source
	rescans map[string]int
}

func newFakeTarget(sources ...*source.Source) *fakeTarget {
	return &fakeTarget{sources: sources, rescans: make(map[string]int)}
}

func (f *fakeTarget) Sources() []*source.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*source.Source(nil), f.sources...)
}

func (f *fakeTarget) RescanSource(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rescans[name]++
	return nil
}

func (f *fakeTarget) add(src *source.Source) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources = append(f.sources, src)
}

func (f *fakeTarget) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rescans[name]
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func startWatcher(t *testing.T, target Target, opts ...Option) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	w := New(target, append([]Option{WithLogger(quietLogger())}, opts...)...)
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil {
			t.Errorf("watcher run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	time.Sleep(100 * time.Millisecond)
}

func TestWatcher_MatchingFileTriggersRescan(t *testing.T) {
	ctDir, maskDir := t.TempDir(), t.TempDir()
	target := newFakeTarget(
		source.New("CT", ctDir, ".png", models.Image),
		source.New("Mask", maskDir, ".png", models.Labels),
	)
	startWatcher(t, target, WithDebounce(20*time.Millisecond))

	_ = os.WriteFile(filepath.Join(ctDir, "case_000.png"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return target.count("CT") > 0
	}, "CT was not rescanned after a new file appeared")

	if n := target.count("Mask"); n != 0 {
		t.Errorf("Mask rescanned %d times, want 0", n)
	}
}

func TestWatcher_NonMatchingFileIgnored(t *testing.T) {
	dir := t.TempDir()
	target := newFakeTarget(source.New("CT", dir, ".mha", models.Image))
	startWatcher(t, target, WithDebounce(20*time.Millisecond))

	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644)
	time.Sleep(300 * time.Millisecond)

	if n := target.count("CT"); n != 0 {
		t.Errorf("CT rescanned %d times for a non-matching file, want 0", n)
	}
}

func TestWatcher_DebounceCoalescesBursts(t *testing.T) {
	dir := t.TempDir()
	target := newFakeTarget(source.New("CT", dir, ".png", models.Image))
	startWatcher(t, target, WithDebounce(300*time.Millisecond))

	for i := 0; i < 5; i++ {
		_ = os.WriteFile(filepath.Join(dir, "f"+string(rune('a'+i))+".png"), []byte("x"), 0o644)
	}

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return target.count("CT") > 0
	}, "CT was not rescanned after a burst of writes")

	time.Sleep(500 * time.Millisecond)
	if n := target.count("CT"); n != 1 {
		t.Errorf("burst produced %d rescans, want 1", n)
	}
}

func TestWatcher_SourcesAddedLaterAreWatched(t *testing.T) {
	target := newFakeTarget()
	startWatcher(t, target,
		WithDebounce(20*time.Millisecond),
		WithResync(50*time.Millisecond))

	dir := t.TempDir()
	target.add(source.New("Late", dir, "*_seg.png", models.Labels))
	time.Sleep(200 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(dir, "case_seg.png"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 20*time.Millisecond, func() bool {
		return target.count("Late") > 0
	}, "source added after start was not watched")
}

func TestDebouncerDropsStaleFiring(t *testing.T) {
	deb := newDebouncer(5 * time.Millisecond)
	defer deb.stop()

	deb.schedule("CT")

	// let the first timer expire; its callback now waits on fired
	var first firing
	select {
	case first = <-deb.fired:
	case <-time.After(time.Second):
		t.Fatal("first timer never fired")
	}

	// a burst arrives after expiry but before the loop handled the firing
	deb.schedule("CT")
	if deb.accept(first) {
		t.Error("Expected firing from before the reschedule to be dropped")
	}

	var second firing
	select {
	case second = <-deb.fired:
	case <-time.After(time.Second):
		t.Fatal("rescheduled timer never fired")
	}
	if !deb.accept(second) {
		t.Error("Expected latest firing to be accepted")
	}

	select {
	case extra := <-deb.fired:
		t.Errorf("Unexpected extra firing %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDebouncerResetBeforeExpiry(t *testing.T) {
	deb := newDebouncer(30 * time.Millisecond)
	defer deb.stop()

	deb.schedule("Mask")
	deb.schedule("Mask")
	deb.schedule("Mask")

	got := 0
	deadline := time.After(200 * time.Millisecond)
	for done := false; !done; {
		select {
		case f := <-deb.fired:
			if deb.accept(f) {
				got++
			}
		case <-deadline:
			done = true
		}
	}
	if got != 1 {
		t.Errorf("Expected exactly 1 accepted firing, got %d", got)
	}
}

func TestDebouncerStopReleasesCallbacks(t *testing.T) {
	deb := newDebouncer(time.Millisecond)
	deb.schedule("CT")
	time.Sleep(20 * time.Millisecond)

	// the expired callback is blocked on fired; stop must not hang and
	// must let it return
	stopped := make(chan struct{})
	go func() {
		deb.stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("stop blocked")
	}
}
