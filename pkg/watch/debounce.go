package watch

import "time"

// firing is one expired debounce timer. gen is the schedule call that
// armed it; a later schedule for the same source makes it stale.
type firing struct {
	name string
	gen  uint64
}

// debouncer arms one timer per source and delivers expiries on fired.
// It is owned by a single goroutine; only the timer callbacks run elsewhere,
// and they touch nothing but the channel.
type debouncer struct {
	delay  time.Duration
	done   chan struct{}
	fired  chan firing
	timers map[string]*time.Timer
	gens   map[string]uint64
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:  delay,
		done:   make(chan struct{}),
		fired:  make(chan firing),
		timers: make(map[string]*time.Timer),
		gens:   make(map[string]uint64),
	}
}

// schedule (re)starts the quiet period for name. A timer that already
// expired may still be waiting to send; its firing carries an old
// generation and accept drops it.
func (d *debouncer) schedule(name string) {
	if t, ok := d.timers[name]; ok {
		t.Stop()
	}
	d.gens[name]++
	f := firing{name: name, gen: d.gens[name]}
	d.timers[name] = time.AfterFunc(d.delay, func() {
		select {
		case d.fired <- f:
		case <-d.done:
		}
	})
}

// accept reports whether f is the latest firing for its source and, if so,
// forgets the source's timer
func (d *debouncer) accept(f firing) bool {
	if d.gens[f.name] != f.gen {
		return false
	}
	delete(d.timers, f.name)
	return true
}

// stop cancels every pending timer and releases callbacks blocked on
// fired. The debouncer cannot be used afterwards.
func (d *debouncer) stop() {
	for _, t := range d.timers {
		t.Stop()
	}
	close(d.done)
}
