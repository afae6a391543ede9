package memory

import (
	"math/rand/v2"
	"time"
)

// manualScheduler runs timers on virtual time, advanced explicitly by tests.
type manualScheduler struct {
	now    time.Duration
	seq    int
	timers []*manualTimer
}

type manualTimer struct {
	at      time.Duration
	every   time.Duration
	seq     int
	fn      func()
	stopped bool
}

func (s *manualScheduler) add(at, every time.Duration, fn func()) *manualTimer {
	t := &manualTimer{at: at, every: every, seq: s.seq, fn: fn}
	s.seq++
	s.timers = append(s.timers, t)
	return t
}

func (s *manualScheduler) After(d time.Duration, fn func()) Timer {
	return s.add(s.now+d, 0, fn)
}

func (s *manualScheduler) Every(d time.Duration, fn func()) Timer {
	return s.add(s.now+d, d, fn)
}

func (s *manualScheduler) Advance(d time.Duration) {
	end := s.now + d

	for {
		var next *manualTimer
		for _, t := range s.timers {
			if t.stopped || t.at > end {
				continue
			}
			if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			break
		}

		s.now = next.at
		if next.every > 0 {
			next.at += next.every
		} else {
			next.stopped = true
		}
		next.fn()
	}

	s.now = end
}

func (s *manualScheduler) live() int {
	n := 0
	for _, t := range s.timers {
		if !t.stopped {
			n++
		}
	}
	return n
}

func (t *manualTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	return true
}

type recorder struct {
	frames  []Frame
	notices []Notice
}

func (r *recorder) Render(f Frame) { r.frames = append(r.frames, f) }

func (r *recorder) Notify(n Notice) { r.notices = append(r.notices, n) }

func (r *recorder) last() Frame {
	if len(r.frames) == 0 {
		return Frame{}
	}
	return r.frames[len(r.frames)-1]
}

const (
	testSettle   = time.Second
	testInterval = 2 * time.Second
)

func newTestController() (*Controller, *manualScheduler, *recorder) {
	sched := &manualScheduler{}
	rec := &recorder{}

	c := NewController(rec, sched, Options{
		SettleDelay:     testSettle,
		ShuffleInterval: testInterval,
		Margin:          250,
		Width:           1280,
		Height:          720,
		Rand:            rand.New(rand.NewPCG(1, 2)),
	})

	return c, sched, rec
}

// playUntilInteractive advances virtual time through the settle delay and
// every shuffle pass of an n-tile round.
func playUntilInteractive(sched *manualScheduler, n int) {
	sched.Advance(testSettle*time.Duration(n) + testInterval*time.Duration(n+1))
}
