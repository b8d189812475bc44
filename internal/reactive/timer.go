package reactive

import (
	"container/heap"
	"time"
)

// Timer: одноразовый таймер; повторный запуск явный (Start), старый срок при этом отменяется.
type Timer struct {
	s        *Scheduler
	fn       func()
	gen      uint64
	running  bool
	deadline time.Time
}

// NewTimer создаёт остановленный таймер с обработчиком fn.
func (s *Scheduler) NewTimer(fn func()) *Timer {
	return &Timer{s: s, fn: fn}
}

// Start (пере)взводит таймер на d от текущего времени.
func (t *Timer) Start(d time.Duration) {
	t.gen++
	t.running = true
	t.deadline = t.s.clock.Now().Add(d)
	t.s.seq++
	heap.Push(&t.s.timers, timerEntry{at: t.deadline, seq: t.s.seq, t: t, gen: t.gen})
}

// Stop отменяет таймер; обработчик не будет вызван.
func (t *Timer) Stop() {
	t.gen++
	t.running = false
}

// Running: таймер взведён и ещё не сработал.
func (t *Timer) Running() bool { return t.running }

type timerEntry struct {
	at  time.Time
	seq uint64
	t   *Timer
	gen uint64
}

type timerHeap []timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h timerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x any)   { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}
