// Package reactive реализует однопоточный кооперативный планировщик: ячейки состояния (subjects)
// с подпиской, одноразовые таймеры и очередь запросов из внешних горутин.
//
// Все обработчики выполняются строго по одному. Уведомления одной ячейки доставляются
// в порядке FIFO; между разными ячейками глобального порядка нет, поэтому обработчик
// всегда читает актуальные значения через Get, а не полагается на содержимое события.
package reactive

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultInbox: размер очереди запросов по умолчанию.
const DefaultInbox = 256

var (
	// ErrStopped: цикл планировщика завершён, запрос не будет выполнен.
	ErrStopped = errors.New("reactive: scheduler stopped")
	// ErrRunning: Run уже вызван.
	ErrRunning = errors.New("reactive: scheduler already running")
)

type request struct {
	fn   func()
	done chan struct{}
}

// Scheduler владеет очередью готовых уведомлений и кучей таймеров.
//
// До вызова Run запросы (Do/Post) выполняются синхронно в вызывающей горутине:
// так работают тесты вместе с ManualClock и Advance. После Run всё исполняется
// в горутине цикла, а внешние вызовы проходят через ограниченный inbox.
type Scheduler struct {
	clock Clock
	inbox chan request

	ready  []*Subscription
	timers timerHeap
	seq    uint64

	mu      sync.Mutex
	running bool
	stopped chan struct{}
}

// NewScheduler создаёт планировщик; inbox <= 0 означает DefaultInbox.
func NewScheduler(clock Clock, inbox int) *Scheduler {
	if clock == nil {
		clock = RealClock()
	}
	if inbox <= 0 {
		inbox = DefaultInbox
	}
	return &Scheduler{
		clock:   clock,
		inbox:   make(chan request, inbox),
		stopped: make(chan struct{}),
	}
}

// Now: текущее время часов планировщика.
func (s *Scheduler) Now() time.Time { return s.clock.Now() }

// Do выполняет fn внутри цикла и ждёт завершения fn и всех вызванных ею уведомлений.
// Вызывать из обработчика нельзя: это блокировка цикла самим собой.
func (s *Scheduler) Do(ctx context.Context, fn func()) error {
	return s.submit(ctx, fn, true)
}

// Post ставит fn в очередь и не ждёт выполнения.
func (s *Scheduler) Post(ctx context.Context, fn func()) error {
	return s.submit(ctx, fn, false)
}

func (s *Scheduler) submit(ctx context.Context, fn func(), wait bool) error {
	s.mu.Lock()
	if !s.running {
		defer s.mu.Unlock()
		fn()
		s.drain()
		return nil
	}
	s.mu.Unlock()

	req := request{fn: fn}
	if wait {
		req.done = make(chan struct{})
	}
	select {
	case s.inbox <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
	if !wait {
		return nil
	}
	// после постановки в очередь fn исполнится в любом случае; ctx тут уже не учитываем
	select {
	case <-req.done:
		return nil
	case <-s.stopped:
		return ErrStopped
	}
}

// Run: цикл планировщика до отмены ctx.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.drain()
	s.mu.Unlock()
	defer close(s.stopped)

	for {
		var (
			wake <-chan time.Time
			t    *time.Timer
		)
		if at, ok := s.nextDeadline(); ok {
			t = time.NewTimer(at.Sub(s.clock.Now()))
			wake = t.C
		}
		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return ctx.Err()
		case req := <-s.inbox:
			req.fn()
			s.drain()
			if req.done != nil {
				close(req.done)
			}
		case <-wake:
			s.fireDue()
		}
		if t != nil {
			t.Stop()
		}
	}
}

// Advance сдвигает ManualClock на d, по пути срабатывают все наступившие таймеры
// (включая взведённые из обработчиков в пределах окна). Только до Run.
func (s *Scheduler) Advance(d time.Duration) {
	mc, ok := s.clock.(*ManualClock)
	if !ok {
		panic("reactive: Advance requires ManualClock")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	target := mc.Now().Add(d)
	for {
		at, ok := s.nextDeadline()
		if !ok || at.After(target) {
			break
		}
		mc.set(at)
		s.fireDue()
	}
	mc.set(target)
}

func (s *Scheduler) schedule(sub *Subscription) {
	if sub.pending {
		return
	}
	sub.pending = true
	s.ready = append(s.ready, sub)
}

// drain выполняет очередь готовых уведомлений до опустошения.
func (s *Scheduler) drain() {
	for len(s.ready) > 0 {
		sub := s.ready[0]
		s.ready[0] = nil
		s.ready = s.ready[1:]
		sub.pending = false
		if !sub.attached {
			continue
		}
		sub.fn()
	}
	s.ready = s.ready[:0]
}

func (s *Scheduler) nextDeadline() (time.Time, bool) {
	for s.timers.Len() > 0 {
		e := s.timers[0]
		if e.t.gen == e.gen && e.t.running {
			return e.at, true
		}
		heap.Pop(&s.timers)
	}
	return time.Time{}, false
}

func (s *Scheduler) fireDue() {
	now := s.clock.Now()
	for s.timers.Len() > 0 {
		e := s.timers[0]
		if e.t.gen != e.gen || !e.t.running {
			heap.Pop(&s.timers)
			continue
		}
		if e.at.After(now) {
			return
		}
		heap.Pop(&s.timers)
		e.t.running = false
		e.t.fn()
		s.drain()
	}
}
