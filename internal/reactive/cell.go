package reactive

// Subscription: подписка обработчика на ячейку. Повторные изменения до доставки
// схлопываются в одно уведомление.
type Subscription struct {
	s        *Scheduler
	fn       func()
	pending  bool
	attached bool
}

// Signal планирует доставку без изменения значения.
func (sub *Subscription) Signal() {
	if sub.attached {
		sub.s.schedule(sub)
	}
}

// Cell хранит ровно одно значение и уведомляет подписчиков об изменении.
type Cell[T comparable] struct {
	s    *Scheduler
	v    T
	subs []*Subscription
}

// NewCell создаёт ячейку с начальным значением v.
func NewCell[T comparable](s *Scheduler, v T) *Cell[T] {
	return &Cell[T]{s: s, v: v}
}

// Get возвращает текущее значение.
func (c *Cell[T]) Get() T { return c.v }

// Set записывает v; при изменении планирует всех подписчиков. Возвращает true, если значение изменилось.
func (c *Cell[T]) Set(v T) bool {
	if c.v == v {
		return false
	}
	c.v = v
	c.notify()
	return true
}

// Force записывает v и уведомляет подписчиков даже без изменения (например, каждый принятый кадр).
func (c *Cell[T]) Force(v T) {
	c.v = v
	c.notify()
}

// Attach подписывает fn на изменения ячейки.
func (c *Cell[T]) Attach(fn func()) *Subscription {
	sub := &Subscription{s: c.s, fn: fn, attached: true}
	c.subs = append(c.subs, sub)
	return sub
}

// Detach снимает подписку; уже запланированная доставка отменяется.
func (c *Cell[T]) Detach(sub *Subscription) {
	if sub == nil {
		return
	}
	sub.attached = false
	for i, x := range c.subs {
		if x == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			return
		}
	}
}

func (c *Cell[T]) notify() {
	for _, sub := range c.subs {
		c.s.schedule(sub)
	}
}
