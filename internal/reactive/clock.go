package reactive

import (
	"sync"
	"time"
)

// Clock: источник текущего времени для таймеров планировщика.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock возвращает системные часы.
func RealClock() Clock { return realClock{} }

// ManualClock: часы, которые двигаются только явно (Scheduler.Advance). Для тестов и симуляции.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock создаёт часы, стоящие на start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}
