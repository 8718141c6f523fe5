// Package clock предоставляет абстракцию над текущим временем, чтобы в тестах его можно было подменить.
package clock

import (
	"sync"
	"time"
)

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

type clock struct{}

func (c *clock) Now() time.Time {
	return time.Now()
}

// New возвращает часы, использующие системное время.
func New() Clock {
	return &clock{}
}

// Mock реализует управляемые часы для тестов.
type Mock struct {
	mu          sync.RWMutex
	currentTime time.Time
}

// NewMock создаёт часы, остановленные на фиксированном моменте.
func NewMock() *Mock {
	return &Mock{
		currentTime: time.Date(2024, time.January, 10, 9, 0, 0, 0, time.UTC),
	}
}

// SetNow устанавливает текущее время.
func (c *Mock) SetNow(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}

// Advance сдвигает текущее время вперёд.
func (c *Mock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = c.currentTime.Add(d)
}

// Now возвращает текущее время.
func (c *Mock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentTime
}
