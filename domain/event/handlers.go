package event

import "sync"

// Handler Each kind of event has his own handler
// Based on the Chain of responsibility pattern
type Handler interface {
	Handle(event Event)
}

// Counter keeps a tally per event name, shared between handlers.
type Counter struct {
	mu     sync.Mutex
	counts map[Name]uint64
}

func NewCounter() *Counter {
	return &Counter{counts: make(map[Name]uint64)}
}

func (c *Counter) Increment(name Name) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[name]++
}

func (c *Counter) Get(name Name) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[name]
}
