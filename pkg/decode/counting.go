package decode

import (
	"sync"

	"datainspect/internal/models"
)

// Counting wraps a Decoder and records how many times each path was decoded
type Counting struct {
	next Decoder

	mu    sync.Mutex
	calls map[string]int
	total int
}

// NewCounting wraps next
func NewCounting(next Decoder) *Counting {
	return &Counting{
		next:  next,
		calls: make(map[string]int),
	}
}

// Decode implements Decoder
func (c *Counting) Decode(path, typeTag string) (*models.Array, *models.Transform, error) {
	c.mu.Lock()
	c.calls[path]++
	c.total++
	c.mu.Unlock()

	return c.next.Decode(path, typeTag)
}

// Calls returns how often path was decoded
func (c *Counting) Calls(path string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.calls[path]
}

// Total returns the number of Decode calls since the last Reset
func (c *Counting) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.total
}

// Reset clears all counters
func (c *Counting) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = make(map[string]int)
	c.total = 0
}
