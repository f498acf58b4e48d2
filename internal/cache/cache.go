package cache

import "sync"

// AnnotationIDs maps registry pin IDs to storage row IDs for the current
// session. Backends assign their own IDs on insert; toggles arriving later
// must address the stored row, not the in-memory pin.
type AnnotationIDs struct {
	m   sync.Mutex
	ids map[uint]uint
}

func NewAnnotationIDs() *AnnotationIDs {
	return &AnnotationIDs{
		ids: make(map[uint]uint),
	}
}

func (c *AnnotationIDs) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.ids = make(map[uint]uint)
}

func (c *AnnotationIDs) Get(pinID uint) (uint, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	id, ok := c.ids[pinID]
	return id, ok
}

func (c *AnnotationIDs) Set(pinID, storedID uint) {
	c.m.Lock()
	defer c.m.Unlock()
	c.ids[pinID] = storedID
}

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
