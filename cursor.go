package syncano

import "sync"

// Cursor tracks the last event id delivered by one poll session.
//
// An unset cursor means "start from the latest event"; the server decides
// what that is. Once set, the cursor only moves forward.
type Cursor struct {
	mu     sync.Mutex
	lastID int64
	set    bool
}

// NewCursor returns a cursor positioned after lastID. Use a zero Cursor for
// an unset one.
func NewCursor(lastID int64) *Cursor {
	return &Cursor{lastID: lastID, set: true}
}

// Advance moves the cursor to id. It fails with an [*OrderingViolationError]
// if id is not strictly greater than the current position, and leaves the
// cursor unchanged in that case.
func (c *Cursor) Advance(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.set && id <= c.lastID {
		return &OrderingViolationError{LastID: c.lastID, GotID: id}
	}
	c.lastID = id
	c.set = true
	return nil
}

// Current returns the position to embed in the next request. ok is false
// while the cursor is unset.
func (c *Cursor) Current() (lastID int64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastID, c.set
}
