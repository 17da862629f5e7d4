package turnclock

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock keeps at most one countdown per room. An armed countdown either
// fires its callback exactly once or is cancelled; it never does both.
type Clock struct {
	clock clockwork.Clock

	mu     sync.Mutex
	timers map[string]*entry
	nextID uint64
}

type entry struct {
	id       uint64
	timer    clockwork.Timer
	deadline time.Time
}

// New returns a Clock on top of clock. In production pass
// clockwork.NewRealClock(); in tests a fake clock.
func New(clock clockwork.Clock) *Clock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Clock{
		clock:  clock,
		timers: make(map[string]*entry),
	}
}

// Start arms a countdown of seconds for room, replacing any pending one.
func (c *Clock) Start(room string, seconds int, onExpire func()) {
	d := time.Duration(seconds) * time.Second

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.timers[room]; ok {
		existing.timer.Stop()
	}

	c.nextID++
	id := c.nextID
	e := &entry{id: id, deadline: c.clock.Now().Add(d)}
	e.timer = c.clock.AfterFunc(d, func() {
		if !c.claim(room, id) {
			return
		}
		onExpire()
	})
	c.timers[room] = e
}

// claim removes the entry if it is still the live one for room.
func (c *Clock) claim(room string, id uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, ok := c.timers[room]
	if !ok || cur.id != id {
		return false
	}
	delete(c.timers, room)
	return true
}

// Cancel stops the pending countdown for room. It reports whether one was pending.
func (c *Clock) Cancel(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.timers[room]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(c.timers, room)
	return true
}

func (c *Clock) Active(room string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.timers[room]
	return ok
}

// Remaining is the whole seconds left on room's countdown, rounded up; 0 when none.
func (c *Clock) Remaining(room string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.timers[room]
	if !ok {
		return 0
	}
	left := e.deadline.Sub(c.clock.Now())
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Seconds()))
}

// Stop cancels every pending countdown.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for room, e := range c.timers {
		e.timer.Stop()
		delete(c.timers, room)
	}
}
