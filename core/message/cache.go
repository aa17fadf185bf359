package message

import (
	"context"
	"sync"

	"github.com/trezcool/masomo-admin/core"
)

// ListCache is the shared list of a course's messages, newest first.
// A list session populates it with Load or Reload; within a session it is mutated only by Prepend,
// which wakes every subscriber. Notifications carry no payload: subscribers re-read Messages.
type ListCache struct {
	courseID int

	writeMu sync.Mutex // serializes mutation-then-notify

	mu       sync.RWMutex
	loaded   bool
	messages []Message
	subs     map[uint64]func()
	nextSub  uint64
}

func NewListCache(courseID int) *ListCache {
	return &ListCache{
		courseID: courseID,
		subs:     make(map[uint64]func()),
	}
}

func (lc *ListCache) CourseID() int { return lc.courseID }

// Load populates the cache from `lister`. It is a no-op once the cache is loaded.
// A failed load leaves the cache unloaded and returns a core.NetworkError.
func (lc *ListCache) Load(ctx context.Context, lister Lister) error {
	lc.writeMu.Lock()
	defer lc.writeMu.Unlock()

	if lc.Loaded() {
		return nil
	}
	msgs, err := lister.List(ctx, lc.courseID)
	if err != nil {
		return core.NewNetworkError("loading messages", err)
	}

	lc.mu.Lock()
	// messages prepended before the load are kept on top, and not listed twice
	seen := make(map[int]struct{}, len(lc.messages))
	for _, m := range lc.messages {
		seen[m.ID] = struct{}{}
	}
	for _, m := range msgs {
		if _, ok := seen[m.ID]; !ok {
			lc.messages = append(lc.messages, m)
		}
	}
	lc.loaded = true
	lc.mu.Unlock()
	return nil
}

// Reload starts a new list session: the list is fetched again from `lister` and replaces the cached one,
// picking up messages created elsewhere and fresh read states. Subscribers are not notified.
// A failed reload keeps the cached list and returns a core.NetworkError.
func (lc *ListCache) Reload(ctx context.Context, lister Lister) error {
	lc.writeMu.Lock()
	defer lc.writeMu.Unlock()

	msgs, err := lister.List(ctx, lc.courseID)
	if err != nil {
		return core.NewNetworkError("reloading messages", err)
	}

	lc.mu.Lock()
	lc.messages = append([]Message(nil), msgs...)
	lc.loaded = true
	lc.mu.Unlock()
	return nil
}

func (lc *ListCache) Loaded() bool {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.loaded
}

// Messages returns a copy of the cached messages, newest first.
func (lc *ListCache) Messages() []Message {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	msgs := make([]Message, len(lc.messages))
	copy(msgs, lc.messages)
	return msgs
}

func (lc *ListCache) Len() int {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return len(lc.messages)
}

// Prepend puts a newly created message on top of the list and notifies every subscriber once.
// A message already listed by a reload is moved on top instead of being listed twice.
func (lc *ListCache) Prepend(msg Message) {
	lc.writeMu.Lock()
	defer lc.writeMu.Unlock()

	lc.mu.Lock()
	msgs := make([]Message, 0, len(lc.messages)+1)
	msgs = append(msgs, msg)
	for _, m := range lc.messages {
		if m.ID != msg.ID {
			msgs = append(msgs, m)
		}
	}
	lc.messages = msgs
	subs := make([]func(), 0, len(lc.subs))
	for _, fn := range lc.subs {
		subs = append(subs, fn)
	}
	lc.mu.Unlock()

	// subscribers run outside the data lock so they can re-read the cache
	for _, fn := range subs {
		fn()
	}
}

// Subscribe registers `fn` to be called after every Prepend. Calling the returned func unsubscribes.
// `fn` must not call Prepend or Load.
func (lc *ListCache) Subscribe(fn func()) (unsubscribe func()) {
	lc.mu.Lock()
	id := lc.nextSub
	lc.nextSub++
	lc.subs[id] = fn
	lc.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			lc.mu.Lock()
			delete(lc.subs, id)
			lc.mu.Unlock()
		})
	}
}

// Caches holds the process-wide ListCache of every course.
type Caches struct {
	mu     sync.Mutex
	caches map[int]*ListCache
}

func NewCaches() *Caches {
	return &Caches{caches: make(map[int]*ListCache)}
}

// Get returns the cache of the course, creating an empty one on first use.
func (c *Caches) Get(courseID int) *ListCache {
	c.mu.Lock()
	defer c.mu.Unlock()

	lc, ok := c.caches[courseID]
	if !ok {
		lc = NewListCache(courseID)
		c.caches[courseID] = lc
	}
	return lc
}
