package mapview

import "sync"

// ClickSource delivers clicks on unregistered map locations. Subscribe
// returns a function that removes the handler.
type ClickSource interface {
	Subscribe(handler func(pointID string)) (unsubscribe func())
}

// ClickFeed is an in-process ClickSource. Emit calls every handler on the
// caller's goroutine.
type ClickFeed struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(string)
}

// NewClickFeed creates an empty feed.
func NewClickFeed() *ClickFeed {
	return &ClickFeed{handlers: make(map[int]func(string))}
}

// Subscribe implements ClickSource.
func (f *ClickFeed) Subscribe(handler func(pointID string)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.handlers[id] = handler

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.handlers, id)
			f.mu.Unlock()
		})
	}
}

// Emit reports a click to all current subscribers.
func (f *ClickFeed) Emit(pointID string) {
	f.mu.Lock()
	hs := make([]func(string), 0, len(f.handlers))
	for _, h := range f.handlers {
		hs = append(hs, h)
	}
	f.mu.Unlock()

	for _, h := range hs {
		h(pointID)
	}
}

// Subscribers returns the number of registered handlers.
func (f *ClickFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}
