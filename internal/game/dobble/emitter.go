package dobble

import "sync"

// Listener receives every snapshot the match emits.
type Listener func(Snapshot)

type subscription struct {
	id int
	fn Listener
}

// Emitter fans snapshots out to listeners synchronously, in subscription
// order. Each listener gets its own copy.
type Emitter struct {
	mu   sync.Mutex
	next int
	subs []subscription
}

// Subscribe registers fn and returns a function that removes it. Calling
// the returned function more than once is harmless.
func (e *Emitter) Subscribe(fn Listener) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	id := e.next
	e.subs = append(e.subs, subscription{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, s := range e.subs {
		if s.id == id {
			e.subs = append(e.subs[:i:i], e.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs)
}

// Emit delivers s to every listener registered at the time of the call.
func (e *Emitter) Emit(s Snapshot) {
	e.mu.Lock()
	subs := make([]subscription, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, sub := range subs {
		sub.fn(s.Clone())
	}
}
