package cluster

import "sync"

// eventHub fans out NodeEvents to subscribers, one dispatch goroutine per
// subscriber, mirroring internal/actor's lifecycleHub so a subscriber that
// calls back into the Cluster cannot deadlock against the publisher.
type eventHub struct {
	mu   sync.Mutex
	subs map[int]chan NodeEvent
	next int
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[int]chan NodeEvent)}
}

func (h *eventHub) subscribe(fn func(NodeEvent)) (unsubscribe func()) {
	ch := make(chan NodeEvent, 64)

	h.mu.Lock()
	id := h.next
	h.next++
	h.subs[id] = ch
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			fn(ev)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
			close(ch)
			<-done
		})
	}
}

func (h *eventHub) publish(ev NodeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			log.Warnf("cluster: event subscriber backlog full, dropping %T", ev)
		}
	}
}
