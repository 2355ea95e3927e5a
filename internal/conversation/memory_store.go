package conversation

import (
	"context"
	"sync"
)

const subscriberBuffer = 64

// MemoryStore keeps a conversation in process memory
type MemoryStore struct {
	mu       sync.RWMutex
	messages []Message
	subs     map[int]chan Event
	nextSub  int
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[int]chan Event)}
}

// Append adds msg to the end of the log
func (s *MemoryStore) Append(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)
	m := msg
	s.publish(Event{Type: EventAppended, Message: &m})
	return nil
}

// All returns a copy of the log
func (s *MemoryStore) All(_ context.Context) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out, nil
}

// Clear drops every message
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	s.publish(Event{Type: EventCleared})
	return nil
}

// Subscribe streams appends and clears until cancel is called or ctx is done
func (s *MemoryStore) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	ch := make(chan Event, subscriberBuffer)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
			close(done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()

	return ch, cancel, nil
}

// publish must be called with mu held. A subscriber whose buffer is full misses
// the event and has to re-read All.
func (s *MemoryStore) publish(ev Event) {
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
