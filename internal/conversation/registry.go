package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"homework-helper/backend/pkg/config"
	redispkg "homework-helper/backend/pkg/redis"
)

// StoreFactory creates the store backing one conversation id
type StoreFactory func(conversationID string) Store

// MemoryStoreFactory backs every conversation with a MemoryStore
func MemoryStoreFactory() StoreFactory {
	return func(string) Store { return NewMemoryStore() }
}

// RedisStoreFactory backs every conversation with a RedisStore on client
func RedisStoreFactory(client *redispkg.Client) StoreFactory {
	return func(id string) Store { return NewRedisStore(client, id) }
}

// NewStoreFactory picks the backing named by STORE_BACKEND
func NewStoreFactory(cfg *config.Config, client *redispkg.Client) (StoreFactory, error) {
	switch cfg.Store.Backend {
	case "memory", "":
		return MemoryStoreFactory(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("redis store backend needs a redis client")
		}
		return RedisStoreFactory(client), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// DefaultIdleTTL is how long an unused controller stays registered
const DefaultIdleTTL = time.Hour

type registryEntry struct {
	controller *Controller
	lastUsed   time.Time
	// open streams holding the controller
	holds      int
}

// Registry hands out one Controller per conversation id. Controllers idle for
// longer than the idle TTL are dropped by Run; a memory-backed transcript goes
// with them.
type Registry struct {
	mu        sync.Mutex
	entries   map[string]*registryEntry
	factory   StoreFactory
	generator Generator
	opts      []Option
	idleTTL   time.Duration
	now       func() time.Time
}

// NewRegistry creates a registry whose controllers share generator and opts
func NewRegistry(factory StoreFactory, generator Generator, opts ...Option) *Registry {
	return &Registry{
		entries:   make(map[string]*registryEntry),
		factory:   factory,
		generator: generator,
		opts:      opts,
		idleTTL:   DefaultIdleTTL,
		now:       time.Now,
	}
}

// SetIdleTTL changes the idle TTL; zero or less keeps controllers forever
func (r *Registry) SetIdleTTL(ttl time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idleTTL = ttl
}

// Get returns the controller for id, creating it on first use
func (r *Registry) Get(id string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getLocked(id).controller
}

// Lookup returns the controller for id without creating one
func (r *Registry) Lookup(id string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	e.lastUsed = r.now()
	return e.controller, true
}

// Peek returns the registered controller for id, or an unregistered one over a
// fresh store from the factory. Reads through it see a persistent backing
// without growing the registry.
func (r *Registry) Peek(id string) *Controller {
	if c, ok := r.Lookup(id); ok {
		return c
	}
	return NewController(r.factory(id), r.generator, r.opts...)
}

// Acquire is Get for long-lived readers such as streams. The controller is not
// evicted until release is called; release is idempotent.
func (r *Registry) Acquire(id string) (*Controller, func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.getLocked(id)
	e.holds++

	var once sync.Once
	return e.controller, func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			e.holds--
			e.lastUsed = r.now()
		})
	}
}

func (r *Registry) getLocked(id string) *registryEntry {
	if e, ok := r.entries[id]; ok {
		e.lastUsed = r.now()
		return e
	}
	e := &registryEntry{
		controller: NewController(r.factory(id), r.generator, r.opts...),
		lastUsed:   r.now(),
	}
	r.entries[id] = e
	return e
}

// Len returns the number of live controllers
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Run evicts idle controllers every minute until ctx is done
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.evictIdle(r.now())
		case <-ctx.Done():
			return
		}
	}
}

// evictIdle drops controllers unused for longer than the idle TTL. Busy and
// held controllers stay.
func (r *Registry) evictIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.idleTTL <= 0 {
		return 0
	}
	evicted := 0
	for id, e := range r.entries {
		if e.holds > 0 || e.controller.Busy() {
			continue
		}
		if now.Sub(e.lastUsed) > r.idleTTL {
			delete(r.entries, id)
			evicted++
		}
	}
	return evicted
}
