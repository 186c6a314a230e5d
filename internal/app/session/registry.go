package session

import (
	"sync"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/stagebox/internal/infra/config"
)

// Factory builds the collaborators of a new guild session.
type Factory func(guildID string) (Deps, error)

// Registry holds one Manager per guild and creates them on first use.
type Registry struct {
	mu       sync.Mutex
	config   *config.Config
	factory  Factory
	managers map[string]*Manager
	closed   bool
}

// NewRegistry creates a new registry.
func NewRegistry(cfg *config.Config, factory Factory) *Registry {
	return &Registry{
		config:   cfg,
		factory:  factory,
		managers: make(map[string]*Manager),
	}
}

// Get returns the manager for a guild, or false if none exists.
func (r *Registry) Get(guildID string) (*Manager, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.managers[guildID]
	return m, ok
}

// GetOrCreate returns the manager for a guild, creating it if needed.
func (r *Registry) GetOrCreate(guildID string) (*Manager, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrClosed
	}
	if m, ok := r.managers[guildID]; ok {
		return m, nil
	}

	deps, err := r.factory(guildID)
	if err != nil {
		return nil, err
	}
	m := NewManager(guildID, r.config, deps)
	r.managers[guildID] = m
	zlog.Info().Str("guild", guildID).Msg("session: created")
	return m, nil
}

// Len returns the number of guild sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.managers)
}

// CloseAll closes every session. Later GetOrCreate calls fail with ErrClosed.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	managers := r.managers
	r.managers = make(map[string]*Manager)
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, m := range managers {
		wg.Add(1)
		go func(m *Manager) {
			defer wg.Done()
			m.Close()
		}(m)
	}
	wg.Wait()
}
