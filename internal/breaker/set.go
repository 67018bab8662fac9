package breaker

import (
	"sort"
	"sync"
)

// Set owns one breaker per provider name, created on first use.
type Set struct {
	cfg  Config
	opts []Option

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewSet returns an empty set whose breakers share cfg and opts.
func NewSet(cfg Config, opts ...Option) *Set {
	return &Set{cfg: cfg, opts: opts, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for provider, creating it closed if needed.
func (s *Set) Get(provider string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[provider]
	if !ok {
		b = New(provider, s.cfg, s.opts...)
		s.breakers[provider] = b
	}
	return b
}

// ProviderState pairs a provider with its breaker state.
type ProviderState struct {
	Provider string
	State    State
}

// States lists the breakers created so far, sorted by provider.
func (s *Set) States() []ProviderState {
	s.mu.Lock()
	list := make([]*Breaker, 0, len(s.breakers))
	for _, b := range s.breakers {
		list = append(list, b)
	}
	s.mu.Unlock()

	out := make([]ProviderState, 0, len(list))
	for _, b := range list {
		out = append(out, ProviderState{Provider: b.Name(), State: b.State()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}
