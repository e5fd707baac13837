package sandbox

import (
	"context"
	"sync"
)

// MultiProvider round-robins Create across configured providers using a
// KeyManager-equivalent slot pattern (here, one slot per provider), per
// SPEC_FULL.md §4.1 Provider selection ("multi round-robins across
// configured providers using a key-manager"). Get/Stop/Delete/List/Open
// route to the provider that owns the id's recorded provider type.
type MultiProvider struct {
	mu        sync.Mutex
	providers []Provider
	next      int
	owners    map[string]Provider
}

// NewMultiProvider builds a MultiProvider over the given ordered providers.
func NewMultiProvider(providers ...Provider) *MultiProvider {
	return &MultiProvider{providers: providers, owners: map[string]Provider{}}
}

func (m *MultiProvider) pick() Provider {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.providers[m.next%len(m.providers)]
	m.next++
	return p
}

func (m *MultiProvider) Create(ctx context.Context) (Handle, error) {
	p := m.pick()
	h, err := p.Create(ctx)
	if err != nil {
		return Handle{}, err
	}
	m.mu.Lock()
	m.owners[h.ID] = p
	m.mu.Unlock()
	return h, nil
}

func (m *MultiProvider) owner(id string) (Provider, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.owners[id]
	return p, ok
}

func (m *MultiProvider) Get(ctx context.Context, id string) (Handle, error) {
	p, ok := m.owner(id)
	if !ok {
		return Handle{State: StateUnknown}, nil
	}
	return p.Get(ctx, id)
}

func (m *MultiProvider) Stop(ctx context.Context, id string) error {
	p, ok := m.owner(id)
	if !ok {
		return nil
	}
	return p.Stop(ctx, id)
}

func (m *MultiProvider) Start(ctx context.Context, id string) error {
	p, ok := m.owner(id)
	if !ok {
		return ErrUnrecoverable
	}
	return p.Start(ctx, id)
}

func (m *MultiProvider) Delete(ctx context.Context, id string) error {
	p, ok := m.owner(id)
	if !ok {
		return nil
	}
	err := p.Delete(ctx, id)
	m.mu.Lock()
	delete(m.owners, id)
	m.mu.Unlock()
	return err
}

func (m *MultiProvider) List(ctx context.Context) ([]Handle, error) {
	var all []Handle
	for _, p := range m.providers {
		hs, err := p.List(ctx)
		if err != nil {
			return nil, err
		}
		all = append(all, hs...)
	}
	return all, nil
}

func (m *MultiProvider) Open(ctx context.Context, id string) (Sandbox, error) {
	p, ok := m.owner(id)
	if !ok {
		return nil, ErrUnrecoverable
	}
	return p.Open(ctx, id)
}
