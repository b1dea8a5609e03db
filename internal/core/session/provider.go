// Package session provides the stable per-install session identity sent with
// every analysis request.
package session

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Key is the settings key the session id is stored under.
const Key = "session_id"

// Store persists settings. db.DB satisfies it.
type Store interface {
	GetSetting(key string) (string, error)
	SetSettingIfAbsent(key, value string) (string, error)
}

// Provider hands out the session id, creating and persisting it on first use.
// Once stored, the id is never regenerated.
type Provider struct {
	store Store

	mu sync.Mutex
	id string
}

// NewProvider creates a provider backed by store.
func NewProvider(store Store) *Provider {
	return &Provider{store: store}
}

// ID returns the session id.
func (p *Provider) ID() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.id != "" {
		return p.id, nil
	}

	existing, err := p.store.GetSetting(Key)
	if err != nil {
		return "", fmt.Errorf("read session id: %w", err)
	}
	if existing != "" {
		p.id = existing
		return p.id, nil
	}

	// Another process may create the id between the read and the write;
	// whichever value lands in the store wins.
	stored, err := p.store.SetSettingIfAbsent(Key, uuid.NewString())
	if err != nil {
		return "", fmt.Errorf("persist session id: %w", err)
	}
	p.id = stored
	return p.id, nil
}
