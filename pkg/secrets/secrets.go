package secrets

import (
	"context"
	"errors"
	"sync"
)

// Manager provides access to secrets
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretWithDefault retrieves a secret, falling back to defaultValue
	GetSecretWithDefault(ctx context.Context, key, defaultValue string) string
}

// ErrManagerNotInitialized is returned before SetManager has been called
var ErrManagerNotInitialized = errors.New("secrets manager not initialized")

var (
	defaultManager Manager
	mu             sync.RWMutex
)

// SetManager installs the process-wide manager
func SetManager(manager Manager) {
	mu.Lock()
	defer mu.Unlock()
	defaultManager = manager
}

func current() Manager {
	mu.RLock()
	defer mu.RUnlock()
	return defaultManager
}

// GetSecret retrieves a secret from the default manager
func GetSecret(ctx context.Context, key string) (string, error) {
	m := current()
	if m == nil {
		return "", ErrManagerNotInitialized
	}
	return m.GetSecret(ctx, key)
}

// GetSecretWithDefault retrieves a secret from the default manager, or
// defaultValue when there is none
func GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	m := current()
	if m == nil {
		return defaultValue
	}
	return m.GetSecretWithDefault(ctx, key, defaultValue)
}
