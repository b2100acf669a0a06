package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"quacker/backend/pkg/cache"
	"quacker/backend/pkg/logger"

	vault "github.com/hashicorp/vault/api"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrNoVaultToken   = errors.New("no vault token provided")
	ErrNoVaultAddress = errors.New("no vault address provided")
)

// VaultConfig holds configuration for the Vault client
type VaultConfig struct {
	Enabled    bool
	Address    string
	Token      string
	Namespace  string
	Mount      string
	Path       string
	Timeout    time.Duration
	MaxRetries int
}

// VaultManager reads secrets from a KV v2 mount and falls back to the
// environment. Values are cached in memory.
type VaultManager struct {
	client *vault.Client
	config VaultConfig
	cache  *cache.Cache
	log    *logger.Logger
}

// NewVaultManager creates a manager. With Enabled unset no client is built
// and every lookup goes to the environment. c may be nil to disable caching.
func NewVaultManager(cfg VaultConfig, c *cache.Cache, log *logger.Logger) (*VaultManager, error) {
	m := &VaultManager{config: cfg, cache: c, log: log.WithComponent("secrets")}
	if !cfg.Enabled {
		return m, nil
	}

	if cfg.Address == "" {
		return nil, ErrNoVaultAddress
	}
	if cfg.Token == "" {
		return nil, ErrNoVaultToken
	}
	if m.config.Mount == "" {
		m.config.Mount = "secret"
	}
	if m.config.Path == "" {
		m.config.Path = "quacker"
	}
	if m.config.Timeout <= 0 {
		m.config.Timeout = 10 * time.Second
	}

	vc := vault.DefaultConfig()
	vc.Address = cfg.Address
	vc.Timeout = m.config.Timeout
	vc.MaxRetries = cfg.MaxRetries

	client, err := vault.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}
	m.client = client

	return m, nil
}

// GetSecret looks key up in Vault, then in the environment
func (m *VaultManager) GetSecret(ctx context.Context, key string) (string, error) {
	if m.cache != nil {
		if v, ok := m.cache.Get("secret:" + key); ok {
			return v.(string), nil
		}
	}

	var (
		value string
		err   error
	)
	if m.client != nil {
		value, err = m.fromVault(ctx, key)
		if errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("secret not in vault, falling back to environment", "key", key)
			value, err = fromEnvironment(key)
		}
	} else {
		value, err = fromEnvironment(key)
	}
	if err != nil {
		return "", err
	}

	if m.cache != nil {
		m.cache.Set("secret:"+key, value)
	}
	return value, nil
}

// GetSecretWithDefault returns defaultValue when key cannot be resolved
func (m *VaultManager) GetSecretWithDefault(ctx context.Context, key, defaultValue string) string {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrSecretNotFound) {
			m.log.Warn("failed to get secret, using default", "key", key, "error", err.Error())
		}
		return defaultValue
	}
	return value
}

func (m *VaultManager) fromVault(ctx context.Context, key string) (string, error) {
	secret, err := m.client.KVv2(m.config.Mount).Get(ctx, m.config.Path)
	if err != nil {
		if errors.Is(err, vault.ErrSecretNotFound) {
			return "", ErrSecretNotFound
		}
		return "", fmt.Errorf("failed to read %s/%s: %w", m.config.Mount, m.config.Path, err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrSecretNotFound
	}

	value, ok := secret.Data[key].(string)
	if !ok || value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}

// fromEnvironment maps "session-secret" or "session.secret" to SESSION_SECRET
func fromEnvironment(key string) (string, error) {
	envKey := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(key))
	value := os.Getenv(envKey)
	if value == "" {
		return "", ErrSecretNotFound
	}
	return value, nil
}
