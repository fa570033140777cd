package vault

import (
	"context"
	"fmt"
	"sync"

	"hyperliquid-trading-bot/config"

	"github.com/hashicorp/vault/api"
)

// CredentialData represents the exchange signing credentials stored in Vault
type CredentialData struct {
	PrivateKey     string `json:"private_key"`
	AccountAddress string `json:"account_address"`
	IsTestnet      bool   `json:"is_testnet"`
}

// Client wraps the HashiCorp Vault client. With Vault disabled it degrades
// to an in-memory store so paper mode and tests need no Vault server.
type Client struct {
	client       *api.Client
	config       config.VaultConfig
	mu           sync.RWMutex
	cache        map[string]*CredentialData // network -> credentials
	cacheEnabled bool
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{
			config:       cfg,
			cache:        make(map[string]*CredentialData),
			cacheEnabled: true,
		}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	if cfg.TLSEnabled && cfg.CACert != "" {
		tlsConfig := &api.TLSConfig{
			CACert: cfg.CACert,
		}
		if err := vaultConfig.ConfigureTLS(tlsConfig); err != nil {
			return nil, fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}

	client.SetToken(cfg.Token)

	return &Client{
		client:       client,
		config:       cfg,
		cache:        make(map[string]*CredentialData),
		cacheEnabled: true,
	}, nil
}

// StoreCredentials stores exchange credentials in Vault
func (c *Client) StoreCredentials(ctx context.Context, data CredentialData) error {
	if !c.config.Enabled {
		// Store in local cache only (for development/testing)
		c.mu.Lock()
		c.cache[networkKey(data.IsTestnet)] = &data
		c.mu.Unlock()
		return nil
	}

	path := c.secretPath(data.IsTestnet)

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"private_key":     data.PrivateKey,
			"account_address": data.AccountAddress,
			"is_testnet":      data.IsTestnet,
		},
	}

	_, err := c.client.Logical().WriteWithContext(ctx, path, secretData)
	if err != nil {
		return fmt.Errorf("failed to store credentials in vault: %w", err)
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[networkKey(data.IsTestnet)] = &data
		c.mu.Unlock()
	}

	return nil
}

// GetCredentials retrieves exchange credentials from Vault
func (c *Client) GetCredentials(ctx context.Context, isTestnet bool) (*CredentialData, error) {
	// Check cache first
	if c.cacheEnabled {
		c.mu.RLock()
		if cached, ok := c.cache[networkKey(isTestnet)]; ok {
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()
	}

	if !c.config.Enabled {
		return nil, fmt.Errorf("credentials not found and vault is disabled")
	}

	path := c.secretPath(isTestnet)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}

	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credentials not found")
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format")
	}

	creds := &CredentialData{
		PrivateKey:     getString(data, "private_key"),
		AccountAddress: getString(data, "account_address"),
		IsTestnet:      getBool(data, "is_testnet"),
	}

	if c.cacheEnabled {
		c.mu.Lock()
		c.cache[networkKey(isTestnet)] = creds
		c.mu.Unlock()
	}

	return creds, nil
}

// DeleteCredentials deletes exchange credentials from Vault
func (c *Client) DeleteCredentials(ctx context.Context, isTestnet bool) error {
	c.mu.Lock()
	delete(c.cache, networkKey(isTestnet))
	c.mu.Unlock()

	if !c.config.Enabled {
		return nil
	}

	path := c.metadataPath(isTestnet)

	_, err := c.client.Logical().DeleteWithContext(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to delete credentials from vault: %w", err)
	}

	return nil
}

// RotateCredentials replaces the stored credentials
func (c *Client) RotateCredentials(ctx context.Context, newData CredentialData) error {
	return c.StoreCredentials(ctx, newData)
}

// ClearCache clears the in-memory cache
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cache = make(map[string]*CredentialData)
	c.mu.Unlock()
}

// SetCacheEnabled enables or disables caching
func (c *Client) SetCacheEnabled(enabled bool) {
	c.mu.Lock()
	c.cacheEnabled = enabled
	c.mu.Unlock()
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().Health()
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}

	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}

	return nil
}

// secretPath returns the path for storing a secret
func (c *Client) secretPath(isTestnet bool) string {
	return fmt.Sprintf("%s/data/%s/%s", c.config.MountPath, c.config.SecretPath, networkKey(isTestnet))
}

// metadataPath returns the metadata path for a secret
func (c *Client) metadataPath(isTestnet bool) string {
	return fmt.Sprintf("%s/metadata/%s/%s", c.config.MountPath, c.config.SecretPath, networkKey(isTestnet))
}

func networkKey(isTestnet bool) string {
	if isTestnet {
		return "testnet"
	}
	return "mainnet"
}

// Helper functions
func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func getBool(data map[string]interface{}, key string) bool {
	if val, ok := data[key]; ok {
		switch v := val.(type) {
		case bool:
			return v
		case string:
			return v == "true"
		}
	}
	return false
}

// NewMockClient creates a mock client for testing
func NewMockClient() *Client {
	return &Client{
		config: config.VaultConfig{
			Enabled: false,
		},
		cache:        make(map[string]*CredentialData),
		cacheEnabled: true,
	}
}
