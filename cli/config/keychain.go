package config

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/zalando/go-keyring"
)

const (
	// ServiceName is the keychain service identifier
	ServiceName = "debai-cli"

	// geminiAccount is the keychain account holding the Gemini API key
	geminiAccount = "gemini_api_key"
)

// KeychainStore stores secrets in the system keychain
type KeychainStore struct {
	serviceName string
}

// NewKeychainStore creates a new keychain store
func NewKeychainStore() *KeychainStore {
	return &KeychainStore{
		serviceName: ServiceName,
	}
}

// IsAvailable checks if keychain is available on this system
func (k *KeychainStore) IsAvailable() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux":
		// Linux requires a secret service (like gnome-keyring)
		err := keyring.Set(k.serviceName, "__test__", "test")
		if err != nil {
			return false
		}
		_ = keyring.Delete(k.serviceName, "__test__")
		return true
	default:
		return false
	}
}

// Save stores a secret under account
func (k *KeychainStore) Save(account, secret string) error {
	if err := keyring.Set(k.serviceName, account, secret); err != nil {
		return fmt.Errorf("failed to save to keychain: %w", err)
	}
	return nil
}

// Load retrieves the secret of account; a missing entry is not an error
func (k *KeychainStore) Load(account string) (string, error) {
	secret, err := keyring.Get(k.serviceName, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("failed to load from keychain: %w", err)
	}
	return secret, nil
}

// Delete removes the secret of account
func (k *KeychainStore) Delete(account string) error {
	err := keyring.Delete(k.serviceName, account)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete from keychain: %w", err)
	}
	return nil
}

// secretStore is the part of KeychainStore the credential manager needs
type secretStore interface {
	IsAvailable() bool
	Save(account, secret string) error
	Load(account string) (string, error)
	Delete(account string) error
}

// CredentialManager keeps the Gemini key in the keychain or, when asked, in the config file
type CredentialManager struct {
	config   *Config
	keychain secretStore
}

// NewCredentialManager creates a new credential manager
func NewCredentialManager(cfg *Config) *CredentialManager {
	return &CredentialManager{
		config:   cfg,
		keychain: NewKeychainStore(),
	}
}

// GeminiKey returns the stored key, or "" when none is stored
func (m *CredentialManager) GeminiKey() (string, error) {
	if m.config.KeyStore == "keychain" {
		return m.keychain.Load(geminiAccount)
	}
	return m.config.GeminiKey, nil
}

// SaveGeminiKey stores key. The caller saves the config file afterwards.
func (m *CredentialManager) SaveGeminiKey(key string, useKeychain bool) error {
	if useKeychain {
		if !m.keychain.IsAvailable() {
			return fmt.Errorf("keychain is not available on this system (use --file to store the key in the config file)")
		}
		if err := m.keychain.Save(geminiAccount, key); err != nil {
			return err
		}
		m.config.KeyStore = "keychain"
		// Don't store the key in the file when using keychain
		m.config.GeminiKey = ""
		return nil
	}

	m.config.KeyStore = "file"
	m.config.GeminiKey = key
	return nil
}

// DeleteGeminiKey removes the stored key. The caller saves the config file afterwards.
func (m *CredentialManager) DeleteGeminiKey() error {
	if m.config.KeyStore == "keychain" {
		if err := m.keychain.Delete(geminiAccount); err != nil {
			return err
		}
	}
	m.config.KeyStore = ""
	m.config.GeminiKey = ""
	return nil
}
