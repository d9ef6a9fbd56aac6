package config

import (
	"fmt"
	"log/slog"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name under which gitmem stores secrets
	// in the OS keychain.
	keyringService = "gitmem"

	// keyringAPIKeyItem is the item name for the Anthropic API key.
	keyringAPIKeyItem = "anthropic-api-key"
)

// KeyringManager stores and retrieves the Anthropic API key in the OS
// keychain (macOS Keychain, Windows Credential Manager, Secret Service on
// Linux). log/slog here rather than logrus: keyring access is rare,
// user-triggered (configure), and its own little subsystem.
type KeyringManager struct {
	logger *slog.Logger
}

// NewKeyringManager builds a KeyringManager.
func NewKeyringManager() *KeyringManager {
	return &KeyringManager{logger: slog.Default().With("component", "keyring")}
}

// SaveAPIKey stores apiKey in the OS keychain.
func (km *KeyringManager) SaveAPIKey(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("api key cannot be empty")
	}
	if err := keyring.Set(keyringService, keyringAPIKeyItem, apiKey); err != nil {
		km.logger.Error("failed to save API key to keychain", "error", err)
		return fmt.Errorf("save to OS keychain: %w", err)
	}
	km.logger.Info("api key saved to keychain")
	return nil
}

// GetAPIKey reads the API key from the OS keychain. A missing item is not
// an error: it returns "", nil.
func (km *KeyringManager) GetAPIKey() (string, error) {
	apiKey, err := keyring.Get(keyringService, keyringAPIKeyItem)
	if err == keyring.ErrNotFound {
		return "", nil
	}
	if err != nil {
		km.logger.Error("failed to read API key from keychain", "error", err)
		return "", fmt.Errorf("read from OS keychain: %w", err)
	}
	return apiKey, nil
}

// DeleteAPIKey removes the API key from the OS keychain, if present.
func (km *KeyringManager) DeleteAPIKey() error {
	err := keyring.Delete(keyringService, keyringAPIKeyItem)
	if err == keyring.ErrNotFound {
		return nil
	}
	if err != nil {
		km.logger.Error("failed to delete API key from keychain", "error", err)
		return fmt.Errorf("delete from OS keychain: %w", err)
	}
	km.logger.Info("api key deleted from keychain")
	return nil
}

// IsAvailable reports whether the OS keychain backend is reachable (false
// on most headless CI runners).
func (km *KeyringManager) IsAvailable() bool {
	_, err := keyring.Get(keyringService, "availability-probe")
	if err == keyring.ErrNotFound {
		return true
	}
	if err != nil {
		km.logger.Debug("keychain not available", "error", err)
		return false
	}
	return true
}

// MaskAPIKey shows only the first 7 and last 4 characters of an API key,
// for safe display.
func MaskAPIKey(apiKey string) string {
	if apiKey == "" {
		return "(not set)"
	}
	if len(apiKey) < 12 {
		return "***"
	}
	return fmt.Sprintf("%s...%s", apiKey[:7], apiKey[len(apiKey)-4:])
}
