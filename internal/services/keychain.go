package services

import (
	"errors"

	. "aktis-launcher-jira/internal/common"
	. "aktis-launcher-jira/internal/interfaces"

	"github.com/zalando/go-keyring"
)

// KeychainService is the service name credentials are stored under.
const KeychainService = "aktis-launcher-jira"

type osKeychain struct{}

// NewKeychain returns the OS credential store (Keychain on macOS,
// Secret Service on Linux, Credential Manager on Windows).
func NewKeychain() Keychain {
	return &osKeychain{}
}

func (k *osKeychain) GetPassword(service, account string) (string, error) {
	secret, err := keyring.Get(service, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", WrapError(err, ErrorTypeKeychain, "keychain_read", "failed to read credential")
	}
	return secret, nil
}

func (k *osKeychain) SetPassword(service, account, password string) error {
	if err := keyring.Set(service, account, password); err != nil {
		return WrapError(err, ErrorTypeKeychain, "keychain_write", "failed to store credential")
	}
	return nil
}

// ResolvePassword fetches the Jira password for a username. A missing
// entry is seeded empty so the user has a row to fill in, then reported
// as a configuration problem.
func ResolvePassword(kc Keychain, username string) (string, error) {
	password, err := kc.GetPassword(KeychainService, username)
	if err != nil {
		return "", err
	}

	if password == "" {
		_ = kc.SetPassword(KeychainService, username, "")
		return "", NewKeychainError("password_missing",
			"Password for '"+username+"' not found in keychain")
	}

	return password, nil
}
