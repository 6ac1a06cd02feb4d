// Package keychain keeps the bot token in the system keychain, so it doesn't
// have to be written into config files.
package keychain

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const (
	serviceName  = "tlxbot"
	tokenAccount = "bot_token"
)

// ErrNotFound is returned when no token has been stored.
var ErrNotFound = keyring.ErrNotFound

// Token retrieves the stored bot token.
func Token() (string, error) {
	return keyring.Get(serviceName, tokenAccount)
}

// SetToken stores the bot token, replacing the previous one.
func SetToken(token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	return keyring.Set(serviceName, tokenAccount, token)
}

// DeleteToken removes the stored token, deleting a missing one is not an error.
func DeleteToken() error {
	if err := keyring.Delete(serviceName, tokenAccount); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return nil
}
