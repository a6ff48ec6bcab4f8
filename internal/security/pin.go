// Package security guards parent-only actions with a bcrypt-hashed PIN
package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"starchart/internal/validation"
)

// ErrInvalidPIN is returned when a PIN does not match the configured hash
var ErrInvalidPIN = errors.New("invalid parent PIN")

// HashPIN validates and hashes a parent PIN
func HashPIN(pin string) (string, error) {
	if err := validation.ValidatePIN(pin); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash PIN: %w", err)
	}
	return string(hash), nil
}

// CheckPIN reports whether pin matches hash
func CheckPIN(pin, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// PINGuard authorizes parent actions. A guard with no hash allows everything.
type PINGuard struct {
	hash string
}

// NewPINGuard creates a guard for the given bcrypt hash
func NewPINGuard(hash string) *PINGuard {
	return &PINGuard{hash: hash}
}

// Enabled reports whether a PIN is required
func (g *PINGuard) Enabled() bool {
	return g != nil && g.hash != ""
}

// Authorize returns ErrInvalidPIN unless the guard is disabled or pin matches
func (g *PINGuard) Authorize(pin string) error {
	if !g.Enabled() {
		return nil
	}
	if !CheckPIN(pin, g.hash) {
		return ErrInvalidPIN
	}
	return nil
}
