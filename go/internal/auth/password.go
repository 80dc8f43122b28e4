package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid operator name or password")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
)

// OperatorAuthenticator checks operator logins against a bcrypt hash taken
// from configuration
type OperatorAuthenticator struct {
	name         string
	passwordHash []byte
}

func NewOperatorAuthenticator(name, passwordHash string) *OperatorAuthenticator {
	return &OperatorAuthenticator{name: name, passwordHash: []byte(passwordHash)}
}

// Enabled reports whether a password hash is configured
func (a *OperatorAuthenticator) Enabled() bool {
	return len(a.passwordHash) > 0
}

// Authenticate verifies the operator's credentials
func (a *OperatorAuthenticator) Authenticate(name, password string) error {
	if !a.Enabled() || name != a.name {
		return ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// HashPassword produces the hash stored in OPERATOR_PASSWORD_HASH
func HashPassword(password string) (string, error) {
	if len(password) < 8 {
		return "", ErrWeakPassword
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}
