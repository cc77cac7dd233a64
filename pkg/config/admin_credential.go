package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword returns a bcrypt hash of the plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext password matches the bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// GenerateJWTSecret returns a cryptographically random 32-byte hex string.
func GenerateJWTSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// AuthenticateAdmin checks the local dashboard administrator credentials.
// It fails closed when no password hash is configured.
func (c *Config) AuthenticateAdmin(username, password string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hash := strings.TrimSpace(c.Dashboard.AdminPasswordHash)
	if hash == "" {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(username), c.Dashboard.AdminUsername) {
		return false
	}
	return CheckPassword(hash, password)
}
