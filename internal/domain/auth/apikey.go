// Package auth holds API key identities for staff and admin endpoints.
package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrKeyNotFound is returned when no active API key matches a hash.
var ErrKeyNotFound = errors.New("api key not found")

// Scopes recognized by the transition and admin endpoints.
const (
	ScopeOrdersWrite    = "orders:write"
	ScopePickupVerify   = "pickup:verify"
	ScopeInventoryWrite = "inventory:write"
)

// APIKeyInfo holds the identity and permission data for a validated API key.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	Name    string
	Scopes  []string
}

// HasScope reports whether the key carries the scope.
func (k *APIKeyInfo) HasScope(scope string) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Repository provides lookup of API keys by their HMAC hash.
type Repository interface {
	// FindByHash returns the active key matching the hex HMAC-SHA256 hash,
	// or ErrKeyNotFound.
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
