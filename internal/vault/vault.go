// Package vault hashes and verifies account secrets with bcrypt.
package vault

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used when none is configured.
const DefaultCost = 12

// maxSecretBytes is the bcrypt input limit; longer inputs would be silently truncated.
const maxSecretBytes = 72

// ErrInvalidSecret is returned by Hash for empty or over-long secrets.
var ErrInvalidSecret = errors.New("vault: invalid secret")

// Hasher is the contract the authority consumes.
type Hasher interface {
	Hash(secret string) (string, error)
	Verify(secret, hash string) bool
}

// Vault is a bcrypt-backed Hasher.
type Vault struct {
	cost int
}

// New returns a Vault using cost, or DefaultCost when cost is not positive.
// Costs outside bcrypt's accepted range are clamped.
func New(cost int) *Vault {
	switch {
	case cost <= 0:
		cost = DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &Vault{cost: cost}
}

// Cost reports the configured work factor.
func (v *Vault) Cost() int { return v.cost }

// Hash returns a salted bcrypt hash of secret.
func (v *Vault) Hash(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidSecret)
	}
	if len(secret) > maxSecretBytes {
		return "", fmt.Errorf("%w: longer than %d bytes", ErrInvalidSecret, maxSecretBytes)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), v.cost)
	if err != nil {
		return "", fmt.Errorf("vault: hash: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether secret matches hash. Malformed hashes never match.
func (v *Vault) Verify(secret, hash string) bool {
	if hash == "" || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// NeedsRehash reports whether hash was produced with a cost other than the configured one.
func (v *Vault) NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost != v.cost
}
