package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrMismatch = errors.New("security: password mismatch")

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int

	// decoy is compared against when the subject does not exist, so unknown
	// usernames cost the same as wrong passwords.
	decoy []byte
}

// NewHasher returns a Hasher with the given bcrypt cost clamped to the bcrypt range.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	decoy, err := bcrypt.GenerateFromPassword([]byte("decoy-password"), cost)
	if err != nil {
		decoy = nil
	}
	return &Hasher{Cost: cost, decoy: decoy}
}

// Hash produces a salted bcrypt hash of password suitable for storage.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("security: empty password")
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies password against the stored hash in constant time.
// Returns ErrMismatch when they differ; other errors mean the hash is unusable.
func (h *Hasher) Compare(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

// CompareDecoy burns one comparison worth of CPU and always fails.
func (h *Hasher) CompareDecoy(password string) error {
	if h.decoy != nil {
		_ = bcrypt.CompareHashAndPassword(h.decoy, []byte(password))
	}
	return ErrMismatch
}
