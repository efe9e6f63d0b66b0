package auth

import (
	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the bcrypt work factor used for account passwords.
const DefaultPasswordCost = 12

// PasswordHasher produces and verifies salted bcrypt password hashes.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher constructs a hasher with the given bcrypt cost.
// Out-of-range costs fall back to DefaultPasswordCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultPasswordCost
	}
	return &PasswordHasher{cost: cost}
}

// Hash returns a self-describing bcrypt hash of the password. The embedded
// random salt makes repeated calls produce different strings for one input.
func (h *PasswordHasher) Hash(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether the password matches the stored hash. Malformed or
// empty hashes verify as false; callers guard accounts without a password
// themselves.
func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
