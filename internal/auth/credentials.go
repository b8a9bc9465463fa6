package auth

import "golang.org/x/crypto/bcrypt"

// PasswordHasher owns the one-way credential hashing and comparison
// contract. Only the boolean Compare contract matters to callers.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a PasswordHasher with the provided bcrypt work
// factor. A cost outside the bcrypt range falls back to the default cost.
func NewPasswordHasher(cost int) PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return PasswordHasher{cost: cost}
}

// Hash returns the opaque hashed form of plaintext
func (h PasswordHasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare reports whether plaintext matches the stored hash. Any
// comparison error yields false, never a fault.
func (h PasswordHasher) Compare(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}
