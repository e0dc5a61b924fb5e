package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	dErrors "kycflow/pkg/domain-errors"
)

// ErrMismatch is returned by Verify when the password does not match.
var ErrMismatch = errors.New("password mismatch")

// Hasher hashes and verifies passwords with bcrypt at a fixed cost.
type Hasher struct {
	cost int
}

// New returns a Hasher. A cost of zero selects bcrypt.DefaultCost.
func New(cost int) *Hasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "password cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "password is too long")
		}
		return "", fmt.Errorf("could not hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify checks plain against a bcrypt hash. A malformed hash counts as a
// mismatch so callers can treat both as bad credentials.
func (h *Hasher) Verify(plain, hash string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) || errors.Is(err, bcrypt.ErrHashTooShort) {
		return ErrMismatch
	}
	return fmt.Errorf("could not verify password: %w", err)
}
