// Package auth holds the credential and session primitives: bcrypt password
// hashing, signed session tokens, and the session gate middleware.
//
// WHY BCRYPT?
// bcrypt is slow on purpose, which makes guessing passwords expensive. It
// also generates a random salt per hash and stores it inside the output, so
// the users table needs only one password_hash column:
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version
package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor used in production.
// Cost 12 takes roughly 250ms on a modern server.
const defaultCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer input would be silently
// truncated, so Hash rejects it instead.
const MaxPasswordBytes = 72

// ErrPasswordMismatch is returned by Verify when the password is wrong.
var ErrPasswordMismatch = errors.New("auth: invalid password")

// PasswordService provides bcrypt hashing and verification.
//
// It's a struct (not free functions) so tests can inject cost 4, the bcrypt
// minimum, and run in milliseconds.
type PasswordService struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with a custom cost.
// Use 4 in tests in other packages. Never use it in production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
// Returns an error if the plaintext is longer than 72 bytes.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks whether a plaintext password matches a stored bcrypt hash.
// It returns nil on a match and ErrPasswordMismatch on a wrong password.
// bcrypt compares in constant time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}

// VerifyDummy burns the same bcrypt time as Verify without a real hash.
//
// Sign-in calls it when the username doesn't exist, so an unknown user and a
// wrong password take about the same time to reject.
func (p *PasswordService) VerifyDummy(plaintext string) {
	p.dummyOnce.Do(func() {
		p.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password"), p.cost)
	})
	_ = bcrypt.CompareHashAndPassword(p.dummyHash, []byte(plaintext))
}
