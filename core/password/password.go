// Package password hashes and checks user passwords.
package password

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/sectrean/servicekit/internal/errors"
)

// Hasher hashes and checks passwords.
type Hasher interface {
	Hash(password string) (string, error)
	Check(password, hash string) bool
	UserNeedsNewHash(hash string) bool
}

// HashedPassword hashes passwords with bcrypt. The log2 count is the bcrypt
// cost; raise it as hardware gets faster.
type HashedPassword struct {
	cost int
}

var _ Hasher = (*HashedPassword)(nil)

// NewHashedPassword creates a [HashedPassword]. The count is clamped to the
// range bcrypt supports.
func NewHashedPassword(log2Count int) *HashedPassword {
	return &HashedPassword{cost: min(max(log2Count, bcrypt.MinCost), bcrypt.MaxCost)}
}

// Cost returns the bcrypt cost used for new hashes.
func (p *HashedPassword) Cost() int {
	return p.cost
}

func (p *HashedPassword) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	return string(hash), nil
}

func (p *HashedPassword) Check(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// UserNeedsNewHash returns true if the hash was made with another cost or is not a bcrypt hash.
func (p *HashedPassword) UserNeedsNewHash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	return err != nil || cost != p.cost
}
