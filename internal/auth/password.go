package auth

import (
	"strings"

	"github.com/alexedwards/argon2id"
)

const hashPrefix = "$argon2id$"

var DefaultPasswordParams = &argon2id.Params{
	Memory:      19 * 1024,
	Iterations:  2,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

func HashPassword(password string) (string, error) {
	return argon2id.CreateHash(password, DefaultPasswordParams)
}

func ComparePassword(password, hash string) (bool, error) {
	return argon2id.ComparePasswordAndHash(password, hash)
}

// IsPasswordHash reports whether s already is an argon2id hash.
func IsPasswordHash(s string) bool {
	return strings.HasPrefix(s, hashPrefix)
}

// EnsureHashed hashes password unless it is already a hash.
func EnsureHashed(password string) (string, error) {
	if IsPasswordHash(password) {
		return password, nil
	}
	return HashPassword(password)
}
