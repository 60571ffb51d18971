package auth

import (
	"errors"
	"strings"
)

const (
	MethodPassword = "password"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords alike.
var ErrInvalidCredentials = errors.New("invalid credentials")

type Principal struct {
	Username string
	Method   string // "password"

	// Token is the user's event source credential. It is never stored in
	// the session.
	Token string
}

func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}
