package providers

import (
	"context"
	"errors"

	"github.com/howitz/howitz/internal/auth"
	"github.com/howitz/howitz/internal/db/gen"
	"github.com/jackc/pgx/v5"
)

// UserStore is the part of the query layer the password provider reads.
type UserStore interface {
	GetUser(ctx context.Context, username string) (gen.User, error)
}

type PasswordProvider struct {
	Users UserStore
}

func NewPasswordProvider(users UserStore) *PasswordProvider {
	return &PasswordProvider{Users: users}
}

func (p *PasswordProvider) Name() string {
	return auth.MethodPassword
}

func (p *PasswordProvider) Authenticate(ctx context.Context, username, password string) (auth.Principal, error) {
	username = auth.NormalizeUsername(username)
	if username == "" || password == "" {
		return auth.Principal{}, auth.ErrInvalidCredentials
	}

	user, err := p.Users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return auth.Principal{}, auth.ErrInvalidCredentials
		}
		return auth.Principal{}, err
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil {
		return auth.Principal{}, err
	}
	if !match {
		return auth.Principal{}, auth.ErrInvalidCredentials
	}

	return auth.Principal{
		Username: user.Username,
		Method:   auth.MethodPassword,
		Token:    user.Token,
	}, nil
}
