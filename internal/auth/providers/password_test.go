package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/howitz/howitz/internal/auth"
	"github.com/howitz/howitz/internal/db/gen"
	"github.com/jackc/pgx/v5"
)

type fakeUsers map[string]gen.User

func (f fakeUsers) GetUser(_ context.Context, username string) (gen.User, error) {
	u, ok := f[username]
	if !ok {
		return gen.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func TestPasswordProviderAuthenticate(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	p := NewPasswordProvider(fakeUsers{
		"alice": {Username: "alice", PasswordHash: hash, Token: "zino-token"},
	})

	principal, err := p.Authenticate(context.Background(), " alice ", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if principal.Username != "alice" || principal.Token != "zino-token" || principal.Method != auth.MethodPassword {
		t.Fatalf("principal = %+v", principal)
	}

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "wrong password", username: "alice", password: "battery staple"},
		{name: "unknown user", username: "bob", password: "correct horse"},
		{name: "empty username", username: " ", password: "x"},
		{name: "empty password", username: "alice", password: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := p.Authenticate(context.Background(), tc.username, tc.password)
			if !errors.Is(err, auth.ErrInvalidCredentials) {
				t.Fatalf("Authenticate() error = %v, want ErrInvalidCredentials", err)
			}
		})
	}
}

func TestPasswordProviderStoreError(t *testing.T) {
	t.Parallel()

	boom := errors.New("db down")
	p := NewPasswordProvider(storeFunc(func(context.Context, string) (gen.User, error) { return gen.User{}, boom }))
	if _, err := p.Authenticate(context.Background(), "alice", "pw"); !errors.Is(err, boom) {
		t.Fatalf("Authenticate() error = %v, want store error", err)
	}
}

type storeFunc func(context.Context, string) (gen.User, error)

func (f storeFunc) GetUser(ctx context.Context, username string) (gen.User, error) { return f(ctx, username) }
