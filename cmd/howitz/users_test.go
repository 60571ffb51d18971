package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/howitz/howitz/internal/auth"
	"github.com/howitz/howitz/internal/db/gen"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/spf13/cobra"
)

type memUsers map[string]gen.User

func (m memUsers) CreateUser(_ context.Context, arg gen.CreateUserParams) (gen.User, error) {
	u := gen.User{Username: arg.Username, PasswordHash: arg.PasswordHash, Token: arg.Token}
	m[arg.Username] = u
	return u, nil
}

func (m memUsers) DeleteUser(_ context.Context, username string) (int64, error) {
	if _, ok := m[username]; !ok {
		return 0, nil
	}
	delete(m, username)
	return 1, nil
}

func (m memUsers) GetUser(_ context.Context, username string) (gen.User, error) {
	u, ok := m[username]
	if !ok {
		return gen.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m memUsers) ListUsers(context.Context) ([]gen.User, error) {
	out := make([]gen.User, 0, len(m))
	for _, u := range m {
		out = append(out, u)
	}
	return out, nil
}

func (m memUsers) UpdateUser(_ context.Context, arg gen.UpdateUserParams) (gen.User, error) {
	u := m[arg.Username]
	u.PasswordHash, u.Token = arg.PasswordHash, arg.Token
	m[arg.Username] = u
	return u, nil
}

func TestCreateUser(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memUsers{}

	if err := createUser(ctx, store, "alice", "secret", " tok "); err != nil {
		t.Fatalf("createUser() error = %v", err)
	}
	u := store["alice"]
	if u.Token != "tok" {
		t.Fatalf("Token = %q, want trimmed token", u.Token)
	}
	if ok, err := auth.ComparePassword("secret", u.PasswordHash); err != nil || !ok {
		t.Fatalf("stored hash does not match password: ok=%v err=%v", ok, err)
	}

	if err := createUser(ctx, store, "alice", "other", "tok"); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("duplicate createUser() error = %v", err)
	}

	var ee *exitError
	if err := createUser(ctx, store, "bob", "secret", " "); !errors.As(err, &ee) || ee.code != exitUsage {
		t.Fatalf("createUser() without token error = %v, want usage exit", err)
	}
}

func TestUpdateUserKeepsExistingHash(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	hash, err := auth.HashPassword("secret")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	store := memUsers{"alice": {Username: "alice", PasswordHash: "old", Token: "tok"}}

	if err := updateUser(ctx, store, "alice", hash, ""); err != nil {
		t.Fatalf("updateUser() error = %v", err)
	}
	if got := store["alice"]; got.PasswordHash != hash || got.Token != "tok" {
		t.Fatalf("user = %+v, want hash stored as is and token kept", got)
	}

	if err := updateUser(ctx, store, "alice", "", "new-token"); err != nil {
		t.Fatalf("updateUser() error = %v", err)
	}
	if got := store["alice"]; got.PasswordHash != hash || got.Token != "new-token" {
		t.Fatalf("user = %+v, want only the token changed", got)
	}

	var ee *exitError
	if err := updateUser(ctx, store, "bob", "x", ""); !errors.As(err, &ee) || ee.code != exitNotFound {
		t.Fatalf("updateUser() for missing user error = %v, want not-found exit", err)
	}
}

func TestDeleteUser(t *testing.T) {
	t.Parallel()

	store := memUsers{"alice": {Username: "alice"}}
	if err := deleteUser(context.Background(), store, "alice"); err != nil {
		t.Fatalf("deleteUser() error = %v", err)
	}
	if len(store) != 0 {
		t.Fatal("user still present")
	}

	var ee *exitError
	if err := deleteUser(context.Background(), store, "alice"); !errors.As(err, &ee) || ee.code != exitNotFound {
		t.Fatalf("second deleteUser() error = %v, want not-found exit", err)
	}
}

func TestListUsersHidesSecrets(t *testing.T) {
	t.Parallel()

	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store := memUsers{"alice": {
		Username:     "alice",
		PasswordHash: "$argon2id$secret",
		Token:        "zino-token",
		CreatedAt:    pgtype.Timestamptz{Time: created, Valid: true},
	}}

	var out bytes.Buffer
	if err := listUsers(context.Background(), store, &out); err != nil {
		t.Fatalf("listUsers() error = %v", err)
	}
	got := out.String()
	for _, want := range []string{"USERNAME", "alice", "2024-03-01T12:00:00Z"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q: %q", want, got)
		}
	}
	for _, secret := range []string{"zino-token", "argon2id"} {
		if strings.Contains(got, secret) {
			t.Fatalf("output leaked %q", secret)
		}
	}
}

func TestPasswordFlagsResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		flags     passwordFlags
		stdin     string
		want      string
		generated bool
		wantErr   bool
	}{
		{name: "flag", flags: passwordFlags{value: "pw"}, want: "pw"},
		{name: "stdin", flags: passwordFlags{stdin: true}, stdin: "from-stdin\r\n", want: "from-stdin"},
		{name: "empty stdin", flags: passwordFlags{stdin: true}, stdin: "\n", wantErr: true},
		{name: "generated", flags: passwordFlags{generate: true}, generated: true},
		{name: "exclusive", flags: passwordFlags{value: "pw", stdin: true}, wantErr: true},
		{name: "none without terminal", flags: passwordFlags{}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cmd := &cobra.Command{}
			cmd.SetIn(strings.NewReader(tc.stdin))
			got, generated, err := tc.flags.resolve(cmd)
			if tc.wantErr {
				if err == nil {
					t.Fatal("resolve() error = nil, want error")
				}
				return
			}
			if err != nil {
				t.Fatalf("resolve() error = %v", err)
			}
			if generated != tc.generated {
				t.Fatalf("generated = %v, want %v", generated, tc.generated)
			}
			if tc.generated {
				if len(got) != 24 {
					t.Fatalf("generated password length = %d, want 24", len(got))
				}
				return
			}
			if got != tc.want {
				t.Fatalf("password = %q, want %q", got, tc.want)
			}
		})
	}
}
