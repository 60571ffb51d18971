package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/howitz/howitz/internal/auth"
	"github.com/howitz/howitz/internal/config"
	"github.com/howitz/howitz/internal/db/gen"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const usersTimeout = 15 * time.Second

// userStore is the slice of the query layer the users commands need.
type userStore interface {
	CreateUser(ctx context.Context, arg gen.CreateUserParams) (gen.User, error)
	DeleteUser(ctx context.Context, username string) (int64, error)
	GetUser(ctx context.Context, username string) (gen.User, error)
	ListUsers(ctx context.Context) ([]gen.User, error)
	UpdateUser(ctx context.Context, arg gen.UpdateUserParams) (gen.User, error)
}

var openUserStore = func(ctx context.Context) (userStore, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, exitWith(exitUsage, err)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	return gen.New(pool), pool.Close, nil
}

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage Howitz users and their Zino tokens.",
}

// passwordFlags are the mutually exclusive ways of supplying a password.
type passwordFlags struct {
	value    string
	stdin    bool
	generate bool
}

func (p *passwordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.value, "password", "", "Password (discouraged; prefer --password-stdin). An argon2id hash is stored as is")
	cmd.Flags().BoolVar(&p.stdin, "password-stdin", false, "Read the password from stdin")
	cmd.Flags().BoolVar(&p.generate, "generate-password", false, "Generate a random password and print it")
}

func (p *passwordFlags) set() bool {
	return p.value != "" || p.stdin || p.generate
}

// resolve returns the password and whether it was generated. It prompts on
// a terminal when no flag was given.
func (p *passwordFlags) resolve(cmd *cobra.Command) (string, bool, error) {
	n := 0
	for _, on := range []bool{p.value != "", p.stdin, p.generate} {
		if on {
			n++
		}
	}
	if n > 1 {
		return "", false, exitWith(exitUsage, errors.New("--password, --password-stdin and --generate-password are mutually exclusive"))
	}

	switch {
	case p.stdin:
		password, err := readLine(cmd.InOrStdin())
		if err != nil {
			return "", false, err
		}
		if password == "" {
			return "", false, errors.New("password is empty")
		}
		return password, false, nil
	case p.generate:
		password, err := generatePassword(24)
		return password, err == nil, err
	case p.value != "":
		return p.value, false, nil
	}

	if cmd.InOrStdin() != os.Stdin || !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", false, exitWith(exitUsage, errors.New("no password provided (use --password, --password-stdin, or --generate-password)"))
	}
	return promptPassword(cmd)
}

func promptPassword(cmd *cobra.Command) (string, bool, error) {
	cmd.Print("Password: ")
	pass1, err := term.ReadPassword(int(os.Stdin.Fd()))
	cmd.Println()
	if err != nil {
		return "", false, err
	}
	if len(pass1) == 0 {
		return "", false, errors.New("password is empty")
	}

	cmd.Print("Confirm password: ")
	pass2, err := term.ReadPassword(int(os.Stdin.Fd()))
	cmd.Println()
	if err != nil {
		return "", false, err
	}
	if string(pass1) != string(pass2) {
		return "", false, errors.New("passwords do not match")
	}
	return string(pass1), false, nil
}

func readLine(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	if !scanner.Scan() {
		return "", scanner.Err()
	}
	return strings.TrimRight(scanner.Text(), "\r\n"), nil
}

func generatePassword(length int) (string, error) {
	if length < 16 {
		return "", errors.New("password length too short")
	}
	const alphabet = "abcdefghijkmnopqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	const alphabetLen = byte(len(alphabet))
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = alphabet[b[i]%alphabetLen]
	}
	return string(b), nil
}

func withUserStore(cmd *cobra.Command, fn func(context.Context, userStore) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), usersTimeout)
	defer cancel()

	store, closeStore, err := openUserStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, store)
}

func usernameArg(args []string) (string, error) {
	username := auth.NormalizeUsername(args[0])
	if username == "" {
		return "", exitWith(exitUsage, errors.New("username is empty"))
	}
	return username, nil
}

var (
	createPassword passwordFlags
	createToken    string
)

var usersCreateCmd = &cobra.Command{
	Use:   "create <username>",
	Short: "Create a user with a password and a Zino token.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username, err := usernameArg(args)
		if err != nil {
			return err
		}
		password, generated, err := createPassword.resolve(cmd)
		if err != nil {
			return err
		}
		return withUserStore(cmd, func(ctx context.Context, store userStore) error {
			if err := createUser(ctx, store, username, password, createToken); err != nil {
				return err
			}
			cmd.Printf("created user: %s\n", username)
			if generated {
				cmd.Printf("generated password: %s\n", password)
			}
			return nil
		})
	},
}

func createUser(ctx context.Context, store userStore, username, password, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return exitWith(exitUsage, errors.New("--token is required"))
	}
	if _, err := store.GetUser(ctx, username); err == nil {
		return fmt.Errorf("user already exists: %s", username)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := auth.EnsureHashed(password)
	if err != nil {
		return err
	}
	_, err = store.CreateUser(ctx, gen.CreateUserParams{Username: username, PasswordHash: hash, Token: token})
	return err
}

var (
	updatePassword passwordFlags
	updateToken    string
)

var usersUpdateCmd = &cobra.Command{
	Use:   "update <username>",
	Short: "Change a user's password or Zino token.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username, err := usernameArg(args)
		if err != nil {
			return err
		}
		if !updatePassword.set() && updateToken == "" {
			return exitWith(exitUsage, errors.New("nothing to update (use --token or a password flag)"))
		}

		var password string
		var generated bool
		if updatePassword.set() {
			if password, generated, err = updatePassword.resolve(cmd); err != nil {
				return err
			}
		}
		return withUserStore(cmd, func(ctx context.Context, store userStore) error {
			if err := updateUser(ctx, store, username, password, updateToken); err != nil {
				return err
			}
			cmd.Printf("updated user: %s\n", username)
			if generated {
				cmd.Printf("generated password: %s\n", password)
			}
			return nil
		})
	},
}

// updateUser keeps the stored value for an empty password or token.
func updateUser(ctx context.Context, store userStore, username, password, token string) error {
	current, err := store.GetUser(ctx, username)
	if errors.Is(err, pgx.ErrNoRows) {
		return exitWith(exitNotFound, fmt.Errorf("user not found: %s", username))
	} else if err != nil {
		return err
	}

	params := gen.UpdateUserParams{
		Username:     username,
		PasswordHash: current.PasswordHash,
		Token:        current.Token,
	}
	if password != "" {
		if params.PasswordHash, err = auth.EnsureHashed(password); err != nil {
			return err
		}
	}
	if token = strings.TrimSpace(token); token != "" {
		params.Token = token
	}
	_, err = store.UpdateUser(ctx, params)
	return err
}

var usersDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username, err := usernameArg(args)
		if err != nil {
			return err
		}
		return withUserStore(cmd, func(ctx context.Context, store userStore) error {
			if err := deleteUser(ctx, store, username); err != nil {
				return err
			}
			cmd.Printf("deleted user: %s\n", username)
			return nil
		})
	},
}

func deleteUser(ctx context.Context, store userStore, username string) error {
	n, err := store.DeleteUser(ctx, username)
	if err != nil {
		return err
	}
	if n == 0 {
		return exitWith(exitNotFound, fmt.Errorf("user not found: %s", username))
	}
	return nil
}

var usersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List users.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withUserStore(cmd, func(ctx context.Context, store userStore) error {
			return listUsers(ctx, store, cmd.OutOrStdout())
		})
	},
}

// listUsers prints one row per user. Tokens and hashes are never shown.
func listUsers(ctx context.Context, store userStore, out io.Writer) error {
	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tCREATED\tUPDATED")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.Username, stamp(u.CreatedAt), stamp(u.UpdatedAt))
	}
	return w.Flush()
}

func stamp(t pgtype.Timestamptz) string {
	if !t.Valid {
		return "-"
	}
	return t.Time.UTC().Format(time.RFC3339)
}

func init() {
	usersCmd.AddCommand(usersCreateCmd, usersUpdateCmd, usersDeleteCmd, usersListCmd)

	createPassword.register(usersCreateCmd)
	usersCreateCmd.Flags().StringVar(&createToken, "token", "", "Zino API token used for this user's event sessions")
	_ = usersCreateCmd.MarkFlagRequired("token")

	updatePassword.register(usersUpdateCmd)
	usersUpdateCmd.Flags().StringVar(&updateToken, "token", "", "New Zino API token")
}
