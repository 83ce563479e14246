package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/agentdesk/agentdesk/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound    = errors.New("user not found")
	ErrEmailExists     = errors.New("email already exists")
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already linked")
	ErrLastAccount     = errors.New("cannot remove the last account")
)

const userColumns = `id, email, name, image, email_verified_at, created_at, updated_at`

// CreateUserWithAccount inserts a user and its first account atomically.
func (r *Repository) CreateUserWithAccount(ctx context.Context, user *model.User, account *model.Account) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO users (id, email, name, image, email_verified_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`,
			user.ID,
			user.Email,
			user.Name,
			user.Image,
			user.EmailVerifiedAt,
			user.CreatedAt,
			user.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrEmailExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}

		if err := insertAccount(ctx, tx, account); err != nil {
			return err
		}
		return nil
	})
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by ID: %w", err)
	}

	return user, nil
}

// GetUserByEmail retrieves a user by their email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	user, err := scanUser(r.pool.QueryRow(ctx, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}

	return user, nil
}

// UpdateUserProfile updates the mutable profile fields and returns the stored user.
func (r *Repository) UpdateUserProfile(ctx context.Context, id, name, image string) (*model.User, error) {
	query := `
		UPDATE users
		SET name = $2, image = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns

	user, err := scanUser(r.pool.QueryRow(ctx, query, id, name, image))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return user, nil
}

// DeleteUser removes a user. Accounts, sessions, activity, projects and their
// children cascade.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// GetCredentialsAccount returns the password account for an email address.
func (r *Repository) GetCredentialsAccount(ctx context.Context, email string) (*model.Account, error) {
	query := `
		SELECT id, user_id, type, provider, provider_account_id, COALESCE(password_hash, ''), created_at
		FROM accounts
		WHERE provider = $1 AND provider_account_id = $2
	`

	account, err := scanAccount(r.pool.QueryRow(ctx, query, model.ProviderCredentials, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to get credentials account: %w", err)
	}

	return account, nil
}

// ListAccountsByUserID returns every account linked to a user, oldest first.
func (r *Repository) ListAccountsByUserID(ctx context.Context, userID string) ([]*model.Account, error) {
	query := `
		SELECT id, user_id, type, provider, provider_account_id, COALESCE(password_hash, ''), created_at
		FROM accounts
		WHERE user_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*model.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating accounts: %w", err)
	}

	return accounts, nil
}

// DeleteAccount unlinks an account from its user. The last remaining account
// cannot be removed.
func (r *Repository) DeleteAccount(ctx context.Context, userID, accountID string) error {
	return r.withTx(ctx, func(tx pgx.Tx) error {
		// Lock the user's accounts so concurrent unlinks cannot both pass the count check.
		rows, err := tx.Query(ctx, `SELECT id FROM accounts WHERE user_id = $1 FOR UPDATE`, userID)
		if err != nil {
			return fmt.Errorf("failed to lock accounts: %w", err)
		}
		ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to scan accounts: %w", err)
		}

		found := false
		for _, id := range ids {
			if id == accountID {
				found = true
				break
			}
		}
		if !found {
			return ErrAccountNotFound
		}
		if len(ids) == 1 {
			return ErrLastAccount
		}

		if _, err := tx.Exec(ctx, `DELETE FROM accounts WHERE id = $1 AND user_id = $2`, accountID, userID); err != nil {
			return fmt.Errorf("failed to delete account: %w", err)
		}
		return nil
	})
}

func insertAccount(ctx context.Context, tx pgx.Tx, account *model.Account) error {
	var passwordHash *string
	if account.PasswordHash != "" {
		passwordHash = &account.PasswordHash
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO accounts (id, user_id, type, provider, provider_account_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		account.ID,
		account.UserID,
		account.Type,
		account.Provider,
		account.ProviderAccountID,
		passwordHash,
		account.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

// scanUser scans a single row into a User model.
func scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&user.Image,
		&user.EmailVerifiedAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return &user, err
}

func scanAccount(row pgx.Row) (*model.Account, error) {
	var account model.Account
	err := row.Scan(
		&account.ID,
		&account.UserID,
		&account.Type,
		&account.Provider,
		&account.ProviderAccountID,
		&account.PasswordHash,
		&account.CreatedAt,
	)
	return &account, err
}
