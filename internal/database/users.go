package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const bcryptCost = 10

// CreateUser registers a new account with a bcrypt-hashed password and
// returns the stored record.
func (d *Database) CreateUser(ctx context.Context, fullname, email, password string, role Role) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_user", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	email = strings.ToLower(strings.TrimSpace(email))

	var count int
	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email).Scan(&count); err != nil {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}
	if count > 0 {
		err = ErrDuplicateEmail
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	id := uuid.NewString()
	_, err = d.db.ExecContext(ctx, `
		INSERT INTO users (id, fullname, email, password_hash, role)
		VALUES (?, ?, ?, ?, ?)`,
		id, fullname, email, string(hash), role,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	return d.GetUserByID(ctx, id)
}

// GetUserByID retrieves a user record by identifier.
func (d *Database) GetUserByID(ctx context.Context, id string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_user", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT id, fullname, email, password_hash, role, created_at, updated_at
		FROM users WHERE id = ?`, id)

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	return u, err
}

// GetUserByEmail retrieves a user record by email (case-insensitive).
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_user_by_email", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx, `
		SELECT id, fullname, email, password_hash, role, created_at, updated_at
		FROM users WHERE email = ?`, strings.ToLower(strings.TrimSpace(email)))

	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrNotFound
		return nil, err
	}
	return u, err
}

// ValidateCredentials checks an email/password pair and returns the user on
// success. The caller cannot distinguish a missing account from a wrong
// password; both return ErrNotFound.
func (d *Database) ValidateCredentials(ctx context.Context, email, password string) (*User, error) {
	user, err := d.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// UpdatePassword replaces a user's password hash.
func (d *Database) UpdatePassword(ctx context.Context, id, newPassword string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_password", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	result, err := d.db.ExecContext(ctx, `
		UPDATE users SET password_hash = ?, updated_at = strftime('%s', 'now') WHERE id = ?`,
		string(hash), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		createdAt int64
		updatedAt int64
	)

	err := row.Scan(&u.ID, &u.Fullname, &u.Email, &u.PasswordHash, &u.Role, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	u.CreatedAt = time.Unix(createdAt, 0)
	u.UpdatedAt = time.Unix(updatedAt, 0)
	return &u, nil
}
