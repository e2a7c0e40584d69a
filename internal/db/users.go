package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"treenote/internal/model"
)

// RegisterUser creates a user if admit accepts the current number of users.
// The count, the username check and the insert run in one transaction, so two
// concurrent registrations cannot both be admitted by a first-user policy.
func (db *DB) RegisterUser(ctx context.Context, username, passwordHash string, admit func(existing int) bool) (*model.User, error) {
	var user *model.User
	err := db.Update(ctx, func(tx *Tx) error {
		if tx.driver == DriverPostgres {
			if _, err := tx.exec("LOCK TABLE users IN SHARE ROW EXCLUSIVE MODE"); err != nil {
				return fmt.Errorf("locking users: %w", err)
			}
		}

		var count int
		if err := tx.queryRow("SELECT COUNT(*) FROM users").Scan(&count); err != nil {
			return fmt.Errorf("counting users: %w", classify(err))
		}
		if !admit(count) {
			return ErrRegistrationClosed
		}

		var exists int
		err := tx.queryRow("SELECT 1 FROM users WHERE username = ?", username).Scan(&exists)
		if err == nil {
			return ErrAlreadyExists
		}
		if err != sql.ErrNoRows {
			return fmt.Errorf("checking username: %w", classify(err))
		}

		u := &model.User{
			ID:           newUUID(),
			Username:     username,
			PasswordHash: passwordHash,
			CreatedAt:    time.Unix(time.Now().Unix(), 0),
		}
		_, err = tx.exec(
			"INSERT INTO users (id, username, password_hash, created_at) VALUES (?, ?, ?, ?)",
			u.ID, u.Username, u.PasswordHash, u.CreatedAt.Unix(),
		)
		if errors.Is(err, ErrConstraint) {
			return ErrAlreadyExists
		}
		if err != nil {
			return fmt.Errorf("inserting user: %w", err)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return db.getUser(ctx, "SELECT id, username, password_hash, created_at FROM users WHERE id = ?", id)
}

// GetUserByUsername retrieves a user by username.
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	return db.getUser(ctx, "SELECT id, username, password_hash, created_at FROM users WHERE username = ?", username)
}

func (db *DB) getUser(ctx context.Context, q string, arg string) (*model.User, error) {
	var u model.User
	var createdAt int64
	err := db.View(ctx, func(tx *Tx) error {
		return tx.queryRow(q, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt)
	})
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

// CountUsers returns the number of registered users.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := db.View(ctx, func(tx *Tx) error {
		return tx.queryRow("SELECT COUNT(*) FROM users").Scan(&count)
	})
	if err != nil {
		return 0, classify(err)
	}
	return count, nil
}
