package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNoAdminUser is returned for an unknown username.
var ErrNoAdminUser = errors.New("no such admin user")

// AdminUser is an operator allowed to mutate orders over HTTP.
type AdminUser struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

func (db *DB) CreateAdminUser(username, passwordHash string) error {
	if _, err := db.Exec(db.Q(`INSERT INTO admin_users (username, password_hash) VALUES (?, ?)`), username, passwordHash); err != nil {
		return fmt.Errorf("create admin user %s: %w", username, err)
	}
	return nil
}

func (db *DB) GetAdminUser(username string) (*AdminUser, error) {
	u := &AdminUser{}
	var createdAt any
	row := db.QueryRow(db.Q(`SELECT id, username, password_hash, created_at FROM admin_users WHERE username=?`), username)
	switch err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &createdAt); {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNoAdminUser
	case err != nil:
		return nil, fmt.Errorf("get admin user %s: %w", username, err)
	}
	u.CreatedAt = parseTime(createdAt)
	return u, nil
}

// AdminUserExists reports whether any admin user has been created.
func (db *DB) AdminUserExists() (bool, error) {
	var exists bool
	err := db.QueryRow(`SELECT EXISTS (SELECT 1 FROM admin_users)`).Scan(&exists)
	return exists, err
}
