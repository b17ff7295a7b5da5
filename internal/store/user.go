package store

import (
	"database/sql"
	"time"
)

// UpsertUser inserts or updates a profile.
func (db *DB) UpsertUser(u *User) error {
	_, err := db.Exec(`
		INSERT INTO users (id, name, birth_date, city, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			birth_date = excluded.birth_date,
			city = excluded.city,
			updated_at = excluded.updated_at`,
		u.ID, u.Name, u.BirthDate, u.City, time.Now().UnixMilli())
	return err
}

// GetUser returns a profile by id, or nil when unknown.
func (db *DB) GetUser(id int64) (*User, error) {
	var u User
	err := db.QueryRow(`SELECT id, name, birth_date, city FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.BirthDate, &u.City)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
