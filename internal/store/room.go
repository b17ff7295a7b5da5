package store

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

func orderPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// FindOrCreateRoom returns the room shared by two users, creating it on
// first use. created reports whether this call made it.
func (db *DB) FindOrCreateRoom(a, b int64) (r *Room, created bool, err error) {
	first, second := orderPair(a, b)

	r, err = db.roomByPair(first, second)
	if err != nil || r != nil {
		return r, false, err
	}

	r = &Room{ID: uuid.NewString(), FirstUser: first, SecondUser: second, CreatedAt: time.Now().UnixMilli()}
	res, err := db.Exec(`
		INSERT INTO rooms (id, first_user, second_user, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(first_user, second_user) DO NOTHING`,
		r.ID, r.FirstUser, r.SecondUser, r.CreatedAt)
	if err != nil {
		return nil, false, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Lost a race with a concurrent create.
		r, err = db.roomByPair(first, second)
		return r, false, err
	}
	return r, true, nil
}

// GetRoom returns a room by id, or nil when it does not exist.
func (db *DB) GetRoom(id string) (*Room, error) {
	var r Room
	err := db.QueryRow(`SELECT id, first_user, second_user, created_at FROM rooms WHERE id = ?`, id).
		Scan(&r.ID, &r.FirstUser, &r.SecondUser, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) roomByPair(first, second int64) (*Room, error) {
	var r Room
	err := db.QueryRow(`
		SELECT id, first_user, second_user, created_at FROM rooms
		WHERE first_user = ? AND second_user = ?`, first, second).
		Scan(&r.ID, &r.FirstUser, &r.SecondUser, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Member reports whether userID is one of the room's two users.
func (r *Room) Member(userID int64) bool {
	return r.FirstUser == userID || r.SecondUser == userID
}
