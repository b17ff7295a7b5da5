package store

import "time"

// AddMessage appends a message to its room and fills in m.ID.
func (db *DB) AddMessage(m *Message) error {
	res, err := db.Exec(`
		INSERT INTO messages (room_id, user_id, content, timestamp, is_read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.RoomID, m.UserID, m.Content, m.Timestamp, m.IsRead, time.Now().UnixMilli())
	if err != nil {
		return err
	}
	m.ID, err = res.LastInsertId()
	return err
}

// ListMessages returns the whole log of a room in insertion order.
func (db *DB) ListMessages(roomID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT id, room_id, user_id, content, timestamp, is_read
		FROM messages
		WHERE room_id = ?
		ORDER BY id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.UserID, &m.Content, &m.Timestamp, &m.IsRead); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkRead flags every message in the room not written by readerID as read.
// Returns the number of rows that changed.
func (db *DB) MarkRead(roomID string, readerID int64) (int64, error) {
	res, err := db.Exec(`
		UPDATE messages SET is_read = 1
		WHERE room_id = ? AND user_id != ? AND is_read = 0`, roomID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
