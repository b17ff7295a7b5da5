package store

// Room is a two-party conversation. FirstUser is always the smaller id.
type Room struct {
	ID         string
	FirstUser  int64
	SecondUser int64
	CreatedAt  int64
}

// Message is one persisted room entry. Timestamp is unix milliseconds.
type Message struct {
	ID        int64
	RoomID    string
	UserID    int64
	Content   string
	Timestamp int64
	IsRead    bool
}

// User is the profile returned by takeUserData.
type User struct {
	ID        int64
	Name      string
	BirthDate string
	City      string
}
