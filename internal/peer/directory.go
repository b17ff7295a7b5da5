// Package peer looks up the counterpart's profile for the conversation header.
package peer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/pchat/internal/restapi"
)

const birthDateLayout = "2006-01-02"

// Profile is the header data of one user.
type Profile struct {
	ID   int64
	Name string
	City string
	// Age is zero when the birth date is missing or malformed.
	Age int
}

// Source fetches raw user data.
type Source interface {
	TakeUserData(ctx context.Context, userID int64) (*restapi.UserData, error)
}

// Directory caches profiles by user id.
type Directory struct {
	src Source
	now func() time.Time

	mu    sync.Mutex
	cache map[int64]Profile
}

// NewDirectory creates a directory backed by src.
func NewDirectory(src Source) *Directory {
	return &Directory{src: src, now: time.Now, cache: make(map[int64]Profile)}
}

// Lookup returns the profile of userID, fetching it on first use.
func (d *Directory) Lookup(ctx context.Context, userID int64) (Profile, error) {
	d.mu.Lock()
	p, ok := d.cache[userID]
	d.mu.Unlock()
	if ok {
		return p, nil
	}

	data, err := d.src.TakeUserData(ctx, userID)
	if err != nil {
		return Profile{}, fmt.Errorf("profile of %d: %w", userID, err)
	}
	p = Profile{ID: userID, Name: data.Name, City: data.City}
	if born, err := time.Parse(birthDateLayout, data.BirthDate); err == nil {
		p.Age = Age(born, d.now())
	}

	d.mu.Lock()
	d.cache[userID] = p
	d.mu.Unlock()
	return p, nil
}

// Age returns full years between born and now.
func Age(born, now time.Time) int {
	years := now.Year() - born.Year()
	if now.Month() < born.Month() || (now.Month() == born.Month() && now.Day() < born.Day()) {
		years--
	}
	if years < 0 {
		return 0
	}
	return years
}
