// Package room maps a pair of users to their conversation and loads its history.
package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrResolution matches every ResolutionError via errors.Is.
var ErrResolution = errors.New("room resolution failed")

// ResolutionError is returned when the server could not produce a room for a pair.
type ResolutionError struct {
	ViewerID int64
	PeerID   int64
	Err      error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve room for %d/%d: %v", e.ViewerID, e.PeerID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

func (e *ResolutionError) Is(target error) bool { return target == ErrResolution }

// Lookup is the server call that finds or creates a room.
type Lookup interface {
	CheckRoom(ctx context.Context, firstUser, secondUser int64) (string, error)
}

type pair struct {
	viewer, peer int64
}

// Resolver caches room ids per (viewer, peer) pair.
type Resolver struct {
	lookup Lookup

	mu    sync.Mutex
	rooms map[pair]string
}

// NewResolver creates a resolver backed by the given lookup.
func NewResolver(lookup Lookup) *Resolver {
	return &Resolver{lookup: lookup, rooms: make(map[pair]string)}
}

// Resolve returns the room shared by viewer and peer. Failures are never cached.
func (r *Resolver) Resolve(ctx context.Context, viewerID, peerID int64) (string, error) {
	key := pair{viewerID, peerID}

	r.mu.Lock()
	id, ok := r.rooms[key]
	r.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := r.lookup.CheckRoom(ctx, viewerID, peerID)
	if err != nil {
		return "", &ResolutionError{ViewerID: viewerID, PeerID: peerID, Err: err}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.rooms[key]; ok {
		return cached, nil
	}
	r.rooms[key] = id
	return id, nil
}
