package session

import (
	"errors"
	"fmt"
	"regexp"
)

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName checks that name conforms to session naming rules.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid session name %q: must match ^[a-z0-9_-]{1,64}$", name)
	}
	return nil
}

// ErrNoViewer is returned when the profile has no viewer id configured.
var ErrNoViewer = errors.New("profile.viewer_id is not set in config")

// ValidatePair checks that a conversation has two distinct, known participants.
func ValidatePair(viewerID, peerID int64) error {
	if viewerID <= 0 {
		return ErrNoViewer
	}
	if peerID <= 0 {
		return fmt.Errorf("invalid peer id %d", peerID)
	}
	if viewerID == peerID {
		return fmt.Errorf("peer id %d is the viewer itself", peerID)
	}
	return nil
}
