package views

import (
	"strings"
	"unicode"

	"github.com/rivo/tview"
)

// cellText prepares user text for a single table row: line breaks and other
// control characters become spaces, emoji modifiers that tcell draws with
// the wrong width are dropped, and color tags are escaped.
func cellText(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
			b.WriteByte(' ')
		case dropRune(r):
		default:
			b.WriteRune(r)
		}
	}
	return tview.Escape(b.String())
}

func dropRune(r rune) bool {
	switch {
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors and their supplement.
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}
