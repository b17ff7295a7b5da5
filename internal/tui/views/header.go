package views

import (
	"fmt"
	"strings"

	"github.com/matheus3301/pchat/internal/peer"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// Header shows who the conversation is with.
type Header struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHeader creates an empty header.
func NewHeader(theme *ui.Theme) *Header {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &Header{TextView: tv, theme: theme}
}

// SetPeer renders the counterpart before their profile is known.
func (h *Header) SetPeer(id int64) {
	h.Clear()
	_, _ = fmt.Fprintf(h, "[%s::b]user %d[-:-:-]", ui.ColorName(h.theme.TitleColor), id)
}

// SetProfile renders name, age and city.
func (h *Header) SetProfile(p peer.Profile) {
	h.Clear()
	_, _ = fmt.Fprint(h, ProfileLine(p, h.theme))
}

// ProfileLine formats p for the header. Missing fields are skipped.
func ProfileLine(p peer.Profile, theme *ui.Theme) string {
	name := p.Name
	if name == "" {
		name = fmt.Sprintf("user %d", p.ID)
	}
	parts := []string{fmt.Sprintf("[%s::b]%s[-:-:-]", ui.ColorName(theme.TitleColor), cellText(name))}
	if p.Age > 0 {
		parts = append(parts, fmt.Sprintf("[%s]%d[-]", ui.ColorName(theme.CounterColor), p.Age))
	}
	if p.City != "" {
		parts = append(parts, cellText(p.City))
	}
	return strings.Join(parts, ", ")
}
