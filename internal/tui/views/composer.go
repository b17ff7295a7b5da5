package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// Composer is the text input for sending messages.
type Composer struct {
	*tview.InputField
	onSend  func(text string)
	enabled bool
}

// NewComposer creates a new message composer. It starts disabled until the
// conversation is active.
func NewComposer(theme *ui.Theme) *Composer {
	input := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0).
		SetPlaceholder("waiting for the conversation...")
	input.SetBackgroundColor(theme.BgColor)
	input.SetFieldBackgroundColor(theme.BgColor)
	input.SetFieldTextColor(theme.FgColor)
	input.SetLabelColor(theme.BorderColor)

	c := &Composer{InputField: input}

	input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || !c.enabled || c.onSend == nil {
			return
		}
		text := c.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		c.onSend(text)
		c.SetText("")
	})

	return c
}

// SetOnSend sets the callback when a message is sent.
func (c *Composer) SetOnSend(fn func(text string)) {
	c.onSend = fn
}

// SetEnabled allows or blocks sending. Typed text is kept either way.
func (c *Composer) SetEnabled(enabled bool) {
	c.enabled = enabled
	if enabled {
		c.SetPlaceholder("type a message, Enter to send")
	} else {
		c.SetPlaceholder("waiting for the conversation...")
	}
}
