package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/pchat/internal/status"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

// StatusBar displays the session, view state, unread count and flash.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	session string
	state   status.State
	unread  int
	hints   []string
	flash   *ui.FlashMessage
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, state: status.Idle, now: time.Now}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetView updates the conversation state and unread counter.
func (sb *StatusBar) SetView(state status.State, unread int) {
	sb.state = state
	sb.unread = unread
	sb.render()
}

// SetHints shows key hints at the end of the bar.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash shows msg until the next call; nil clears it.
func (sb *StatusBar) SetFlash(msg *ui.FlashMessage) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}

func (sb *StatusBar) line() string {
	state := string(sb.state)
	if sb.state == status.Active {
		state = "[green]" + state + "[-]"
	} else if sb.state == status.Failed {
		state = "[red]" + state + "[-]"
	}

	line := fmt.Sprintf(" [::b]%s[-:-:-] | %s", sb.session, state)
	if sb.unread > 0 {
		line += fmt.Sprintf(" | [%s]%d unread[-]", ui.ColorName(sb.theme.CounterColor), sb.unread)
	}
	line += " | " + sb.now().Format("15:04")
	if sb.flash != nil {
		line += fmt.Sprintf(" | [%s]%s[-]", sb.flash.Color(sb.theme), tview.Escape(sb.flash.Text))
	}
	if len(sb.hints) > 0 {
		line += " | " + strings.Join(sb.hints, " ")
	}
	return line
}
