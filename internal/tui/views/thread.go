package views

import (
	"fmt"
	"time"

	"github.com/matheus3301/pchat/internal/chat"
	"github.com/matheus3301/pchat/internal/tui/ui"
	"github.com/rivo/tview"
)

const (
	markSent = "✓"
	markRead = "✓✓"
)

// CheckMark returns the delivery mark of m as seen by viewerID: one check
// while the counterpart has not read it, two once read, nothing when the
// server never reported the flag or the message was received.
func CheckMark(m chat.Message, viewerID int64) string {
	if m.Direction(viewerID) != chat.Sent {
		return ""
	}
	switch m.Read {
	case chat.ReadFalse:
		return markSent
	case chat.ReadTrue:
		return markRead
	default:
		return ""
	}
}

// Thread renders day groups one row per message, without wrapping.
type Thread struct {
	*tview.Table
	theme *ui.Theme

	tailSeq uint64
	hasTail bool
}

// NewThread creates an empty message list.
func NewThread(theme *ui.Theme) *Thread {
	table := tview.NewTable().
		SetSelectable(false, false)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitle(" Messages ")
	table.SetTitleColor(theme.TitleColor)
	table.ScrollToEnd()

	return &Thread{Table: table, theme: theme}
}

// SetPeer shows the counterpart in the title.
func (t *Thread) SetPeer(name string) {
	t.SetTitle(fmt.Sprintf(" %s ", cellText(name)))
}

// Update replaces the rows. The view jumps to the newest message whenever
// the tail changes.
func (t *Thread) Update(groups []chat.DayGroup, viewerID int64, loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	t.Clear()

	row := 0
	var tail chat.Message
	hasTail := false
	for _, g := range groups {
		t.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("[%s::b]%s[-:-:-]", ui.ColorName(t.theme.DayLabelColor), cellText(g.Label))).
			SetAlign(tview.AlignCenter).
			SetExpansion(1))
		row++
		for _, m := range g.Messages {
			t.setMessage(row, m, viewerID, loc)
			tail, hasTail = m, true
			row++
		}
	}

	if hasTail != t.hasTail || tail.Seq != t.tailSeq {
		t.ScrollToEnd()
	}
	t.tailSeq, t.hasTail = tail.Seq, hasTail
}

func (t *Thread) setMessage(row int, m chat.Message, viewerID int64, loc *time.Location) {
	color := t.theme.ReceivedColor
	align := tview.AlignLeft
	if m.Direction(viewerID) == chat.Sent {
		color = t.theme.SentColor
		align = tview.AlignRight
	}

	t.SetCell(row, 0, tview.NewTableCell(m.Timestamp.In(loc).Format("15:04")).
		SetTextColor(t.theme.TimeColor))
	t.SetCell(row, 1, tview.NewTableCell(cellText(m.Text)).
		SetTextColor(color).
		SetAlign(align).
		SetExpansion(1))

	mark := CheckMark(m, viewerID)
	markColor := t.theme.CheckColor
	if mark == markRead {
		markColor = t.theme.ReadCheckColor
	}
	t.SetCell(row, 2, tview.NewTableCell(mark).
		SetTextColor(markColor))
}

// Tail returns the sequence number of the newest rendered message.
func (t *Thread) Tail() (uint64, bool) {
	return t.tailSeq, t.hasTail
}

// TailOnScreen reports whether the last row fits in the area drawn last time.
func (t *Thread) TailOnScreen() bool {
	rows := t.GetRowCount()
	if rows == 0 {
		return false
	}
	offset, _ := t.GetOffset()
	_, _, _, height := t.GetInnerRect()
	return height > 0 && offset+height >= rows
}
