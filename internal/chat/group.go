package chat

import (
	"time"

	"github.com/goodsign/monday"
)

const (
	LabelToday     = "Today"
	LabelYesterday = "Yesterday"

	dayMonthLayout = "2 January"
)

// relativeLabels holds today and yesterday per locale. Locales missing here
// fall back to the English pair.
var relativeLabels = map[monday.Locale][2]string{
	monday.LocaleRuRU: {"Сегодня", "Вчера"},
	monday.LocaleUkUA: {"Сьогодні", "Вчора"},
	monday.LocaleDeDE: {"Heute", "Gestern"},
	monday.LocaleFrFR: {"Aujourd'hui", "Hier"},
	monday.LocaleEsES: {"Hoy", "Ayer"},
	monday.LocalePtBR: {"Hoje", "Ontem"},
	monday.LocaleItIT: {"Oggi", "Ieri"},
}

// DayGroup is a contiguous run of messages sharing a day label.
type DayGroup struct {
	Label    string
	Messages []Message
}

// Labeler computes day labels relative to Now in Location.
type Labeler struct {
	Now      func() time.Time
	Location *time.Location
	Locale   monday.Locale
}

// DefaultLabeler uses the local clock and zone in ru_RU, so relative labels
// and month names are both Russian ("Сегодня", "5 марта").
func DefaultLabeler() Labeler {
	return Labeler{Now: time.Now, Location: time.Local, Locale: monday.LocaleRuRU}
}

// Label returns the locale's word for today or yesterday, otherwise a
// localized day-month string. An empty Locale means en_US.
func (l Labeler) Label(ts time.Time) string {
	loc := l.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now
	if l.Now != nil {
		now = l.Now
	}
	locale := l.Locale
	if locale == "" {
		locale = monday.LocaleEnUS
	}
	rel, ok := relativeLabels[locale]
	if !ok {
		rel = [2]string{LabelToday, LabelYesterday}
	}

	t := ts.In(loc)
	today := now().In(loc)
	if sameDay(t, today) {
		return rel[0]
	}
	if sameDay(t, today.AddDate(0, 0, -1)) {
		return rel[1]
	}
	return monday.Format(t, dayMonthLayout, locale)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Group partitions messages into day groups in one pass. Equal labels that
// are not adjacent stay in separate groups.
func Group(msgs []Message, l Labeler) []DayGroup {
	var groups []DayGroup
	current := ""
	for _, m := range msgs {
		label := l.Label(m.Timestamp)
		if len(groups) == 0 || label != current {
			groups = append(groups, DayGroup{Label: label})
			current = label
		}
		last := &groups[len(groups)-1]
		last.Messages = append(last.Messages, m)
	}
	return groups
}

// Flatten concatenates groups back into a message sequence.
func Flatten(groups []DayGroup) []Message {
	var out []Message
	for _, g := range groups {
		out = append(out, g.Messages...)
	}
	return out
}
