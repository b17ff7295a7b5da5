package ui

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TitleColor       tcell.Color
	DayLabelColor    tcell.Color
	SentColor        tcell.Color
	ReceivedColor    tcell.Color
	TimeColor        tcell.Color
	CheckColor       tcell.Color
	ReadCheckColor   tcell.Color
	CounterColor     tcell.Color
	FlashInfoColor   tcell.Color
	FlashWarnColor   tcell.Color
	FlashErrColor    tcell.Color
}

// DefaultTheme returns the dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		TitleColor:       tcell.ColorFuchsia,
		DayLabelColor:    tcell.ColorOrange,
		SentColor:        tcell.ColorAqua,
		ReceivedColor:    tcell.ColorWhite,
		TimeColor:        tcell.ColorGray,
		CheckColor:       tcell.ColorGray,
		ReadCheckColor:   tcell.ColorLime,
		CounterColor:     tcell.ColorPapayaWhip,
		FlashInfoColor:   tcell.ColorNavajoWhite,
		FlashWarnColor:   tcell.ColorOrange,
		FlashErrColor:    tcell.ColorOrangeRed,
	}
}

// ColorName returns a tview color tag value for c.
func ColorName(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
