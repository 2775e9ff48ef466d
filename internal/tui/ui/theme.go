package ui

import "github.com/gdamore/tcell/v2"

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor           tcell.Color
	FgColor           tcell.Color
	BorderColor       tcell.Color
	BorderFocusColor  tcell.Color
	TableHeaderFg     tcell.Color
	TableHeaderBg     tcell.Color
	TableCursorFg     tcell.Color
	TableCursorBg     tcell.Color
	CrumbActiveFg     tcell.Color
	CrumbActiveBg     tcell.Color
	CrumbInactiveFg   tcell.Color
	CrumbInactiveBg   tcell.Color
	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	TitleColor        tcell.Color
	CounterColor      tcell.Color
	FlashInfoColor    tcell.Color
	FlashWarnColor    tcell.Color
	FlashErrColor     tcell.Color
	PromptBorderColor tcell.Color
	UserColor         tcell.Color
	BotColor          tcell.Color
	CardColor         tcell.Color
	OnlineColor       tcell.Color
	PendingColor      tcell.Color
	OfflineColor      tcell.Color
}

// DefaultTheme returns a dark theme with a teal accent.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:           tcell.ColorBlack,
		FgColor:           tcell.ColorSilver,
		BorderColor:       tcell.ColorTeal,
		BorderFocusColor:  tcell.ColorAquaMarine,
		TableHeaderFg:     tcell.ColorWhite,
		TableHeaderBg:     tcell.ColorBlack,
		TableCursorFg:     tcell.ColorBlack,
		TableCursorBg:     tcell.ColorAquaMarine,
		CrumbActiveFg:     tcell.ColorBlack,
		CrumbActiveBg:     tcell.ColorMediumSeaGreen,
		CrumbInactiveFg:   tcell.ColorBlack,
		CrumbInactiveBg:   tcell.ColorTeal,
		MenuKeyColor:      tcell.ColorTeal,
		NumericKeyColor:   tcell.ColorFuchsia,
		TitleColor:        tcell.ColorMediumSeaGreen,
		CounterColor:      tcell.ColorPapayaWhip,
		FlashInfoColor:    tcell.ColorNavajoWhite,
		FlashWarnColor:    tcell.ColorOrange,
		FlashErrColor:     tcell.ColorOrangeRed,
		PromptBorderColor: tcell.ColorTeal,
		UserColor:         tcell.ColorLightSkyBlue,
		BotColor:          tcell.ColorMediumSeaGreen,
		CardColor:         tcell.ColorKhaki,
		OnlineColor:       tcell.ColorGreen,
		PendingColor:      tcell.ColorYellow,
		OfflineColor:      tcell.ColorOrangeRed,
	}
}

// StatusColor returns the color used to show a connection status.
func (t *Theme) StatusColor(status string) tcell.Color {
	switch status {
	case "ONLINE":
		return t.OnlineColor
	case "UNINITIALIZED", "CONNECTING":
		return t.PendingColor
	default:
		return t.OfflineColor
	}
}
