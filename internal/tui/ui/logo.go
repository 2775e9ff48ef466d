package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// Logo is the header badge. The cross takes the color of the current
// connection status so it doubles as a status light.
type Logo struct {
	*tview.TextView
	theme  *Theme
	status string
}

func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 0, 0)

	l := &Logo{TextView: tv, theme: theme}
	l.SetStatus("")
	return l
}

// SetStatus recolors the badge. It is a no-op when status is unchanged.
func (l *Logo) SetStatus(status string) {
	if status == l.status && l.GetText(false) != "" {
		return
	}
	l.status = status
	l.Clear()
	_, _ = fmt.Fprint(l, badge(colorName(l.theme.StatusColor(status)), colorName(l.theme.FgColor)))
}

func badge(cross, text string) string {
	return fmt.Sprintf("[%[1]s::b] ▄█▄ [-:-:-]\n[%[1]s::b]▀▀█▀▀[-:-:-]\n[%[1]s::b]  ▀  [-:-:-]\n[%[2]s]health chat[-:-:-]", cross, text)
}
