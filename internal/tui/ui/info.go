package ui

import (
	"fmt"

	"github.com/rivo/tview"
)

// InfoData holds the conversation summary shown in the header.
type InfoData struct {
	Profile     string
	User        string
	Status      string
	Persistence string
	Session     string
	Messages    int
}

// Info displays conversation metadata in the header.
type Info struct {
	*tview.TextView
	theme *Theme
}

// NewInfo creates a new header info panel.
func NewInfo(theme *Theme) *Info {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)

	return &Info{
		TextView: tv,
		theme:    theme,
	}
}

// Update renders the info panel.
func (in *Info) Update(data *InfoData) {
	in.Clear()
	if data == nil {
		return
	}

	fg := colorName(in.theme.FgColor)
	counter := colorName(in.theme.CounterColor)
	statusColor := colorName(in.theme.StatusColor(data.Status))

	session := data.Session
	if session == "" {
		session = "-"
	}

	_, _ = fmt.Fprintf(in,
		"[%s::b]Profile:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]User:[-:-:-]    [%s]%s[-]\n"+
			"[%s::b]Status:[-:-:-]  [%s]%s[-]\n"+
			"[%s::b]History:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Session:[-:-:-] [%s]%s[-]\n"+
			"[%s::b]Msgs:[-:-:-]    [%s]%d[-]",
		fg, counter, tview.Escape(data.Profile),
		fg, counter, tview.Escape(data.User),
		fg, statusColor, data.Status,
		fg, counter, data.Persistence,
		fg, counter, tview.Escape(session),
		fg, counter, data.Messages,
	)
}
