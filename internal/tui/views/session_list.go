package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/nkaluva9/health-chatbot/internal/api"
	"github.com/nkaluva9/health-chatbot/internal/tui/ui"
)

// SessionList is the table of stored sessions.
type SessionList struct {
	*tview.Table
	theme    *ui.Theme
	sessions []api.SessionView
	filter   string
	now      func() time.Time
}

// NewSessionList creates a new session table.
func NewSessionList(theme *ui.Theme) *SessionList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitle(" Sessions ")
	table.SetTitleColor(theme.TitleColor)

	return &SessionList{
		Table: table,
		theme: theme,
		now:   time.Now,
	}
}

// Name implements ui.Component.
func (sl *SessionList) Name() string { return "Sessions" }

// Hints implements ui.Component.
func (sl *SessionList) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Enter", Description: "Open"},
		{Key: "n", Description: "New"},
		{Key: "a", Description: "Archive"},
		{Key: "x", Description: "Delete"},
		{Key: "/", Description: "Filter"},
		{Key: "Esc", Description: "Back"},
		{Key: "0-9", Description: "Jump", Numeric: true},
	}
}

// Update refreshes the table with new data.
func (sl *SessionList) Update(sessions []api.SessionView) {
	sl.sessions = sessions
	sl.render()
}

// SetFilter sets the active filter text and re-renders.
func (sl *SessionList) SetFilter(filter string) {
	sl.filter = filter
	sl.render()
}

// ClearFilter clears the active filter.
func (sl *SessionList) ClearFilter() {
	sl.SetFilter("")
}

// visible returns the sessions matching the filter, in table order.
func (sl *SessionList) visible() []api.SessionView {
	if sl.filter == "" {
		return sl.sessions
	}
	needle := strings.ToLower(sl.filter)
	var out []api.SessionView
	for _, s := range sl.sessions {
		if strings.Contains(strings.ToLower(s.Title), needle) {
			out = append(out, s)
		}
	}
	return out
}

func (sl *SessionList) render() {
	sl.Clear()

	headers := []struct {
		text string
		exp  int
	}{
		{" TITLE", 3},
		{" MSGS", 0},
		{" LAST", 1},
		{" EXPIRES", 1},
	}
	for col, h := range headers {
		sl.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(sl.theme.TableHeaderFg).
			SetBackgroundColor(sl.theme.TableHeaderBg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	rows := sl.visible()
	for i, s := range rows {
		row := i + 1
		title := clean(s.Title)
		color := sl.theme.FgColor
		if s.IsArchived {
			title += " (archived)"
			color = tcell.ColorGray
		}
		sl.SetCell(row, 0, tview.NewTableCell(" "+title).SetExpansion(3).SetTextColor(color))
		sl.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%d", s.MessageCount)).SetTextColor(color).SetAlign(tview.AlignRight))
		sl.SetCell(row, 2, tview.NewTableCell(" "+sl.relative(s.LastMessageAtMs)).SetExpansion(1).SetTextColor(color))
		sl.SetCell(row, 3, tview.NewTableCell(" "+sl.relative(s.ExpiresAtUnixMs)).SetExpansion(1).SetTextColor(color))
	}

	if sl.filter != "" {
		sl.SetTitle(fmt.Sprintf(" Sessions (%d/%d) filter: %s ", len(rows), len(sl.sessions), tview.Escape(sl.filter)))
	} else {
		sl.SetTitle(fmt.Sprintf(" Sessions (%d) ", len(sl.sessions)))
	}
}

func (sl *SessionList) relative(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return humanize.RelTime(time.UnixMilli(ms), sl.now(), "ago", "from now")
}

// SelectedSession returns the id of the selected session, or empty.
func (sl *SessionList) SelectedSession() string {
	row, _ := sl.GetSelection()
	return sl.SessionByIndex(row)
}

// SessionByIndex returns the id of the Nth visible session (1-based).
func (sl *SessionList) SessionByIndex(n int) string {
	rows := sl.visible()
	if n < 1 || n > len(rows) {
		return ""
	}
	return rows[n-1].ID
}
