package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/nkaluva9/health-chatbot/internal/tui/ui"
)

// helpSection is one titled block of key or command descriptions.
type helpSection struct {
	title string
	rows  [][2]string
}

var helpSections = []helpSection{
	{"Global Keys", [][2]string{
		{":", "Command mode"},
		{"?", "Help"},
		{"Esc", "Cancel / Go back"},
		{"q", "Quit"},
		{"Ctrl-C", "Quit immediately"},
	}},
	{"Chat", [][2]string{
		{"i", "Focus composer"},
		{"Enter", "Send message (in composer)"},
		{"/N", "Run action N of the latest card (in composer)"},
		{"1-9", "Run card action N"},
		{"n", "Start a new session"},
		{"l", "Session list"},
		{"c", "Clear the visible history"},
		{"r", "Reconnect to the bot"},
	}},
	{"Sessions", [][2]string{
		{"Enter", "Open session"},
		{"1-9", "Open Nth session"},
		{"a", "Archive session"},
		{"x", "Delete session"},
		{"/", "Filter by title"},
	}},
	{"Commands (: mode)", [][2]string{
		{":new", "Start a new session"},
		{":sessions [all]", "List sessions"},
		{":open <n>", "Open Nth session"},
		{":search <query>", "Search stored messages"},
		{":consent yes|no", "Allow or refuse storing history"},
		{":retention 30|60|90", "Set history retention in days"},
		{":clear", "Clear the visible history"},
		{":reconnect", "Reconnect to the bot"},
		{":help / :h", "Show this help"},
		{":quit / :q", "Quit application"},
	}},
}

// HelpView displays the key binding reference.
type HelpView struct {
	*tview.TextView
	theme *ui.Theme
}

// NewHelpView creates a new help view.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{
		TextView: tv,
		theme:    theme,
	}
	_, _ = fmt.Fprint(hv, renderHelp(colorHex(theme.MenuKeyColor)))
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

// Hints implements ui.Component.
func (hv *HelpView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

func renderHelp(keyColor string) string {
	var sb strings.Builder
	for _, sec := range helpSections {
		fmt.Fprintf(&sb, "\n  [::b]%s[-:-:-]\n\n", sec.title)
		for _, row := range sec.rows {
			fmt.Fprintf(&sb, "  [%s]%-22s[-:-:-] %s\n", keyColor, tview.Escape(row[0]), row[1])
		}
	}
	return sb.String()
}
