package views

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/nkaluva9/health-chatbot/internal/tui/ui"
)

// StatusBar is the bottom line: profile, connection, session and flash.
type StatusBar struct {
	*tview.TextView
	theme   *ui.Theme
	profile string
	status  string
	session string
	typing  bool
	flash   *ui.FlashMessage
	now     func() time.Time
}

// NewStatusBar creates a new status bar.
func NewStatusBar(theme *ui.Theme, profile string) *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	sb := &StatusBar{
		TextView: tv,
		theme:    theme,
		profile:  profile,
		status:   "UNINITIALIZED",
		now:      time.Now,
	}
	sb.render()
	return sb
}

// SetState updates the connection status, session title and typing flag.
func (sb *StatusBar) SetState(status, session string, typing bool) {
	sb.status = status
	sb.session = session
	sb.typing = typing
	sb.render()
}

// SetFlash sets or clears (nil) the transient message.
func (sb *StatusBar) SetFlash(msg *ui.FlashMessage) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}

func (sb *StatusBar) line() string {
	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-]",
		tview.Escape(sb.profile), colorHex(sb.theme.StatusColor(sb.status)), sb.status)
	if sb.session != "" {
		line += " | " + clean(sb.session)
	}
	if sb.typing {
		line += " | typing..."
	}
	line += " | " + sb.now().Format("15:04")

	if sb.flash != nil {
		color := sb.theme.FlashInfoColor
		switch sb.flash.Level {
		case ui.FlashWarn:
			color = sb.theme.FlashWarnColor
		case ui.FlashErr:
			color = sb.theme.FlashErrColor
		}
		line += fmt.Sprintf(" | [%s]%s[-]", colorHex(color), clean(sb.flash.String()))
	}
	return line
}
