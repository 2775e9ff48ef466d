package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/nkaluva9/health-chatbot/internal/activity"
	"github.com/nkaluva9/health-chatbot/internal/card"
	"github.com/nkaluva9/health-chatbot/internal/tui/ui"
)

// Composer labels.
const (
	composerReady   = " > "
	composerOffline = " (offline) > "
)

// MessageThread displays the conversation and a composer.
type MessageThread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.TextView
	composer *tview.InputField
	online   bool
	onSend   func(text string)
	onAction func(n int)
}

// NewMessageThread creates a new message thread view.
func NewMessageThread(theme *ui.Theme) *MessageThread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitle(" New Conversation ")
	messages.SetTitleColor(theme.TitleColor)

	composer := tview.NewInputField().
		SetLabel(composerOffline).
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus, /N runs card action N) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	mt := &MessageThread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := strings.TrimSpace(composer.GetText())
		if text == "" {
			return
		}
		if n, ok := ParseActionShortcut(text); ok {
			if mt.onAction != nil {
				mt.onAction(n)
			}
			composer.SetText("")
			return
		}
		// Keep the draft while offline so nothing typed is lost.
		if !mt.online {
			return
		}
		if mt.onSend != nil {
			mt.onSend(text)
		}
		composer.SetText("")
	})

	return mt
}

// Name implements ui.Component.
func (mt *MessageThread) Name() string { return "Chat" }

// Hints implements ui.Component.
func (mt *MessageThread) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "i", Description: "Compose"},
		{Key: "1-9", Description: "Card action", Numeric: true},
		{Key: "n", Description: "New session"},
		{Key: "l", Description: "Sessions"},
		{Key: "c", Description: "Clear"},
		{Key: "r", Description: "Reconnect"},
	}
}

// SetOnSend sets the callback for composed text.
func (mt *MessageThread) SetOnSend(fn func(text string)) {
	mt.onSend = fn
}

// SetOnAction sets the callback for /N action shortcuts.
func (mt *MessageThread) SetOnAction(fn func(n int)) {
	mt.onAction = fn
}

// SetOnline enables or disables sending from the composer.
func (mt *MessageThread) SetOnline(online bool) {
	mt.online = online
	if online {
		mt.composer.SetLabel(composerReady)
	} else {
		mt.composer.SetLabel(composerOffline)
	}
}

// SetTitle shows the session title on the thread border.
func (mt *MessageThread) SetTitle(title string) {
	if title == "" {
		title = "New Conversation"
	}
	mt.messages.SetTitle(fmt.Sprintf(" %s ", tview.Escape(title)))
}

// Update re-renders the conversation.
func (mt *MessageThread) Update(msgs []activity.Activity, selfID string, typing bool) {
	mt.messages.Clear()
	_, _ = fmt.Fprint(mt.messages, RenderThread(mt.theme, msgs, selfID, typing))
	mt.messages.ScrollToEnd()
}

// RenderThread formats messages as tview text. Cards are laid out below
// their message with numbered actions.
func RenderThread(theme *ui.Theme, msgs []activity.Activity, selfID string, typing bool) string {
	userColor := colorHex(theme.UserColor)
	botColor := colorHex(theme.BotColor)
	cardColor := colorHex(theme.CardColor)

	var sb strings.Builder
	if len(msgs) == 0 {
		sb.WriteString("[::d]Say hello to start the conversation.[-:-:-]\n")
	}
	for _, m := range msgs {
		if !m.IsMessage() {
			continue
		}
		sender, color := m.From.Name, botColor
		if sender == "" {
			sender = m.From.ID
		}
		if m.From.ID == selfID {
			sender, color = "You", userColor
		}

		fmt.Fprintf(&sb, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]\n", color, clean(sender), formatClock(m.Time()))
		if m.Text != "" {
			sb.WriteString(clean(m.Text))
			sb.WriteString("\n")
		}
		for _, c := range card.FromActivity(m) {
			for _, line := range card.Render(c) {
				fmt.Fprintf(&sb, "  [%s]│[-] %s\n", cardColor, clean(line))
			}
		}
		sb.WriteString("\n")
	}
	if typing {
		fmt.Fprintf(&sb, "[%s::i]Assistant is typing...[-:-:-]\n", botColor)
	}
	return sb.String()
}

// ParseActionShortcut recognizes "/N" with N a positive action number.
func ParseActionShortcut(text string) (int, bool) {
	rest, ok := strings.CutPrefix(text, "/")
	if !ok || rest == "" {
		return 0, false
	}
	n := 0
	for _, r := range rest {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
		if n > 99 {
			return 0, false
		}
	}
	return n, n > 0
}

// Messages returns the messages text view (for focus management).
func (mt *MessageThread) Messages() *tview.TextView {
	return mt.messages
}

// Composer returns the composer input field (for focus management).
func (mt *MessageThread) Composer() *tview.InputField {
	return mt.composer
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("15:04")
}

func colorHex(c tcell.Color) string {
	return fmt.Sprintf("#%06x", c.Hex())
}
