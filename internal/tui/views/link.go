package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/nkaluva9/health-chatbot/internal/tui/ui"
)

// LinkView shows a URL from an open-url card action together with a QR
// code, so it can be opened on a phone.
type LinkView struct {
	*tview.TextView
	theme *ui.Theme
	url   string
}

// NewLinkView creates a new link view.
func NewLinkView(theme *ui.Theme) *LinkView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTitle(" Open Link ")
	tv.SetTitleColor(theme.TitleColor)

	return &LinkView{TextView: tv, theme: theme}
}

// Name implements ui.Component.
func (lv *LinkView) Name() string { return "Link" }

// Hints implements ui.Component.
func (lv *LinkView) Hints() []ui.MenuHint {
	return []ui.MenuHint{
		{Key: "Esc", Description: "Back"},
	}
}

// ShowURL renders url and its QR code.
func (lv *LinkView) ShowURL(url string) {
	lv.url = url
	lv.Clear()
	_, _ = fmt.Fprintf(lv, "\n[::b]%s[-:-:-]\n\n%s\n[::d]Scan to open on another device.",
		tview.Escape(url), renderQR(url))
	lv.ScrollToBeginning()
}

// URL returns the link currently shown.
func (lv *LinkView) URL() string {
	return lv.url
}

// renderQR converts a string to a compact QR code using Unicode half-block
// characters. Two bitmap rows become one terminal line.
func renderQR(content string) string {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return "(QR generation failed: " + err.Error() + ")"
	}

	bitmap := qr.Bitmap()
	var sb strings.Builder
	for y := 0; y < len(bitmap); y += 2 {
		for x := range bitmap[y] {
			top := bitmap[y][x]
			bot := y+1 < len(bitmap) && bitmap[y+1][x]
			sb.WriteRune(halfBlock(top, bot))
		}
		sb.WriteRune('\n')
	}
	return sb.String()
}

func halfBlock(top, bot bool) rune {
	switch {
	case top && bot:
		return '█'
	case top:
		return '▀'
	case bot:
		return '▄'
	default:
		return ' '
	}
}
