package tui

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"

	"github.com/nkaluva9/health-chatbot/internal/api"
	"github.com/nkaluva9/health-chatbot/internal/card"
	"github.com/nkaluva9/health-chatbot/internal/client"
	"github.com/nkaluva9/health-chatbot/internal/tui/keys"
	"github.com/nkaluva9/health-chatbot/internal/tui/model"
	"github.com/nkaluva9/health-chatbot/internal/tui/ui"
	"github.com/nkaluva9/health-chatbot/internal/tui/views"
)

// Page names.
const (
	pageChat     = "chat"
	pageSessions = "sessions"
	pageSearch   = "search"
	pageHelp     = "help"
	pageLink     = "link"
	pageConsent  = "consent"
)

const (
	rpcTimeout    = 10 * time.Second
	watchBackoff  = 2 * time.Second
	headerHeight  = 7
	promptHeight  = 3
	logoWidth     = 14
	tickerPeriod  = time.Second
	consentPrompt = "Save this conversation on this device?\n\n" +
		"Saved sessions can be searched and reopened later and are deleted " +
		"after the retention period."
)

// App is the main TUI application shell.
type App struct {
	app      *tview.Application
	theme    *ui.Theme
	pages    *ui.Pages
	crumbs   *ui.Crumbs
	info     *ui.Info
	logo     *ui.Logo
	menu     *ui.Menu
	prompt   *ui.Prompt
	root     *tview.Flex
	flash    *ui.FlashModel
	registry *keys.Registry
	vm       *model.ViewModel
	grpc     *client.Client
	profile  string

	thread   *views.MessageThread
	sessions *views.SessionList
	search   *views.SearchView
	help     *views.HelpView
	link     *views.LinkView
	status   *views.StatusBar
	consent  *tview.Modal

	components   map[string]ui.Component
	consentShown bool
	promptActive bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := ui.DefaultTheme()

	a := &App{
		app:      tview.NewApplication(),
		theme:    theme,
		pages:    ui.NewPages(),
		crumbs:   ui.NewCrumbs(theme),
		info:     ui.NewInfo(theme),
		logo:     ui.NewLogo(theme),
		menu:     ui.NewMenu(theme),
		prompt:   ui.NewPrompt(theme),
		flash:    ui.NewFlashModel(),
		registry: keys.NewRegistry(),
		vm:       model.NewViewModel(c),
		grpc:     c,
		profile:  profileName,
		thread:   views.NewMessageThread(theme),
		sessions: views.NewSessionList(theme),
		search:   views.NewSearchView(theme),
		help:     views.NewHelpView(theme),
		link:     views.NewLinkView(theme),
		status:   views.NewStatusBar(theme, profileName),
		consent:  tview.NewModal(),
		ctx:      ctx,
		cancel:   cancel,
	}
	a.components = map[string]ui.Component{
		pageChat:     a.thread,
		pageSessions: a.sessions,
		pageSearch:   a.search,
		pageHelp:     a.help,
		pageLink:     a.link,
	}

	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune, Visible: true,
		Hint:    ui.MenuHint{Key: "q", Description: "Quit"},
		Handler: a.Stop,
	})
	a.registry.AddGlobal("help", &keys.Action{
		Rune: '?', Key: tcell.KeyRune, Visible: true,
		Hint:    ui.MenuHint{Key: "?", Description: "Help"},
		Handler: func() { a.show(pageHelp) },
	})
	a.registry.AddGlobal("command", &keys.Action{
		Rune: ':', Key: tcell.KeyRune, Visible: true,
		Hint:    ui.MenuHint{Key: ":", Description: "Command"},
		Handler: func() { a.activatePrompt(ui.PromptCommand) },
	})

	a.registry.AddView(pageChat, "compose", &keys.Action{
		Rune: 'i', Key: tcell.KeyRune,
		Handler: func() { a.app.SetFocus(a.thread.Composer()) },
	})
	a.registry.AddView(pageChat, "new", &keys.Action{
		Rune: 'n', Key: tcell.KeyRune,
		Handler: a.newSession,
	})
	a.registry.AddView(pageChat, "sessions", &keys.Action{
		Rune: 'l', Key: tcell.KeyRune,
		Handler: a.showSessions,
	})
	a.registry.AddView(pageChat, "clear", &keys.Action{
		Rune: 'c', Key: tcell.KeyRune,
		Handler: a.clearHistory,
	})
	a.registry.AddView(pageChat, "reconnect", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Handler: a.reconnect,
	})
	a.registry.OnDigit(pageChat, a.invokeAction)

	a.registry.AddView(pageSessions, "new", &keys.Action{
		Rune: 'n', Key: tcell.KeyRune,
		Handler: a.newSession,
	})
	a.registry.AddView(pageSessions, "archive", &keys.Action{
		Rune: 'a', Key: tcell.KeyRune,
		Handler: func() { a.archiveSession(a.sessions.SelectedSession()) },
	})
	a.registry.AddView(pageSessions, "delete", &keys.Action{
		Rune: 'x', Key: tcell.KeyRune,
		Handler: func() { a.deleteSession(a.sessions.SelectedSession()) },
	})
	a.registry.AddView(pageSessions, "filter", &keys.Action{
		Rune: '/', Key: tcell.KeyRune,
		Handler: func() { a.activatePrompt(ui.PromptFilter) },
	})
	a.registry.OnDigit(pageSessions, func(n int) {
		a.openSession(a.sessions.SessionByIndex(n))
	})
}

func (a *App) setupCallbacks() {
	a.thread.SetOnSend(a.sendText)
	a.thread.SetOnAction(a.invokeAction)

	a.sessions.SetSelectedFunc(func(row, _ int) {
		a.openSession(a.sessions.SessionByIndex(row))
	})

	a.search.SetOnQuery(a.runSearch)
	a.search.Input().SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		if ev.Key() == tcell.KeyTab {
			a.app.SetFocus(a.search.Results())
			return nil
		}
		return ev
	})
	a.search.Results().SetSelectedFunc(func(_, _ int) {
		a.openSession(a.search.SelectedSession())
	})

	a.prompt.SetOnSubmit(func(mode ui.PromptMode, text string) {
		a.deactivatePrompt()
		if mode == ui.PromptFilter {
			a.sessions.SetFilter(text)
			return
		}
		a.runCommand(ParseCommand(text))
	})
	a.prompt.SetOnCancel(a.deactivatePrompt)

	a.consent.SetText(consentPrompt).
		AddButtons([]string{"Save history", "Not now"}).
		SetDoneFunc(func(index int, _ string) {
			a.pages.HidePage(pageConsent)
			a.focusCurrent()
			if index >= 0 {
				a.setConsent(index == 0)
			}
		})

	a.pages.SetOnChange(func(stack []string) {
		names := make([]string, len(stack))
		for i, n := range stack {
			names[i] = a.components[n].Name()
		}
		a.crumbs.Update(names)
		a.updateMenu()
	})
}

func (a *App) setupLayout() {
	for name, c := range a.components {
		a.pages.AddPage(name, c.(tview.Primitive), true, false)
	}
	a.pages.AddPage(pageConsent, a.consent, false, false)
	a.pages.Reset(pageChat)

	header := tview.NewFlex().
		AddItem(a.info, 0, 1, false).
		AddItem(a.menu, 0, 2, false).
		AddItem(a.logo, logoWidth, 0, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(header, headerHeight, 0, false).
		AddItem(a.crumbs, 1, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.prompt, 0, 0, false).
		AddItem(a.status, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.app.SetFocus(a.thread.Messages())

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			a.Stop()
			return nil
		}
		if a.promptActive || a.consentVisible() {
			return event
		}

		if input, ok := a.app.GetFocus().(*tview.InputField); ok {
			if event.Key() != tcell.KeyEscape {
				return event
			}
			// Esc leaves the composer for the thread, and closes other pages.
			if input == a.thread.Composer() {
				a.app.SetFocus(a.thread.Messages())
				return nil
			}
		}

		if event.Key() == tcell.KeyEscape {
			if a.pages.Current() == pageSessions {
				a.sessions.ClearFilter()
			}
			if a.pages.Pop() != "" {
				a.focusCurrent()
			}
			return nil
		}

		if a.registry.HandleEvent(a.pages.Current(), event) {
			return nil
		}
		return event
	})
}

// Run starts the TUI application.
func (a *App) Run() error {
	go a.watchEvents()
	go a.redrawLoop()
	go a.refresh(true)
	return a.app.Run()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}

// refresh reloads state and, when asked, the session list.
func (a *App) refresh(withSessions bool) {
	ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
	defer cancel()
	if err := a.vm.LoadState(ctx); err != nil {
		a.fail(err)
		return
	}
	if withSessions {
		err := a.vm.LoadSessions(ctx, true)
		if err != nil && grpcstatus.Code(err) != codes.FailedPrecondition {
			a.fail(err)
		}
	}
}

// watchEvents refreshes the view model on every daemon event. The stream is
// reopened after a pause when it breaks.
func (a *App) watchEvents() {
	for a.ctx.Err() == nil {
		stream, err := a.grpc.WatchEvents(a.ctx)
		if err == nil {
			for {
				var evt *api.EventView
				evt, err = stream.Recv()
				if err != nil {
					break
				}
				a.refresh(evt.Kind != "engine.typing_changed" && evt.Kind != "engine.status_changed")
			}
		}
		if a.ctx.Err() != nil {
			return
		}
		a.flash.Warn("event stream lost: " + errMessage(err))
		select {
		case <-time.After(watchBackoff):
		case <-a.ctx.Done():
			return
		}
		a.refresh(true)
	}
}

// redrawLoop renders on view model changes and ticks the clock and flash.
func (a *App) redrawLoop() {
	ticker := time.NewTicker(tickerPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-a.vm.RefreshCh():
			a.app.QueueUpdateDraw(a.render)
		case <-ticker.C:
			a.app.QueueUpdateDraw(func() {
				a.status.SetFlash(a.flash.Current())
			})
		case <-a.ctx.Done():
			return
		}
	}
}

// render copies the view model into the widgets. It runs on the UI goroutine.
func (a *App) render() {
	st := a.vm.State()
	if st == nil {
		return
	}
	title := a.vm.SessionTitle()

	a.thread.Update(st.Messages, st.UserID, st.Typing)
	a.thread.SetOnline(a.vm.Online())
	a.thread.SetTitle(title)
	a.sessions.Update(a.vm.Sessions())
	a.status.SetState(st.Status, title, st.Typing)
	a.logo.SetStatus(st.Status)
	a.status.SetFlash(a.flash.Current())
	a.info.Update(&ui.InfoData{
		Profile:     st.Profile,
		User:        st.UserID,
		Status:      st.Status,
		Persistence: st.Persistence,
		Session:     title,
		Messages:    len(st.Messages),
	})

	needsConsent := a.vm.NeedsConsent()
	if needsConsent && !a.consentShown {
		a.pages.ShowPage(pageConsent)
		a.pages.SendToFront(pageConsent)
		a.app.SetFocus(a.consent)
	}
	a.consentShown = needsConsent
}

func (a *App) consentVisible() bool {
	return a.pages.HasPage(pageConsent) && a.consent.HasFocus()
}

func (a *App) updateMenu() {
	var hints []ui.MenuHint
	if c, ok := a.components[a.pages.Current()]; ok {
		hints = append(hints, c.Hints()...)
	}
	a.menu.Update(append(hints, a.registry.Hints("")...))
}

// show pushes a page and focuses it.
func (a *App) show(page string) {
	a.pages.Push(page)
	a.focusCurrent()
}

func (a *App) focusCurrent() {
	switch a.pages.Current() {
	case pageChat:
		a.app.SetFocus(a.thread.Messages())
	case pageSessions:
		a.app.SetFocus(a.sessions)
	case pageSearch:
		a.app.SetFocus(a.search.Input())
	case pageHelp:
		a.app.SetFocus(a.help)
	case pageLink:
		a.app.SetFocus(a.link)
	}
}

func (a *App) activatePrompt(mode ui.PromptMode) {
	a.promptActive = true
	a.prompt.Activate(mode)
	a.root.ResizeItem(a.prompt, promptHeight, 0)
	a.app.SetFocus(a.prompt)
}

func (a *App) deactivatePrompt() {
	a.promptActive = false
	a.root.ResizeItem(a.prompt, 0, 0)
	a.focusCurrent()
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "quit":
		a.Stop()
	case "help":
		a.show(pageHelp)
	case "new":
		a.newSession()
	case "sessions":
		a.showSessions()
	case "open":
		n, err := cmd.IntArg()
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.openSession(a.sessions.SessionByIndex(n))
	case "search":
		a.search.SetQuery(cmd.Args)
		a.show(pageSearch)
		if cmd.Args != "" {
			a.runSearch(cmd.Args)
		}
	case "consent":
		granted, err := cmd.BoolArg()
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.setConsent(granted)
	case "retention":
		days, err := cmd.IntArg()
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.setRetention(days)
	case "clear":
		a.clearHistory()
	case "reconnect":
		a.reconnect()
	case "action":
		n, err := cmd.IntArg()
		if err != nil {
			a.flash.Err(err)
			return
		}
		a.invokeAction(n)
	default:
		a.flash.Warn(fmt.Sprintf("unknown command %q (try :help)", cmd.Name))
	}
}

// call runs fn off the UI goroutine with a deadline and reports its error.
func (a *App) call(fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, rpcTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			a.fail(err)
		}
	}()
}

func (a *App) sendText(text string) {
	a.call(func(ctx context.Context) error {
		_, err := a.grpc.SendText(ctx, text)
		return err
	})
}

func (a *App) invokeAction(n int) {
	a.call(func(ctx context.Context) error {
		res, err := a.grpc.InvokeAction(ctx, "", n)
		if err != nil {
			return err
		}
		if res.Type == card.ActionOpenURL {
			a.app.QueueUpdateDraw(func() {
				a.link.ShowURL(res.URL)
				a.show(pageLink)
			})
			return nil
		}
		a.flash.Info("sent " + res.Text)
		return nil
	})
}

func (a *App) clearHistory() {
	a.call(func(ctx context.Context) error {
		return a.grpc.ClearHistory(ctx)
	})
}

func (a *App) reconnect() {
	a.call(func(ctx context.Context) error {
		if err := a.grpc.Reconnect(ctx); err != nil {
			return err
		}
		a.flash.Info("reconnecting")
		return nil
	})
}

func (a *App) newSession() {
	a.call(func(ctx context.Context) error {
		if _, err := a.grpc.NewSession(ctx); err != nil {
			return err
		}
		a.flash.Info("new session started")
		a.app.QueueUpdateDraw(func() {
			a.pages.Reset(pageChat)
			a.focusCurrent()
		})
		return nil
	})
}

func (a *App) showSessions() {
	a.show(pageSessions)
	go a.refresh(true)
}

func (a *App) openSession(id string) {
	if id == "" {
		return
	}
	a.call(func(ctx context.Context) error {
		s, err := a.grpc.OpenSession(ctx, id)
		if err != nil {
			return err
		}
		a.flash.Info(fmt.Sprintf("opened %q", s.Title))
		a.app.QueueUpdateDraw(func() {
			a.pages.Reset(pageChat)
			a.focusCurrent()
		})
		return nil
	})
}

func (a *App) archiveSession(id string) {
	if id == "" {
		return
	}
	a.call(func(ctx context.Context) error {
		if err := a.grpc.ArchiveSession(ctx, id); err != nil {
			return err
		}
		a.flash.Info("session archived")
		a.refresh(true)
		return nil
	})
}

func (a *App) deleteSession(id string) {
	if id == "" {
		return
	}
	a.call(func(ctx context.Context) error {
		if err := a.grpc.DeleteSession(ctx, id); err != nil {
			return err
		}
		a.flash.Info("session deleted")
		a.refresh(true)
		return nil
	})
}

func (a *App) setConsent(granted bool) {
	a.call(func(ctx context.Context) error {
		res, err := a.grpc.SetConsent(ctx, granted)
		if err != nil {
			return err
		}
		a.flash.Info("history " + res.Persistence)
		a.refresh(true)
		return nil
	})
}

func (a *App) setRetention(days int) {
	a.call(func(ctx context.Context) error {
		if _, err := a.grpc.UpdatePreferences(ctx, api.PreferencesView{RetentionDays: &days}); err != nil {
			return err
		}
		a.flash.Info(fmt.Sprintf("retention set to %d days", days))
		return nil
	})
}

func (a *App) runSearch(query string) {
	a.call(func(ctx context.Context) error {
		hits, err := a.vm.SearchMessages(ctx, query)
		if err != nil {
			return err
		}
		a.app.QueueUpdateDraw(func() {
			a.search.Update(hits)
			a.app.SetFocus(a.search.Results())
		})
		return nil
	})
}

// fail flashes err and schedules a redraw so it shows at once.
func (a *App) fail(err error) {
	if errors.Is(err, context.Canceled) && a.ctx.Err() != nil {
		return
	}
	a.flash.Err(errors.New(errMessage(err)))
	a.app.QueueUpdateDraw(func() {
		a.status.SetFlash(a.flash.Current())
	})
}

// errMessage strips the gRPC status prefix from err.
func errMessage(err error) string {
	if err == nil {
		return ""
	}
	if s, ok := grpcstatus.FromError(err); ok {
		return s.Message()
	}
	return err.Error()
}
