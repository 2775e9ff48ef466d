package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nkaluva9/health-chatbot/internal/api"
	"github.com/nkaluva9/health-chatbot/internal/card"
	"github.com/nkaluva9/health-chatbot/internal/client"
	"github.com/nkaluva9/health-chatbot/internal/profile"
)

func main() {
	profileFlag := flag.String("profile", "", "profile name (overrides config default)")
	jsonFlag := flag.Bool("json", false, "output in JSON format")
	flag.Parse()

	profileName := profile.Resolve(*profileFlag)
	if err := profile.ValidateName(profileName); err != nil {
		fatal(err)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	c, err := client.New(profile.SocketPath(profileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: cannot connect to daemon for profile %q: %v\n", profileName, err)
		os.Exit(1)
	}
	defer func() { _ = c.Close() }()

	if args[0] == "watch" {
		cmdWatch(c, *jsonFlag)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out := output{json: *jsonFlag}
	switch args[0] {
	case "status":
		cmdStatus(ctx, c, out)
	case "send":
		if len(args) < 2 {
			usageError("chatctl send <text>")
		}
		sent, err := c.SendText(ctx, strings.Join(args[1:], " "))
		check(err)
		out.print(sent, func() { fmt.Printf("Sent %s\n", sent.ID) })
	case "clear":
		check(c.ClearHistory(ctx))
		fmt.Println("History cleared.")
	case "reconnect":
		check(c.Reconnect(ctx))
		fmt.Println("Reconnecting.")
	case "action":
		cmdAction(ctx, c, args[1:], out)
	case "sessions":
		cmdSessions(ctx, c, args[1:], out)
	case "search":
		if len(args) < 2 {
			usageError("chatctl search <term>")
		}
		hits, err := c.SearchMessages(ctx, strings.Join(args[1:], " "))
		check(err)
		out.print(hits, func() {
			if len(hits) == 0 {
				fmt.Println("No messages found.")
			}
			for _, h := range hits {
				fmt.Printf("%-24s %-4s %s\n", h.SessionTitle, h.MessageType, oneLine(h.Content))
			}
		})
	case "prefs":
		cmdPrefs(ctx, c, args[1:], out)
	case "consent":
		if len(args) < 2 || (args[1] != "yes" && args[1] != "no") {
			usageError("chatctl consent <yes|no>")
		}
		resp, err := c.SetConsent(ctx, args[1] == "yes")
		check(err)
		out.print(resp, func() { fmt.Printf("Persistence: %s\n", resp.Persistence) })
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "usage: chatctl [--profile <name>] [--json] <command>")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  status                     Show connection and conversation state")
	fmt.Fprintln(os.Stderr, "  send <text>                Send a message")
	fmt.Fprintln(os.Stderr, "  clear                      Clear the visible history")
	fmt.Fprintln(os.Stderr, "  reconnect                  Replace the gateway connection")
	fmt.Fprintln(os.Stderr, "  action <n> [message-id]    Invoke the n-th action of the latest card")
	fmt.Fprintln(os.Stderr, "  sessions list [--all]      List stored sessions")
	fmt.Fprintln(os.Stderr, "  sessions search <term>     Search session titles")
	fmt.Fprintln(os.Stderr, "  sessions new               Start a new session")
	fmt.Fprintln(os.Stderr, "  sessions open <id>         Load a stored session")
	fmt.Fprintln(os.Stderr, "  sessions archive <id>      Archive a session")
	fmt.Fprintln(os.Stderr, "  sessions delete <id>       Delete a session")
	fmt.Fprintln(os.Stderr, "  search <term>              Search stored messages")
	fmt.Fprintln(os.Stderr, "  prefs get                  Show preferences")
	fmt.Fprintln(os.Stderr, "  prefs set <key> <value>    Set retention_days, max_sessions or auto_archive")
	fmt.Fprintln(os.Stderr, "  consent <yes|no>           Grant or decline history storage")
	fmt.Fprintln(os.Stderr, "  watch                      Stream daemon events")
}

type output struct {
	json bool
}

// print writes v as JSON in --json mode and calls text otherwise.
func (o output) print(v any, text func()) {
	if o.json {
		outputJSON(v)
		return
	}
	text()
}

func cmdStatus(ctx context.Context, c *client.Client, out output) {
	st, err := c.State(ctx)
	check(err)
	out.print(st, func() {
		fmt.Printf("Profile:      %s\n", st.Profile)
		fmt.Printf("User:         %s\n", st.UserID)
		fmt.Printf("Status:       %s\n", st.Status)
		if st.ConversationID != "" {
			fmt.Printf("Conversation: %s\n", st.ConversationID)
		}
		fmt.Printf("Messages:     %d\n", len(st.Messages))
		fmt.Printf("Persistence:  %s\n", st.Persistence)
		if st.Session != nil {
			fmt.Printf("Session:      %s (%s)\n", st.Session.Title, st.Session.ID)
		}
		if st.Typing {
			fmt.Println("Bot is typing...")
		}
	})
}

func cmdAction(ctx context.Context, c *client.Client, args []string, out output) {
	if len(args) < 1 {
		usageError("chatctl action <n> [message-id]")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil {
		usageError("chatctl action <n> [message-id]")
	}
	var messageID string
	if len(args) > 1 {
		messageID = args[1]
	}
	res, err := c.InvokeAction(ctx, messageID, n)
	check(err)
	out.print(res, func() {
		if res.Type == card.ActionOpenURL {
			fmt.Printf("Open %s\n", res.URL)
			return
		}
		fmt.Printf("Sent %q\n", res.Text)
	})
}

func cmdSessions(ctx context.Context, c *client.Client, args []string, out output) {
	if len(args) == 0 {
		usageError("chatctl sessions <list|search|new|open|archive|delete>")
	}
	needID := func() string {
		if len(args) < 2 {
			usageError("chatctl sessions " + args[0] + " <id>")
		}
		return args[1]
	}

	switch args[0] {
	case "list":
		all := len(args) > 1 && args[1] == "--all"
		sessions, err := c.ListSessions(ctx, all)
		check(err)
		out.print(sessions, func() { printSessions(sessions) })
	case "search":
		if len(args) < 2 {
			usageError("chatctl sessions search <term>")
		}
		sessions, err := c.SearchSessions(ctx, strings.Join(args[1:], " "))
		check(err)
		out.print(sessions, func() { printSessions(sessions) })
	case "new":
		s, err := c.NewSession(ctx)
		check(err)
		out.print(s, func() { fmt.Printf("Started session %s\n", s.ID) })
	case "open":
		s, err := c.OpenSession(ctx, needID())
		check(err)
		out.print(s, func() { fmt.Printf("Opened %q (%d messages)\n", s.Title, s.MessageCount) })
	case "archive":
		check(c.ArchiveSession(ctx, needID()))
		fmt.Println("Session archived.")
	case "delete":
		check(c.DeleteSession(ctx, needID()))
		fmt.Println("Session deleted.")
	default:
		fmt.Fprintf(os.Stderr, "unknown sessions subcommand: %s\n", args[0])
		os.Exit(1)
	}
}

func printSessions(sessions []api.SessionView) {
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}
	for _, s := range sessions {
		suffix := ""
		if s.IsArchived {
			suffix = " [archived]"
		}
		last := time.UnixMilli(s.LastMessageAtMs)
		fmt.Printf("%-36s %-40s %3d msgs  %s%s\n", s.ID, s.Title, s.MessageCount, humanize.Time(last), suffix)
	}
}

func cmdPrefs(ctx context.Context, c *client.Client, args []string, out output) {
	if len(args) == 0 || args[0] == "get" {
		p, err := c.Preferences(ctx)
		check(err)
		out.print(p, func() { printPrefs(p) })
		return
	}
	if args[0] != "set" || len(args) != 3 {
		usageError("chatctl prefs set <retention_days|max_sessions|auto_archive> <value>")
	}

	var u api.PreferencesView
	switch args[1] {
	case "retention_days", "max_sessions":
		n, err := strconv.Atoi(args[2])
		if err != nil {
			fatal(fmt.Errorf("%s must be a number: %w", args[1], err))
		}
		if args[1] == "retention_days" {
			u.RetentionDays = &n
		} else {
			u.MaxSessions = &n
		}
	case "auto_archive":
		b, err := strconv.ParseBool(args[2])
		if err != nil {
			fatal(fmt.Errorf("auto_archive must be true or false: %w", err))
		}
		u.AutoArchive = &b
	default:
		fatal(fmt.Errorf("unknown preference %q", args[1]))
	}
	p, err := c.UpdatePreferences(ctx, u)
	check(err)
	out.print(p, func() { printPrefs(p) })
}

func printPrefs(p *api.PreferencesView) {
	if p.RetentionDays != nil {
		fmt.Printf("Retention:    %d days\n", *p.RetentionDays)
	}
	if p.MaxSessions != nil {
		fmt.Printf("Max sessions: %d\n", *p.MaxSessions)
	}
	if p.AutoArchive != nil {
		fmt.Printf("Auto archive: %v\n", *p.AutoArchive)
	}
	if p.DataSharingConsent != nil {
		fmt.Printf("Consent:      %v\n", *p.DataSharingConsent)
	}
}

func cmdWatch(c *client.Client, jsonOut bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	stream, err := c.WatchEvents(ctx)
	check(err)
	for {
		evt, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			fatal(err)
		}
		if jsonOut {
			outputJSON(evt)
			continue
		}
		at := time.UnixMilli(evt.OccurredAtUnixMs).Format("15:04:05.000")
		fmt.Printf("%s %-28s %s\n", at, evt.Kind, oneLine(string(evt.Payload)))
	}
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) > 100 {
		s = string([]rune(s)[:100]) + "..."
	}
	return s
}

func check(err error) {
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

func usageError(usage string) {
	fmt.Fprintln(os.Stderr, "usage: "+usage)
	os.Exit(1)
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
	}
}
