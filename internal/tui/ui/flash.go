package ui

import (
	"fmt"
	"sync"
	"time"
)

type FlashLevel int

const (
	FlashInfo FlashLevel = iota
	FlashWarn
	FlashErr
)

var flashTTL = map[FlashLevel]time.Duration{
	FlashInfo: 5 * time.Second,
	FlashWarn: 8 * time.Second,
	FlashErr:  10 * time.Second,
}

// FlashMessage is one transient status-bar notice. Repeats counts how many
// times the same notice arrived while it was still showing.
type FlashMessage struct {
	Text    string
	Level   FlashLevel
	Repeats int
	Expires time.Time
}

// String is the text shown to the user.
func (m FlashMessage) String() string {
	if m.Repeats > 1 {
		return fmt.Sprintf("%s (x%d)", m.Text, m.Repeats)
	}
	return m.Text
}

// FlashModel holds the notice currently on screen. A newer notice replaces
// it unless it is the same text and level, in which case the count goes up
// and the expiry is pushed out.
type FlashModel struct {
	mu      sync.Mutex
	now     func() time.Time
	current FlashMessage
}

func NewFlashModel() *FlashModel {
	return &FlashModel{now: time.Now}
}

func (f *FlashModel) Info(msg string) { f.set(msg, FlashInfo) }
func (f *FlashModel) Warn(msg string) { f.set(msg, FlashWarn) }
func (f *FlashModel) Err(err error)   { f.set(err.Error(), FlashErr) }

func (f *FlashModel) set(msg string, level FlashLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.now()
	if f.live(now) && f.current.Text == msg && f.current.Level == level {
		f.current.Repeats++
	} else {
		f.current = FlashMessage{Text: msg, Level: level, Repeats: 1}
	}
	f.current.Expires = now.Add(flashTTL[level])
}

func (f *FlashModel) live(now time.Time) bool {
	return f.current.Text != "" && !now.After(f.current.Expires)
}

// Current returns a copy of the live notice, or nil once it has expired.
func (f *FlashModel) Current() *FlashMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live(f.now()) {
		return nil
	}
	m := f.current
	return &m
}
