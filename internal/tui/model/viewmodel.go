package model

import (
	"context"
	"sync"

	"github.com/nkaluva9/health-chatbot/internal/api"
	"github.com/nkaluva9/health-chatbot/internal/client"
	"github.com/nkaluva9/health-chatbot/internal/status"
	intsync "github.com/nkaluva9/health-chatbot/internal/sync"
)

// Backend is the subset of the daemon client the view model uses.
type Backend interface {
	State(ctx context.Context) (*api.StateView, error)
	ListSessions(ctx context.Context, includeArchived bool) ([]api.SessionView, error)
	SearchMessages(ctx context.Context, term string) ([]api.SearchHitView, error)
}

var _ Backend = (*client.Client)(nil)

// ViewModel caches daemon state and signals UI refreshes.
type ViewModel struct {
	mu sync.RWMutex

	backend  Backend
	state    *api.StateView
	sessions []api.SessionView

	refreshCh chan struct{}
}

// NewViewModel creates a new view model backed by the daemon client.
func NewViewModel(b Backend) *ViewModel {
	return &ViewModel{
		backend:   b,
		refreshCh: make(chan struct{}, 1),
	}
}

// RefreshCh returns the channel that signals UI refresh.
func (vm *ViewModel) RefreshCh() <-chan struct{} {
	return vm.refreshCh
}

func (vm *ViewModel) signalRefresh() {
	select {
	case vm.refreshCh <- struct{}{}:
	default:
	}
}

// LoadState fetches the conversation state.
func (vm *ViewModel) LoadState(ctx context.Context) error {
	st, err := vm.backend.State(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.state = st
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// LoadSessions fetches the stored session list.
func (vm *ViewModel) LoadSessions(ctx context.Context, includeArchived bool) error {
	sessions, err := vm.backend.ListSessions(ctx, includeArchived)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.sessions = sessions
	vm.mu.Unlock()
	vm.signalRefresh()
	return nil
}

// SearchMessages performs a search query.
func (vm *ViewModel) SearchMessages(ctx context.Context, query string) ([]api.SearchHitView, error) {
	return vm.backend.SearchMessages(ctx, query)
}

// State returns a snapshot of the conversation state, or nil before the
// first load.
func (vm *ViewModel) State() *api.StateView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.state
}

// Sessions returns a snapshot of the session list.
func (vm *ViewModel) Sessions() []api.SessionView {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.sessions
}

// Online reports whether the last loaded state allows sending.
func (vm *ViewModel) Online() bool {
	st := vm.State()
	return st != nil && st.Status == string(status.Online)
}

// NeedsConsent reports whether the daemon is waiting for a storage decision.
func (vm *ViewModel) NeedsConsent() bool {
	st := vm.State()
	return st != nil && st.Persistence == string(intsync.ModeConsentRequired)
}

// SessionTitle returns the title of the active session, or empty.
func (vm *ViewModel) SessionTitle() string {
	st := vm.State()
	if st == nil || st.Session == nil {
		return ""
	}
	return st.Session.Title
}
