package session

import (
	"sync"

	"github.com/dmitrymomot/partsync/pkg/oauth"
)

// Provider identifiers, matching the pkg/oauth provider names.
const (
	ProviderOnshape   = oauth.OnshapeProviderName
	ProviderAtlassian = oauth.AtlassianProviderName
)

// Flow modes captured in pending state when an authorization flow starts.
// The callback handler uses the mode to decide between the popup relay page
// and a server-side code exchange.
const (
	ModeRedirect = "redirect"
	ModePopup    = "popup"
)

// ProviderState holds one provider's token triple, resolved account, and
// transient authorization-flow state. The JSON keys are short on purpose:
// the whole session must fit in a 4KB cookie after encryption.
type ProviderState struct {
	AccessToken  string `json:"at,omitempty"`
	RefreshToken string `json:"rt,omitempty"`
	ExpiresAt    int64  `json:"exp,omitempty"` // epoch ms; zero iff AccessToken empty
	AccountID    string `json:"acc,omitempty"` // tenant/cloud ID, if the provider needs one
	PendingState string `json:"ps,omitempty"`  // CSRF nonce, at most one in flight
	PendingMode  string `json:"pm,omitempty"`  // ModeRedirect or ModePopup
	AuthAttempts int    `json:"att,omitempty"` // bounded auto-redirect counter
}

// Session is the complete per-browser state, held client-side as an
// encrypted cookie. There is no server-side storage: every field lives
// here, and every mutation must go through the typed mutators below so
// the manager knows to re-issue the cookie. Mutators are safe for
// concurrent use: the auth gate refreshes both providers' tokens in
// parallel against one session.
type Session struct {
	Onshape          ProviderState `json:"onshape,omitzero"`
	Atlassian        ProviderState `json:"atlassian,omitzero"`
	PostAuthRedirect string        `json:"redirect,omitempty"` // resume URL once both providers are authenticated

	mu        sync.Mutex
	dirty     bool
	destroyed bool
}

// provider returns the mutable state for a known provider, nil otherwise.
// Routes validate provider names before reaching the session, so a nil
// here means a programming error; mutators treat it as a no-op.
func (s *Session) provider(name string) *ProviderState {
	switch name {
	case ProviderOnshape:
		return &s.Onshape
	case ProviderAtlassian:
		return &s.Atlassian
	}
	return nil
}

// State returns a copy of the provider's state. The zero value is returned
// for unknown providers.
func (s *Session) State(name string) ProviderState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.provider(name); st != nil {
		return *st
	}
	return ProviderState{}
}

// SetTokens writes the provider's token triple in one assignment. It never
// writes a partial triple, and it leaves AccountID and pending flow state
// alone: a mid-session refresh must not wipe the resolved account.
func (s *Session) SetTokens(name, access, refresh string, expiresAt int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.provider(name)
	if st == nil {
		return
	}
	st.AccessToken = access
	st.RefreshToken = refresh
	st.ExpiresAt = expiresAt
	s.dirty = true
}

// ClearTokens removes the provider's token triple and resolved account,
// forcing re-authentication. Pending flow state is kept: a clear during an
// in-flight flow must not orphan the flow's nonce.
func (s *Session) ClearTokens(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.provider(name)
	if st == nil {
		return
	}
	st.AccessToken = ""
	st.RefreshToken = ""
	st.ExpiresAt = 0
	st.AccountID = ""
	s.dirty = true
}

// SetAccountID stores the provider's resolved tenant identifier.
func (s *Session) SetAccountID(name, accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.provider(name)
	if st == nil {
		return
	}
	st.AccountID = accountID
	s.dirty = true
}

// SetPending stores the provider's in-flight CSRF nonce and flow mode.
func (s *Session) SetPending(name, nonce, mode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.provider(name)
	if st == nil {
		return
	}
	st.PendingState = nonce
	st.PendingMode = mode
	s.dirty = true
}

// ClearPending consumes the provider's CSRF nonce. The nonce is single-use:
// callers clear it on the matching callback exactly once, success or not.
func (s *Session) ClearPending(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.provider(name)
	if st == nil {
		return
	}
	st.PendingState = ""
	st.PendingMode = ""
	s.dirty = true
}

// IncAuthAttempts bumps the provider's auto-redirect counter and returns
// the new value.
func (s *Session) IncAuthAttempts(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.provider(name)
	if st == nil {
		return 0
	}
	st.AuthAttempts++
	s.dirty = true
	return st.AuthAttempts
}

// ClearAuthAttempts resets the provider's auto-redirect counter. Called on
// every terminal outcome, success or user-visible error.
func (s *Session) ClearAuthAttempts(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.provider(name)
	if st == nil || st.AuthAttempts == 0 {
		return
	}
	st.AuthAttempts = 0
	s.dirty = true
}

// SetPostAuthRedirect stores the URL to resume once both providers are
// authenticated.
func (s *Session) SetPostAuthRedirect(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PostAuthRedirect == url {
		return
	}
	s.PostAuthRedirect = url
	s.dirty = true
}

// RedirectTarget returns the stored post-auth resume URL.
func (s *Session) RedirectTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.PostAuthRedirect
}

// ClearPostAuthRedirect removes the stored resume URL.
func (s *Session) ClearPostAuthRedirect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.PostAuthRedirect == "" {
		return
	}
	s.PostAuthRedirect = ""
	s.dirty = true
}

// Reset clears every field in place, producing an empty session that will
// be re-issued under the same cookie. Used when a callback arrives with no
// pending state and the flow restarts from scratch.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Onshape = ProviderState{}
	s.Atlassian = ProviderState{}
	s.PostAuthRedirect = ""
	s.destroyed = false
	s.dirty = true
}

// Destroy empties the session and marks it for cookie removal. Reset
// revives a destroyed session when a flow restarts within the same
// request.
func (s *Session) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Onshape = ProviderState{}
	s.Atlassian = ProviderState{}
	s.PostAuthRedirect = ""
	s.destroyed = true
	s.dirty = true
}

// Touch marks the session dirty without changing it, forcing the manager
// to re-issue the cookie on this response. The bridge endpoint uses this
// to guarantee the popup's cookie jar holds the session before the
// cross-origin hop.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = true
}

// clearDirty marks the session as persisted.
func (s *Session) clearDirty() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = false
}

// IsDirty reports whether the session has unsaved changes.
func (s *Session) IsDirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// IsDestroyed reports whether the session is marked for cookie removal.
func (s *Session) IsDestroyed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.destroyed
}
