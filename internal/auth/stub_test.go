package auth_test

import (
	"context"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/dmitrymomot/partsync/pkg/oauth"
)

// stubProvider is a scriptable oauth.Provider for flow tests.
type stubProvider struct {
	name         string
	authorizeURL string

	exchangeTok  *oauth2.Token
	exchangeErr  error
	refreshTok   *oauth2.Token
	refreshErr   error
	refreshDelay time.Duration

	mu            sync.Mutex
	exchangeCalls int
	refreshCalls  int
	lastCode      string
	lastRefresh   string
}

var _ oauth.Provider = (*stubProvider)(nil)

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) AuthCodeURL(state string, _ ...oauth2.AuthCodeOption) string {
	return p.authorizeURL + "?response_type=code&state=" + state
}

func (p *stubProvider) AuthorizeEndpoint() string { return p.authorizeURL }

func (p *stubProvider) Exchange(_ context.Context, code string) (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.exchangeCalls++
	p.lastCode = code
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.exchangeTok, nil
}

func (p *stubProvider) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if p.refreshDelay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.refreshDelay):
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshCalls++
	p.lastRefresh = refreshToken
	if p.refreshErr != nil {
		return nil, p.refreshErr
	}
	return p.refreshTok, nil
}

func (p *stubProvider) calls() (exchanges, refreshes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exchangeCalls, p.refreshCalls
}

// stubResolverProvider additionally resolves a tenant account ID after the
// exchange, like the Atlassian provider.
type stubResolverProvider struct {
	*stubProvider
	accountID  string
	accountErr error
}

var _ oauth.AccountResolver = (*stubResolverProvider)(nil)

func (p *stubResolverProvider) ResolveAccountID(context.Context, *oauth2.Token) (string, error) {
	if p.accountErr != nil {
		return "", p.accountErr
	}
	return p.accountID, nil
}
