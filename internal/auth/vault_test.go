package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/dmitrymomot/partsync/internal/auth"
	"github.com/dmitrymomot/partsync/internal/session"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestVaultIsAuthenticated(t *testing.T) {
	t.Parallel()

	v := auth.NewVault(&stubProvider{name: "onshape"})
	sess := &session.Session{}

	require.False(t, v.IsAuthenticated(sess))

	sess.SetTokens("onshape", "at", "rt", time.Now().Add(time.Hour).UnixMilli())
	require.True(t, v.IsAuthenticated(sess))
}

func TestVaultValidToken(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	t.Run("not authenticated", func(t *testing.T) {
		t.Parallel()

		v := auth.NewVault(&stubProvider{name: "onshape"})
		_, err := v.ValidToken(context.Background(), &session.Session{})
		require.ErrorIs(t, err, auth.ErrNotAuthenticated)
	})

	t.Run("fresh token returned without refresh", func(t *testing.T) {
		t.Parallel()

		p := &stubProvider{name: "onshape"}
		v := auth.NewVault(p, auth.WithVaultClock(fixedClock(now)))

		sess := &session.Session{}
		sess.SetTokens("onshape", "fresh", "rt", now.Add(time.Hour).UnixMilli())

		tok, err := v.ValidToken(context.Background(), sess)
		require.NoError(t, err)
		require.Equal(t, "fresh", tok)

		_, refreshes := p.calls()
		require.Zero(t, refreshes)
	})

	t.Run("token inside skew is refreshed once", func(t *testing.T) {
		t.Parallel()

		p := &stubProvider{
			name: "onshape",
			refreshTok: &oauth2.Token{
				AccessToken:  "new-at",
				RefreshToken: "new-rt",
				Expiry:       now.Add(time.Hour),
			},
		}
		v := auth.NewVault(p, auth.WithVaultClock(fixedClock(now)))

		sess := &session.Session{}
		sess.SetTokens("onshape", "stale", "old-rt", now.Add(time.Minute).UnixMilli())

		tok, err := v.ValidToken(context.Background(), sess)
		require.NoError(t, err)
		require.Equal(t, "new-at", tok)

		_, refreshes := p.calls()
		require.Equal(t, 1, refreshes)
		require.Equal(t, "old-rt", p.lastRefresh)

		st := sess.State("onshape")
		require.Equal(t, "new-at", st.AccessToken)
		require.Equal(t, "new-rt", st.RefreshToken)
		require.Equal(t, now.Add(time.Hour).UnixMilli(), st.ExpiresAt)
	})

	t.Run("refresh failure clears only this provider", func(t *testing.T) {
		t.Parallel()

		p := &stubProvider{name: "onshape", refreshErr: errors.New("invalid_grant")}
		v := auth.NewVault(p, auth.WithVaultClock(fixedClock(now)))

		sess := &session.Session{}
		sess.SetTokens("onshape", "stale", "dead-rt", now.UnixMilli())
		sess.SetTokens("atlassian", "other-at", "other-rt", now.Add(time.Hour).UnixMilli())

		_, err := v.ValidToken(context.Background(), sess)
		require.ErrorIs(t, err, auth.ErrRefreshFailed)

		require.Empty(t, sess.State("onshape").AccessToken)
		require.Empty(t, sess.State("onshape").RefreshToken)
		require.Equal(t, "other-at", sess.State("atlassian").AccessToken)

		_, refreshes := p.calls()
		require.Equal(t, 1, refreshes)
	})

	t.Run("already expired token is refreshed", func(t *testing.T) {
		t.Parallel()

		p := &stubProvider{
			name: "onshape",
			refreshTok: &oauth2.Token{
				AccessToken: "new-at",
				Expiry:      now.Add(time.Hour),
			},
		}
		v := auth.NewVault(p, auth.WithVaultClock(fixedClock(now)))

		sess := &session.Session{}
		sess.SetTokens("onshape", "stale", "rt", now.Add(-time.Hour).UnixMilli())

		tok, err := v.ValidToken(context.Background(), sess)
		require.NoError(t, err)
		require.Equal(t, "new-at", tok)
	})
}

func TestVaultStoreTokens(t *testing.T) {
	t.Parallel()

	t.Run("keeps stored refresh token when response omits one", func(t *testing.T) {
		t.Parallel()

		v := auth.NewVault(&stubProvider{name: "onshape"})
		sess := &session.Session{}
		sess.SetTokens("onshape", "old-at", "keep-me", time.Now().UnixMilli())

		expiry := time.Now().Add(time.Hour)
		v.StoreTokens(sess, &oauth2.Token{AccessToken: "new-at", Expiry: expiry})

		st := sess.State("onshape")
		require.Equal(t, "new-at", st.AccessToken)
		require.Equal(t, "keep-me", st.RefreshToken)
		require.Equal(t, expiry.UnixMilli(), st.ExpiresAt)
	})

	t.Run("rotates refresh token when response carries one", func(t *testing.T) {
		t.Parallel()

		v := auth.NewVault(&stubProvider{name: "onshape"})
		sess := &session.Session{}
		sess.SetTokens("onshape", "old-at", "old-rt", time.Now().UnixMilli())

		v.StoreTokens(sess, &oauth2.Token{
			AccessToken:  "new-at",
			RefreshToken: "new-rt",
			Expiry:       time.Now().Add(time.Hour),
		})

		require.Equal(t, "new-rt", sess.State("onshape").RefreshToken)
	})
}

func TestVaultClear(t *testing.T) {
	t.Parallel()

	v := auth.NewVault(&stubProvider{name: "onshape"})
	sess := &session.Session{}
	sess.SetTokens("onshape", "at", "rt", time.Now().Add(time.Hour).UnixMilli())

	v.Clear(sess)
	require.False(t, v.IsAuthenticated(sess))
}
