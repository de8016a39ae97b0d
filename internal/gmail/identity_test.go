package gmail

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeIdentity struct {
	tok         *oauth2.Token
	err         error
	calls       int
	invalidated int
}

func (f *fakeIdentity) Token(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	f.calls++
	return f.tok, f.err
}

func (f *fakeIdentity) Invalidate(ctx context.Context) error {
	f.invalidated++
	return nil
}

type memCache struct {
	tok    *oauth2.Token
	purged int
}

func (m *memCache) LoadCredential(ctx context.Context) (*oauth2.Token, error) { return m.tok, nil }
func (m *memCache) SaveCredential(ctx context.Context, tok *oauth2.Token) error {
	m.tok = tok
	return nil
}
func (m *memCache) PurgeCredential(ctx context.Context) error {
	m.tok = nil
	m.purged++
	return nil
}

func TestCachingIdentity_ServesFreshCachedToken(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	inner := &fakeIdentity{}
	cache := &memCache{tok: &oauth2.Token{AccessToken: "cached", Expiry: now.Add(10 * time.Minute)}}
	id := NewCachingIdentity(inner, cache, time.Minute, nil)
	id.now = func() time.Time { return now }

	tok, err := id.Token(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "cached", tok.AccessToken)
	assert.Zero(t, inner.calls)
}

func TestCachingIdentity_RefreshesInsideSafetyMargin(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	inner := &fakeIdentity{tok: &oauth2.Token{AccessToken: "fresh", Expiry: now.Add(time.Hour)}}
	cache := &memCache{tok: &oauth2.Token{AccessToken: "cached", Expiry: now.Add(30 * time.Second)}}
	id := NewCachingIdentity(inner, cache, time.Minute, nil)
	id.now = func() time.Time { return now }

	tok, err := id.Token(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
	assert.Equal(t, 1, inner.calls)
	assert.Equal(t, "fresh", cache.tok.AccessToken, "new token is cached")
}

func TestCachingIdentity_IgnoresTokenWithoutExpiry(t *testing.T) {
	inner := &fakeIdentity{tok: &oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}}
	cache := &memCache{tok: &oauth2.Token{AccessToken: "forever"}}
	id := NewCachingIdentity(inner, cache, time.Minute, nil)

	tok, err := id.Token(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "fresh", tok.AccessToken)
}

func TestCachingIdentity_InnerFailure(t *testing.T) {
	inner := &fakeIdentity{err: errors.New("denied")}
	id := NewCachingIdentity(inner, &memCache{}, time.Minute, nil)

	_, err := id.Token(context.Background(), true)
	assert.EqualError(t, err, "denied")
}

func TestCachingIdentity_Invalidate(t *testing.T) {
	inner := &fakeIdentity{}
	cache := &memCache{tok: &oauth2.Token{AccessToken: "cached"}}
	id := NewCachingIdentity(inner, cache, time.Minute, nil)

	require.NoError(t, id.Invalidate(context.Background()))
	assert.Nil(t, cache.tok)
	assert.Equal(t, 1, cache.purged)
	assert.Equal(t, 1, inner.invalidated)
}
