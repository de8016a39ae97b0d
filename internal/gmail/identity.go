package gmail

import (
	"context"
	"time"

	"github.com/jefe-johann/grab-otp/internal/logger"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// Identity hands out bearer tokens for the mail API.
type Identity interface {
	// Token returns a usable token. When interactive is false and no token is
	// available without user involvement, it fails.
	Token(ctx context.Context, interactive bool) (*oauth2.Token, error)
	// Invalidate drops whatever token was last handed out.
	Invalidate(ctx context.Context) error
}

// CredentialCache persists a token between runs.
type CredentialCache interface {
	LoadCredential(ctx context.Context) (*oauth2.Token, error)
	SaveCredential(ctx context.Context, tok *oauth2.Token) error
	PurgeCredential(ctx context.Context) error
}

// CachingIdentity serves tokens from a CredentialCache while they are more
// than Margin away from expiry, and asks the wrapped Identity otherwise.
type CachingIdentity struct {
	inner  Identity
	cache  CredentialCache
	margin time.Duration
	now    func() time.Time
	log    *zap.Logger
}

// NewCachingIdentity wraps inner with cache.
func NewCachingIdentity(inner Identity, cache CredentialCache, margin time.Duration, log *zap.Logger) *CachingIdentity {
	return &CachingIdentity{
		inner:  inner,
		cache:  cache,
		margin: margin,
		now:    time.Now,
		log:    logger.OrNop(log),
	}
}

func (c *CachingIdentity) Token(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	tok, err := c.cache.LoadCredential(ctx)
	if err != nil {
		c.log.Warn("load cached credential", zap.Error(err))
	}
	if c.usable(tok) {
		return tok, nil
	}

	tok, err = c.inner.Token(ctx, interactive)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SaveCredential(ctx, tok); err != nil {
		c.log.Warn("cache credential", zap.Error(err))
	}
	return tok, nil
}

func (c *CachingIdentity) Invalidate(ctx context.Context) error {
	if err := c.cache.PurgeCredential(ctx); err != nil {
		c.log.Warn("purge cached credential", zap.Error(err))
	}
	return c.inner.Invalidate(ctx)
}

// usable is false for tokens without an expiry, since their age is unknown.
func (c *CachingIdentity) usable(tok *oauth2.Token) bool {
	if tok == nil || tok.AccessToken == "" || tok.Expiry.IsZero() {
		return false
	}
	return c.now().Add(c.margin).Before(tok.Expiry)
}
