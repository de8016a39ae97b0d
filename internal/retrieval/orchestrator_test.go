package retrieval

import (
	"context"
	"errors"
	"fmt"
	"testing"

	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeIdentity struct {
	err         error
	invalidated int
	interactive []bool
}

func (f *fakeIdentity) Token(ctx context.Context, interactive bool) (*oauth2.Token, error) {
	f.interactive = append(f.interactive, interactive)
	if f.err != nil {
		return nil, f.err
	}
	return &oauth2.Token{AccessToken: "tok"}, nil
}

func (f *fakeIdentity) Invalidate(ctx context.Context) error {
	f.invalidated++
	return nil
}

type fakeMail struct {
	hits      []model.MessageSummary
	searchErr error
	bodies    map[string]string
	fetchErr  map[string]error
	fetched   []string
	domains   []string
}

func (f *fakeMail) Search(ctx context.Context, tok *oauth2.Token, domain string) ([]model.MessageSummary, error) {
	f.domains = append(f.domains, domain)
	return f.hits, f.searchErr
}

func (f *fakeMail) FetchBody(ctx context.Context, tok *oauth2.Token, id string) (model.MessageBody, error) {
	f.fetched = append(f.fetched, id)
	if err := f.fetchErr[id]; err != nil {
		return model.MessageBody{}, err
	}
	return model.MessageBody{ID: id, Text: f.bodies[id]}, nil
}

func summaries(n int) []model.MessageSummary {
	out := make([]model.MessageSummary, n)
	for i := range out {
		out[i] = model.MessageSummary{ID: fmt.Sprintf("m%d", i+1)}
	}
	return out
}

func TestRun_Success(t *testing.T) {
	mail := &fakeMail{
		hits:   summaries(1),
		bodies: map[string]string{"m1": "Your verification code: 482913"},
	}
	o := New(&fakeIdentity{}, mail)

	out := o.Run(context.Background(), "example.com")
	assert.True(t, out.Success)
	assert.Equal(t, "482913", out.Code)
	assert.Equal(t, "example.com", out.Domain)
	assert.False(t, out.CompletedAt.IsZero())
	assert.Equal(t, []string{"example.com"}, mail.domains)
}

func TestRun_ShortCircuitsOnFirstHit(t *testing.T) {
	mail := &fakeMail{
		hits: summaries(5),
		bodies: map[string]string{
			"m1": "Welcome aboard",
			"m2": "Your receipt",
			"m3": "Use 7310 to sign in",
			"m4": "Code 999999",
			"m5": "Code 888888",
		},
	}
	out := New(&fakeIdentity{}, mail).Run(context.Background(), "example.com")

	require.True(t, out.Success)
	assert.Equal(t, "7310", out.Code)
	assert.Equal(t, []string{"m1", "m2", "m3"}, mail.fetched)
}

func TestRun_NeverScansMoreThanFive(t *testing.T) {
	mail := &fakeMail{hits: summaries(10), bodies: map[string]string{"m6": "code 123456"}}
	out := New(&fakeIdentity{}, mail).Run(context.Background(), "example.com")

	assert.False(t, out.Success)
	assert.Equal(t, "no OTP found in recent emails", out.Message)
	assert.Len(t, mail.fetched, 5)
}

func TestRun_ScanLimitOption(t *testing.T) {
	mail := &fakeMail{hits: summaries(4)}
	New(&fakeIdentity{}, mail, WithScanLimit(2)).Run(context.Background(), "example.com")
	assert.Equal(t, []string{"m1", "m2"}, mail.fetched)
}

func TestRun_NoMessages(t *testing.T) {
	mail := &fakeMail{}
	out := New(&fakeIdentity{}, mail).Run(context.Background(), "example.com")

	assert.False(t, out.Success)
	assert.Equal(t, "no recent emails found for example.com", out.Message)
	assert.Empty(t, mail.fetched)
}

func TestRun_SnippetIsSearched(t *testing.T) {
	mail := &fakeMail{hits: []model.MessageSummary{{ID: "m1", Snippet: "Your code is 55 12 or 4455"}}}
	out := New(&fakeIdentity{}, mail).Run(context.Background(), "example.com")
	assert.True(t, out.Success)
	assert.Equal(t, "4455", out.Code)
}

func TestRun_AuthRequired(t *testing.T) {
	id := &fakeIdentity{err: errors.New("user closed the consent window")}
	mail := &fakeMail{}
	out := New(id, mail).Run(context.Background(), "example.com")

	assert.False(t, out.Success)
	assert.Equal(t, "authentication required", out.Message)
	assert.Empty(t, mail.domains, "no search without a credential")
}

func TestRun_InteractiveFlag(t *testing.T) {
	id := &fakeIdentity{}
	New(id, &fakeMail{}, WithInteractive(false)).Run(context.Background(), "example.com")
	assert.Equal(t, []bool{false}, id.interactive)
}

func TestRun_AuthExpiredDuringSearchPurgesCredential(t *testing.T) {
	id := &fakeIdentity{}
	mail := &fakeMail{searchErr: apperrors.NewAuthExpired()}
	out := New(id, mail).Run(context.Background(), "example.com")

	assert.False(t, out.Success)
	assert.Equal(t, "authentication expired, please try again", out.Message)
	assert.Equal(t, 1, id.invalidated)
}

func TestRun_AuthExpiredDuringFetch(t *testing.T) {
	id := &fakeIdentity{}
	mail := &fakeMail{
		hits:     summaries(3),
		fetchErr: map[string]error{"m2": apperrors.NewAuthExpired()},
	}
	out := New(id, mail).Run(context.Background(), "example.com")

	assert.False(t, out.Success)
	assert.Equal(t, 1, id.invalidated)
	assert.Equal(t, []string{"m1", "m2"}, mail.fetched, "error aborts the scan")
}

func TestRun_RemoteErrorAbortsScan(t *testing.T) {
	id := &fakeIdentity{}
	mail := &fakeMail{
		hits:     summaries(3),
		bodies:   map[string]string{"m3": "code 123456"},
		fetchErr: map[string]error{"m1": apperrors.NewRemoteAPI(500, nil)},
	}
	out := New(id, mail).Run(context.Background(), "example.com")

	assert.False(t, out.Success)
	assert.Equal(t, "mail API returned status 500", out.Message)
	assert.Equal(t, []string{"m1"}, mail.fetched)
	assert.Zero(t, id.invalidated, "only a 401 purges the credential")
}

func TestRun_TransportError(t *testing.T) {
	mail := &fakeMail{searchErr: fmt.Errorf("search: %w", errors.New("dial tcp: connection refused"))}
	out := New(&fakeIdentity{}, mail).Run(context.Background(), "example.com")

	assert.False(t, out.Success)
	assert.Equal(t, "search: dial tcp: connection refused", out.Message)
}
