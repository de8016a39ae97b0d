package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/logger"
	"github.com/jefe-johann/grab-otp/internal/metrics"
	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/util"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	user = "me"

	DefaultWindow     = 30 * time.Minute
	DefaultMaxResults = 10
)

// Client searches the mailbox and fetches message bodies with a caller
// supplied bearer token. It holds no credential of its own.
type Client struct {
	endpoint   string
	transport  http.RoundTripper
	window     time.Duration
	maxResults int64
	now        func() time.Time
	log        *zap.Logger
}

type Option func(*Client)

// WithEndpoint points the client at a different API base URL.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithTransport sets the base transport under the bearer-token transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.transport = rt }
}

// WithWindow sets how far back a search looks.
func WithWindow(d time.Duration) Option {
	return func(c *Client) { c.window = d }
}

// WithMaxResults caps the number of search hits.
func WithMaxResults(n int64) Option {
	return func(c *Client) { c.maxResults = n }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = logger.OrNop(l) }
}

func withClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		window:     DefaultWindow,
		maxResults: DefaultMaxResults,
		now:        time.Now,
		log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SearchQuery builds the Gmail query for mail from domain since the given time.
func SearchQuery(domain string, since time.Time) string {
	return fmt.Sprintf("from:(%s OR @%s) after:%d", domain, domain, since.Unix())
}

// Search lists recent messages from domain, newest first, capped at the
// configured maximum.
func (c *Client) Search(ctx context.Context, tok *oauth2.Token, domain string) ([]model.MessageSummary, error) {
	svc, err := c.service(ctx, tok)
	if err != nil {
		return nil, err
	}
	q := SearchQuery(domain, c.now().Add(-c.window))
	resp, err := svc.Users.Messages.List(user).
		Q(q).
		MaxResults(c.maxResults).
		Context(ctx).
		Do()
	if err != nil {
		return nil, c.classify("search", err)
	}
	metrics.RecordAPICall("search", strconv.Itoa(resp.HTTPStatusCode))

	n := len(resp.Messages)
	if int64(n) > c.maxResults {
		n = int(c.maxResults)
	}
	out := make([]model.MessageSummary, 0, n)
	for _, m := range resp.Messages[:n] {
		out = append(out, model.MessageSummary{ID: m.Id, Snippet: m.Snippet})
	}
	c.log.Debug("search done", zap.String("domain", domain), zap.Int("hits", len(out)))
	return out, nil
}

// FetchBody fetches one message and assembles its searchable text.
func (c *Client) FetchBody(ctx context.Context, tok *oauth2.Token, id string) (model.MessageBody, error) {
	svc, err := c.service(ctx, tok)
	if err != nil {
		return model.MessageBody{}, err
	}
	msg, err := svc.Users.Messages.Get(user, id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		return model.MessageBody{}, c.classify("fetch", err)
	}
	metrics.RecordAPICall("fetch", strconv.Itoa(msg.HTTPStatusCode))

	return model.MessageBody{
		ID:   id,
		From: util.NormalizeSender(headerValue(msg.Payload, "From")),
		Text: assembleText(msg),
	}, nil
}

func (c *Client) service(ctx context.Context, tok *oauth2.Token) (*gmailv1.Service, error) {
	if tok == nil || tok.AccessToken == "" {
		return nil, apperrors.NewAuthRequired(nil)
	}
	base := c.transport
	if base == nil {
		base = http.DefaultTransport
	}
	hc := &http.Client{
		Transport: &oauth2.Transport{Source: oauth2.StaticTokenSource(tok), Base: base},
		Timeout:   30 * time.Second,
	}
	opts := []option.ClientOption{option.WithHTTPClient(hc)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := gmailv1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

// classify maps API failures onto the error taxonomy. Transport errors that
// never produced a status are returned wrapped but unclassified.
func (c *Client) classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		metrics.RecordAPICall(op, strconv.Itoa(gerr.Code))
		c.log.Warn("mail api error", zap.String("operation", op), zap.Int("status", gerr.Code))
		if gerr.Code == http.StatusUnauthorized {
			return apperrors.NewAuthExpired()
		}
		return apperrors.NewRemoteAPI(gerr.Code, err)
	}
	metrics.RecordAPICall(op, "error")
	return fmt.Errorf("%s: %w", op, err)
}
