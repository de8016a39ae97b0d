// Package retrieval turns a domain into a single OTP outcome: credential,
// search, then a short sequential scan of the newest messages.
package retrieval

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/gmail"
	"github.com/jefe-johann/grab-otp/internal/logger"
	"github.com/jefe-johann/grab-otp/internal/metrics"
	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/otp"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// DefaultScanLimit is the number of search hits opened per run.
const DefaultScanLimit = 5

// MailClient is the part of the mail API the orchestrator needs.
type MailClient interface {
	Search(ctx context.Context, tok *oauth2.Token, domain string) ([]model.MessageSummary, error)
	FetchBody(ctx context.Context, tok *oauth2.Token, id string) (model.MessageBody, error)
}

type Orchestrator struct {
	identity    gmail.Identity
	mail        MailClient
	scanLimit   int
	interactive bool
	now         func() time.Time
	log         *zap.Logger
}

type Option func(*Orchestrator)

// WithScanLimit sets how many messages are opened before giving up.
func WithScanLimit(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.scanLimit = n
		}
	}
}

// WithInteractive controls whether credential acquisition may prompt the user.
func WithInteractive(b bool) Option {
	return func(o *Orchestrator) { o.interactive = b }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.log = logger.OrNop(l) }
}

func New(identity gmail.Identity, mail MailClient, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		identity:    identity,
		mail:        mail,
		scanLimit:   DefaultScanLimit,
		interactive: true,
		now:         time.Now,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run produces exactly one outcome for domain. It never returns an error:
// failures are reported in the outcome.
func (o *Orchestrator) Run(ctx context.Context, domain string) model.RetrievalOutcome {
	start := o.now()
	out, result := o.run(ctx, domain)
	out.Domain = domain
	out.CompletedAt = o.now()
	metrics.RecordRetrieval(result, out.CompletedAt.Sub(start))
	return out
}

func (o *Orchestrator) run(ctx context.Context, domain string) (model.RetrievalOutcome, string) {
	log := o.log.With(zap.String("domain", domain))

	tok, err := o.identity.Token(ctx, o.interactive)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrAuthRequired) {
			err = apperrors.NewAuthRequired(err)
		}
		return o.fail(ctx, log, err)
	}

	hits, err := o.mail.Search(ctx, tok, domain)
	if err != nil {
		return o.fail(ctx, log, err)
	}
	if len(hits) == 0 {
		return o.fail(ctx, log, apperrors.NewNoMessagesFound(domain))
	}
	if len(hits) > o.scanLimit {
		hits = hits[:o.scanLimit]
	}

	for i, h := range hits {
		body, err := o.mail.FetchBody(ctx, tok, h.ID)
		if err != nil {
			return o.fail(ctx, log, err)
		}
		text := body.Text
		if h.Snippet != "" && !strings.Contains(text, h.Snippet) {
			text = h.Snippet + "\n" + text
		}
		if code, ok := otp.Extract(text); ok {
			log.Info("otp found",
				zap.String("message_id", h.ID),
				zap.String("from", body.From),
				zap.Int("position", i+1),
				zap.Int("code_len", len(code)),
			)
			return model.RetrievalOutcome{Success: true, Code: code, Message: "OTP found"}, "success"
		}
	}
	return o.fail(ctx, log, apperrors.NewNoCodeFound())
}

// fail turns err into a failed outcome. An expired credential is purged so
// the next run asks for a new one.
func (o *Orchestrator) fail(ctx context.Context, log *zap.Logger, err error) (model.RetrievalOutcome, string) {
	if apperrors.Is(err, apperrors.ErrAuthExpired) {
		if ierr := o.identity.Invalidate(ctx); ierr != nil {
			log.Warn("invalidate credential", zap.Error(ierr))
		}
	}
	log.Info("retrieval failed", zap.Error(err))

	msg := err.Error()
	var e *apperrors.Error
	if stderrors.As(err, &e) {
		msg = e.Message
	}
	return model.RetrievalOutcome{Success: false, Message: msg}, resultLabel(err)
}

func resultLabel(err error) string {
	var e *apperrors.Error
	if !stderrors.As(err, &e) {
		return "error"
	}
	return strings.ToLower(string(e.Code))
}
