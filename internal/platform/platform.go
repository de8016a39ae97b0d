// Package platform names the host capabilities the pipeline runs on and
// assembles one pipeline from them. Hosts differ only in the adapters they
// pass in.
package platform

import (
	"context"

	"github.com/jefe-johann/grab-otp/internal/bridge"
	"github.com/jefe-johann/grab-otp/internal/clipboard"
	"github.com/jefe-johann/grab-otp/internal/config"
	"github.com/jefe-johann/grab-otp/internal/delivery"
	"github.com/jefe-johann/grab-otp/internal/gmail"
	"github.com/jefe-johann/grab-otp/internal/logger"
	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/retrieval"
	"github.com/jefe-johann/grab-otp/internal/tabs"

	"go.uber.org/zap"
)

// Storage is local persisted state: the outcome slot and the preference.
type Storage interface {
	SaveOutcome(ctx context.Context, o model.RetrievalOutcome) error
	LoadOutcome(ctx context.Context) (model.RetrievalOutcome, bool, error)
	ClearOutcome(ctx context.Context) error
	AutoFill(ctx context.Context) (bool, error)
	SetAutoFill(ctx context.Context, enabled bool) error
}

// Badge is the toolbar indicator surface.
type Badge interface {
	SetBadge(ctx context.Context, b model.BadgeState) error
	Badge(ctx context.Context) (model.BadgeState, bool, error)
	ClearBadge(ctx context.Context) error
}

// Tabs is the page host: which tab is active and script injection.
type Tabs interface {
	bridge.Scripting
	ActiveTab() (*tabs.Tab, bool)
}

// Capabilities is everything a host supplies.
type Capabilities struct {
	Identity  gmail.Identity
	Storage   Storage
	Badge     Badge
	Tabs      Tabs
	Clipboard clipboard.Writer
}

// Runtime is the assembled background side of the pipeline.
type Runtime struct {
	Caps         Capabilities
	Orchestrator *retrieval.Orchestrator
	Coordinator  *delivery.Coordinator
	Injector     *bridge.Injector
}

// Assemble wires orchestrator, coordinator and injector over caps. mail is
// the mail API client; interactive allows the identity to prompt for consent.
func Assemble(caps Capabilities, mail retrieval.MailClient, cfg *config.Config, interactive bool, log *zap.Logger) *Runtime {
	log = logger.OrNop(log)
	orch := retrieval.New(caps.Identity, mail,
		retrieval.WithScanLimit(cfg.ScanLimit),
		retrieval.WithInteractive(interactive),
		retrieval.WithLogger(log.Named("retrieval")),
	)
	coord := delivery.New(orch, caps.Storage, caps.Badge, caps.Clipboard,
		delivery.WithLogger(log.Named("delivery")),
	)
	inj := bridge.NewInjector(caps.Tabs, coord, log.Named("bridge"))
	coord.SetInjector(inj)
	return &Runtime{Caps: caps, Orchestrator: orch, Coordinator: coord, Injector: inj}
}

// MailClient builds the Gmail client described by cfg.
func MailClient(cfg *config.Config, log *zap.Logger) *gmail.Client {
	return gmail.NewClient(
		gmail.WithEndpoint(cfg.APIEndpoint),
		gmail.WithWindow(cfg.SearchWindow),
		gmail.WithMaxResults(cfg.MaxResults),
		gmail.WithLogger(logger.OrNop(log).Named("gmail")),
	)
}
