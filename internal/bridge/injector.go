package bridge

import (
	"context"

	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/logger"
	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/tabs"

	"go.uber.org/zap"
)

// Scripting is the host's script-injection primitive.
type Scripting interface {
	Inject(ctx context.Context, tab model.TabID, agent tabs.Agent, allFrames bool) error
}

// Registry tracks the live channel per tab.
type Registry interface {
	Connector
	Live(tab model.TabID) bool
}

// Injector installs the page agent into a tab on explicit request.
type Injector struct {
	scripting Scripting
	registry  Registry
	log       *zap.Logger
}

func NewInjector(s Scripting, r Registry, log *zap.Logger) *Injector {
	return &Injector{scripting: s, registry: r, log: logger.OrNop(log)}
}

// EnsureBridge injects the agent unless a live channel already exists for
// tab. A refusal from the host comes back as an INJECTION_ERROR. The agent
// connects on its own schedule; callers must not assume it has.
func (i *Injector) EnsureBridge(ctx context.Context, tab model.TabID) error {
	if i.registry.Live(tab) {
		i.log.Debug("bridge already connected", zap.Int("tab", int(tab)))
		return nil
	}
	if err := i.scripting.Inject(ctx, tab, NewAgent(i.registry, i.log), true); err != nil {
		if apperrors.Is(err, apperrors.ErrInjection) {
			return err
		}
		return apperrors.NewInjection(err.Error())
	}
	return nil
}
