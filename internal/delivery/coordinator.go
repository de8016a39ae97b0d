// Package delivery owns retrieval runs once they are accepted: it runs them
// off the caller's path, forwards codes to a page agent and/or the clipboard,
// and always records the outcome and badge.
package delivery

import (
	"context"
	"sync"
	"time"

	"github.com/jefe-johann/grab-otp/internal/bridge"
	"github.com/jefe-johann/grab-otp/internal/clipboard"
	"github.com/jefe-johann/grab-otp/internal/logger"
	"github.com/jefe-johann/grab-otp/internal/metrics"
	"github.com/jefe-johann/grab-otp/internal/model"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const sendTimeout = 2 * time.Second

// State of one request.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateDelivered State = "delivered"
	StateFailed    State = "failed"
)

var (
	BadgeSuccess = model.BadgeState{Text: "✓", Color: "#22c55e"}
	BadgeFailure = model.BadgeState{Text: "!", Color: "#ef4444"}
)

// Retriever produces one outcome per domain.
type Retriever interface {
	Run(ctx context.Context, domain string) model.RetrievalOutcome
}

// OutcomeStore holds the single-slot outcome record.
type OutcomeStore interface {
	SaveOutcome(ctx context.Context, o model.RetrievalOutcome) error
}

// BadgeSetter updates the toolbar indicator.
type BadgeSetter interface {
	SetBadge(ctx context.Context, b model.BadgeState) error
}

// BridgeInjector installs a page agent on request.
type BridgeInjector interface {
	EnsureBridge(ctx context.Context, tab model.TabID) error
}

// Ack is returned as soon as a request is accepted. It never carries the result.
type Ack struct {
	Accepted  bool
	RequestID string
}

type Coordinator struct {
	retriever Retriever
	outcomes  OutcomeStore
	badge     BadgeSetter
	clip      clipboard.Writer
	injector  BridgeInjector
	now       func() time.Time
	newID     func() string
	log       *zap.Logger

	mu      sync.Mutex
	states  map[string]State
	bridges map[model.TabID]*bridge.Conn
	wg      sync.WaitGroup
}

type Option func(*Coordinator)

func WithLogger(l *zap.Logger) Option {
	return func(c *Coordinator) { c.log = logger.OrNop(l) }
}

// WithInjector sets the injector used for bridge-injection-request.
func WithInjector(i BridgeInjector) Option {
	return func(c *Coordinator) { c.injector = i }
}

func withClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func New(r Retriever, outcomes OutcomeStore, badge BadgeSetter, clip clipboard.Writer, opts ...Option) *Coordinator {
	c := &Coordinator{
		retriever: r,
		outcomes:  outcomes,
		badge:     badge,
		clip:      clip,
		now:       time.Now,
		newID:     uuid.NewString,
		log:       zap.NewNop(),
		states:    make(map[string]State),
		bridges:   make(map[model.TabID]*bridge.Conn),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetInjector sets the injector after construction, for injectors that need
// the coordinator as their registry.
func (c *Coordinator) SetInjector(i BridgeInjector) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.injector = i
}

// HandleRequest accepts req and returns at once. The run continues in the
// background and holds no reference to the caller.
func (c *Coordinator) HandleRequest(req model.RetrievalRequest) Ack {
	if req.ID == "" {
		req.ID = c.newID()
	}
	if req.RequestedAt.IsZero() {
		req.RequestedAt = c.now()
	}
	c.setState(req.ID, StateRunning)
	c.wg.Add(1)
	go c.run(req)
	return Ack{Accepted: true, RequestID: req.ID}
}

// State reports where a request is. Unknown ids are idle.
func (c *Coordinator) State(requestID string) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[requestID]; ok {
		return s
	}
	return StateIdle
}

// Wait blocks until every accepted run has finished.
func (c *Coordinator) Wait() { c.wg.Wait() }

func (c *Coordinator) setState(id string, s State) {
	c.mu.Lock()
	c.states[id] = s
	c.mu.Unlock()
}

func (c *Coordinator) run(req model.RetrievalRequest) {
	defer c.wg.Done()
	ctx := context.Background()
	log := logger.WithRequest(c.log, req.ID, req.Domain)
	log.Info("retrieval started", zap.Bool("auto_fill", req.WantAutoFill), zap.Int("tab", int(req.OriginTab)))

	out := c.retriever.Run(ctx, req.Domain)
	out.RequestID = req.ID
	if out.CompletedAt.IsZero() {
		out.CompletedAt = c.now()
	}

	if out.Success {
		c.deliver(ctx, log, req, out.Code)
	} else {
		metrics.RecordDelivery("none", "skipped")
	}

	// Recording happens whatever delivery did.
	if err := c.outcomes.SaveOutcome(ctx, out); err != nil {
		log.Error("save outcome", zap.Error(err))
	}
	if err := c.badge.SetBadge(ctx, badgeFor(out)); err != nil {
		log.Error("set badge", zap.Error(err))
	}

	state := StateFailed
	if out.Success {
		state = StateDelivered
	}
	c.setState(req.ID, state)
	log.Info("retrieval finished", zap.String("state", string(state)), zap.String("message", out.Message))
}

func (c *Coordinator) deliver(ctx context.Context, log *zap.Logger, req model.RetrievalRequest, code string) {
	if req.WantAutoFill {
		c.sendFill(ctx, log, req.OriginTab, code)
	}
	if err := c.clip.WriteText(code); err != nil {
		log.Warn("clipboard write failed", zap.Error(err))
		metrics.RecordDelivery("clipboard", "error")
		return
	}
	metrics.RecordDelivery("clipboard", "ok")
}

func (c *Coordinator) sendFill(ctx context.Context, log *zap.Logger, tab model.TabID, code string) {
	conn, ok := c.liveBridge(tab)
	if !ok {
		log.Info("no live bridge, clipboard only", zap.Int("tab", int(tab)))
		return
	}
	sctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	if err := conn.Send(sctx, model.Envelope{Action: model.ActionFillCommand, Code: code}); err != nil {
		log.Warn("fill-command not sent", zap.Int("tab", int(tab)), zap.Error(err))
		metrics.RecordDelivery("bridge", "error")
		return
	}
	metrics.RecordDelivery("bridge", "ok")
}

func badgeFor(o model.RetrievalOutcome) model.BadgeState {
	b := BadgeFailure
	if o.Success {
		b = BadgeSuccess
	}
	b.Title = o.Message
	return b
}
