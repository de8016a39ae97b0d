// Package tabs hosts the pages the user has open. Each tab holds a URL and a
// parsed document; agents injected into a tab run in their own goroutine and
// stop when the tab navigates or closes.
package tabs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"

	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/fillform"
	"github.com/jefe-johann/grab-otp/internal/logger"
	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/util"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// Agent is a script run in a tab's page context. It must return when ctx is
// done.
type Agent func(ctx context.Context, tab *Tab)

// restrictedSchemes cannot be scripted.
var restrictedSchemes = map[string]bool{
	"chrome":           true,
	"chrome-extension": true,
	"about":            true,
	"file":             true,
	"edge":             true,
	"view-source":      true,
}

var restrictedHosts = map[string]bool{
	"chromewebstore.google.com": true,
}

// Tab is one open page.
type Tab struct {
	ID  model.TabID
	URL string

	mu   sync.Mutex
	page *fillform.Page
}

// Domain returns the normalized host of the tab's URL.
func (t *Tab) Domain() string {
	return util.NormalizeDomain(t.URL)
}

// WithPage runs fn with exclusive access to the tab's document.
func (t *Tab) WithPage(fn func(p *fillform.Page)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.page)
}

// Render writes the tab's current document as HTML.
func (t *Tab) Render(w io.Writer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return html.Render(w, t.page.Doc.Get(0))
}

type entry struct {
	tab    *Tab
	ctx    context.Context
	cancel context.CancelFunc
	agents sync.WaitGroup
}

// Host owns the open tabs and which one is active.
type Host struct {
	mu     sync.Mutex
	tabs   map[model.TabID]*entry
	active model.TabID
	nextID model.TabID
	log    *zap.Logger
}

func NewHost(log *zap.Logger) *Host {
	return &Host{
		tabs: make(map[model.TabID]*entry),
		log:  logger.OrNop(log),
	}
}

// Open parses body as the document at rawURL, opens it in a new tab and makes
// that tab active.
func (h *Host) Open(rawURL string, body io.Reader) (model.TabID, error) {
	root, err := html.Parse(body)
	if err != nil {
		return model.NoTab, fmt.Errorf("parse %s: %w", rawURL, err)
	}
	ctx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	id := h.nextID
	h.tabs[id] = &entry{
		tab:    &Tab{ID: id, URL: rawURL, page: fillform.NewPageFromNode(root)},
		ctx:    ctx,
		cancel: cancel,
	}
	h.active = id
	h.log.Debug("tab opened", zap.Int("tab", int(id)), zap.String("url", rawURL))
	return id, nil
}

// Activate makes id the active tab.
func (h *Host) Activate(id model.TabID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tabs[id]; !ok {
		return fmt.Errorf("no tab %d", id)
	}
	h.active = id
	return nil
}

// ActiveTab returns the active tab, if any.
func (h *Host) ActiveTab() (*Tab, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.tabs[h.active]
	if !ok {
		return nil, false
	}
	return e.tab, true
}

// Tab looks a tab up by id.
func (h *Host) Tab(id model.TabID) (*Tab, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.tabs[id]
	if !ok {
		return nil, false
	}
	return e.tab, true
}

// List returns the open tabs in the order they were opened.
func (h *Host) List() []*Tab {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Tab, 0, len(h.tabs))
	for _, e := range h.tabs {
		out = append(out, e.tab)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Inject starts agent in the tab's page context. Restricted pages and unknown
// tabs are refused with an INJECTION_ERROR. A document has no frames here, so
// allFrames only affects logging.
func (h *Host) Inject(ctx context.Context, id model.TabID, agent Agent, allFrames bool) error {
	h.mu.Lock()
	e, ok := h.tabs[id]
	h.mu.Unlock()
	if !ok {
		return apperrors.NewInjection(fmt.Sprintf("no tab %d", id))
	}
	if reason := Restricted(e.tab.URL); reason != "" {
		h.log.Info("injection denied", zap.Int("tab", int(id)), zap.String("reason", reason))
		return apperrors.NewInjection(reason)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	e.agents.Add(1)
	go func() {
		defer e.agents.Done()
		agent(e.ctx, e.tab)
	}()
	h.log.Debug("agent injected", zap.Int("tab", int(id)), zap.Bool("all_frames", allFrames))
	return nil
}

// Close closes the tab and stops its agents.
func (h *Host) Close(id model.TabID) {
	h.mu.Lock()
	e, ok := h.tabs[id]
	delete(h.tabs, id)
	if h.active == id {
		h.active = model.NoTab
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	e.cancel()
	e.agents.Wait()
}

// CloseAll closes every tab.
func (h *Host) CloseAll() {
	h.mu.Lock()
	ids := make([]model.TabID, 0, len(h.tabs))
	for id := range h.tabs {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.Close(id)
	}
}

// Restricted returns why a URL cannot be scripted, or "" when it can.
func Restricted(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "unparsable URL"
	}
	scheme := strings.ToLower(u.Scheme)
	if restrictedSchemes[scheme] {
		return scheme + ": pages cannot be scripted"
	}
	host := strings.ToLower(u.Hostname())
	if restrictedHosts[host] || (host == "chrome.google.com" && strings.HasPrefix(u.Path, "/webstore")) {
		return "the extension store cannot be scripted"
	}
	return ""
}
