// Package tui is the popup: it shows the active tab's domain, the auto-fill
// preference and the last outcome, and sends retrieval requests. It never
// waits on a request; results are read back from storage.
package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/platform"
	"github.com/jefe-johann/grab-otp/internal/tabs"
	"github.com/jefe-johann/grab-otp/internal/util"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

const pollInterval = 250 * time.Millisecond

type viewState int

const (
	viewMain   viewState = iota
	viewTabs             // picking the active tab
	viewDomain           // typing a domain by hand
)

// Messenger delivers short-lived requests to the background coordinator.
type Messenger interface {
	HandleMessage(ctx context.Context, msg model.Message) model.Response
}

// TabSource is the part of the tab host the popup reads.
type TabSource interface {
	ActiveTab() (*tabs.Tab, bool)
	List() []*tabs.Tab
	Activate(id model.TabID) error
}

// Store is the persisted state the popup reads and clears.
type Store interface {
	platform.Storage
	platform.Badge
}

type AppModel struct {
	messenger Messenger
	tabs      TabSource
	store     Store
	now       func() time.Time
	log       *zap.Logger

	// Active page
	domain string
	tab    model.TabID

	autoFill bool
	badge    *model.BadgeState
	outcome  *model.RetrievalOutcome
	waiting  bool
	request  string // id of the request being waited on
	status   string
	Err      error

	view      viewState
	tabsList  list.Model
	textInput textinput.Model
	spinner   spinner.Model

	width, height int
}

func NewAppModel(messenger Messenger, tabSource TabSource, store Store, log *zap.Logger) *AppModel {
	ti := textinput.New()
	ti.Placeholder = "example.com"
	ti.CharLimit = 253

	tl := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	tl.Title = "Tabs"
	tl.KeyMap.Quit.SetKeys("q")

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	if log == nil {
		log = zap.NewNop()
	}
	m := &AppModel{
		messenger: messenger,
		tabs:      tabSource,
		store:     store,
		now:       time.Now,
		log:       log,
		autoFill:  true,
		view:      viewMain,
		tabsList:  tl,
		textInput: ti,
		spinner:   sp,
	}
	m.readActiveTab()
	return m
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.loadStateCmd(), m.spinner.Tick)
}

func (m *AppModel) readActiveTab() {
	m.domain, m.tab = "", model.NoTab
	if t, ok := m.tabs.ActiveTab(); ok {
		m.domain = t.Domain()
		m.tab = t.ID
	}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.tabsList.SetSize(msg.Width, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateLoadedMsg:
		if msg.err != nil {
			m.log.Warn("load popup state", zap.Error(msg.err))
		}
		m.autoFill = msg.autoFill
		if msg.badge != nil {
			m.badge = msg.badge
		}
		return m, m.showOutcome(msg.outcome)

	case fetchSentMsg:
		if !msg.resp.OK {
			m.status = "Request failed: " + msg.resp.Error
			return m, clearStatusAfter(3 * time.Second)
		}
		m.waiting = true
		m.request = msg.resp.RequestID
		m.outcome = nil
		m.status = msg.note
		return m, pollCmd()

	case pollMsg:
		if !m.waiting {
			return m, nil
		}
		return m, m.checkOutcomeCmd()

	case outcomeMsg:
		if msg.err != nil {
			m.log.Warn("poll outcome", zap.Error(msg.err))
		}
		// A slot written by an earlier run is not ours; a later run overwrites it.
		if msg.outcome == nil || (m.request != "" && msg.outcome.RequestID != m.request) {
			return m, pollCmd()
		}
		return m, m.showOutcome(msg.outcome)

	case prefSavedMsg:
		if msg.err != nil {
			m.autoFill = !m.autoFill
			m.status = fmt.Sprintf("Saving preference failed: %v", msg.err)
			return m, clearStatusAfter(3 * time.Second)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.view {
	case viewTabs:
		m.tabsList, cmd = m.tabsList.Update(msg)
	case viewDomain:
		m.textInput, cmd = m.textInput.Update(msg)
	}
	return m, cmd
}

// showOutcome displays o unless it is stale, then clears the slot and the
// badge so it is shown once.
func (m *AppModel) showOutcome(o *model.RetrievalOutcome) tea.Cmd {
	if o == nil {
		return nil
	}
	if o.IsStale(m.now()) {
		m.log.Debug("ignoring stale outcome", zap.Time("completed_at", o.CompletedAt))
		return m.clearOutcomeCmd()
	}
	m.outcome = o
	m.waiting = false
	m.request = ""
	m.status = ""
	return m.clearOutcomeCmd()
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.view {
	case viewMain:
		switch key {
		case "q", "esc":
			return m, tea.Quit
		case "enter", "f":
			return m.fetch()
		case "a":
			m.autoFill = !m.autoFill
			return m, m.savePrefCmd(m.autoFill)
		case "t":
			m.tabsList.SetItems(tabsToItems(m.tabs.List(), m.tab))
			m.view = viewTabs
			return m, nil
		case "d":
			m.textInput.SetValue(m.domain)
			m.textInput.Focus()
			m.view = viewDomain
			return m, textinput.Blink
		}
		return m, nil

	case viewTabs:
		if m.tabsList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.tabsList, cmd = m.tabsList.Update(msg)
			return m, cmd
		}
		switch key {
		case "esc":
			m.view = viewMain
			return m, nil
		case "enter":
			if it, ok := m.tabsList.SelectedItem().(tabItem); ok {
				if err := m.tabs.Activate(it.tab.ID); err != nil {
					m.status = err.Error()
				}
				m.readActiveTab()
			}
			m.view = viewMain
			return m, nil
		}
		var cmd tea.Cmd
		m.tabsList, cmd = m.tabsList.Update(msg)
		return m, cmd

	case viewDomain:
		switch key {
		case "esc":
			m.textInput.Blur()
			m.view = viewMain
			return m, nil
		case "enter":
			if d := util.NormalizeDomain(m.textInput.Value()); d != "" {
				m.domain = d
				m.tab = model.NoTab
			}
			m.textInput.Blur()
			m.view = viewMain
			return m, nil
		}
		var cmd tea.Cmd
		m.textInput, cmd = m.textInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *AppModel) fetch() (tea.Model, tea.Cmd) {
	if m.waiting {
		return m, nil
	}
	if m.domain == "" {
		m.status = "No domain for the active tab. Press d to enter one."
		return m, clearStatusAfter(3 * time.Second)
	}
	m.status = "Requesting..."
	return m, m.fetchCmd(m.domain, m.tab, m.autoFill)
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}
