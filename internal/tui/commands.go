package tui

import (
	"context"
	"time"

	"github.com/jefe-johann/grab-otp/internal/model"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

func (m *AppModel) loadStateCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var msg stateLoadedMsg
		msg.autoFill, msg.err = m.store.AutoFill(ctx)
		if b, ok, err := m.store.Badge(ctx); err == nil && ok {
			msg.badge = &b
		}
		if o, ok, err := m.store.LoadOutcome(ctx); err == nil && ok {
			msg.outcome = &o
		}
		return msg
	}
}

// fetchCmd asks for a bridge first when auto-fill is on, then sends the
// fetch-request. Neither call waits for the retrieval itself.
func (m *AppModel) fetchCmd(domain string, tab model.TabID, autoFill bool) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var note string
		if autoFill && tab != model.NoTab {
			resp := m.messenger.HandleMessage(ctx, model.Message{Action: model.ActionInjectionBridge, Tab: tab})
			if !resp.OK {
				m.log.Info("bridge unavailable", zap.String("reason", resp.Error))
				note = "This page cannot be filled; the code will be copied."
			}
		}
		resp := m.messenger.HandleMessage(ctx, model.Message{
			Action:   model.ActionFetchRequest,
			Domain:   domain,
			AutoFill: autoFill,
			Tab:      tab,
		})
		return fetchSentMsg{resp: resp, note: note}
	}
}

func pollCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

func (m *AppModel) checkOutcomeCmd() tea.Cmd {
	return func() tea.Msg {
		o, ok, err := m.store.LoadOutcome(context.Background())
		if err != nil || !ok {
			return outcomeMsg{err: err}
		}
		return outcomeMsg{outcome: &o}
	}
}

func (m *AppModel) clearOutcomeCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if err := m.store.ClearOutcome(ctx); err != nil {
			m.log.Warn("clear outcome", zap.Error(err))
		}
		if err := m.store.ClearBadge(ctx); err != nil {
			m.log.Warn("clear badge", zap.Error(err))
		}
		return nil
	}
}

func (m *AppModel) savePrefCmd(enabled bool) tea.Cmd {
	return func() tea.Msg {
		return prefSavedMsg{err: m.store.SetAutoFill(context.Background(), enabled)}
	}
}
