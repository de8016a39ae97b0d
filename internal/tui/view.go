package tui

import (
	"fmt"
	"strings"

	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/tabs"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			PaddingBottom(1)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingTop(1)

	codeStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#22c55e"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#ef4444"))
)

// View renders the current screen.
func (m *AppModel) View() string {
	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	var b strings.Builder
	switch m.view {
	case viewTabs:
		b.WriteString(m.tabsList.View())
		b.WriteString("\n")
		b.WriteString(footerStyle.Render("enter: select  esc: back"))
	case viewDomain:
		b.WriteString(headerStyle.Render("Domain"))
		b.WriteString("\n")
		b.WriteString(m.textInput.View())
		b.WriteString("\n")
		b.WriteString(footerStyle.Render("enter: use  esc: back"))
	default:
		b.WriteString(m.mainView())
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}
	return b.String()
}

func (m *AppModel) mainView() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("grabotp" + badgeSuffix(m.badge)))
	b.WriteString("\n")

	domain := m.domain
	if domain == "" {
		domain = "(none)"
	}
	fmt.Fprintf(&b, "Domain:    %s\n", domain)
	fmt.Fprintf(&b, "Auto-fill: %s\n", onOff(m.autoFill))

	switch {
	case m.waiting:
		fmt.Fprintf(&b, "\n%s Checking your inbox...\n", m.spinner.View())
	case m.outcome != nil:
		b.WriteString("\n")
		b.WriteString(renderOutcome(*m.outcome, m.autoFill))
		b.WriteString("\n")
	}

	b.WriteString(footerStyle.Render("enter: get code  a: toggle auto-fill  t: tabs  d: domain  q: quit"))
	return b.String()
}

func renderOutcome(o model.RetrievalOutcome, autoFill bool) string {
	if !o.Success {
		return failStyle.Render("! " + o.Message)
	}
	where := "copied to clipboard"
	if autoFill {
		where = "filled in and copied to clipboard"
	}
	return fmt.Sprintf("✓ %s %s", codeStyle.Render(o.Code), where)
}

func badgeSuffix(b *model.BadgeState) string {
	if b == nil || b.Text == "" {
		return ""
	}
	return " " + lipgloss.NewStyle().Foreground(lipgloss.Color(b.Color)).Render("["+b.Text+"]")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// tabItem wraps a tab for the list display.
type tabItem struct {
	tab    *tabs.Tab
	active bool
}

func (t tabItem) FilterValue() string { return t.tab.URL }
func (t tabItem) Title() string {
	marker := "  "
	if t.active {
		marker = "* "
	}
	return marker + t.tab.Domain()
}
func (t tabItem) Description() string { return t.tab.URL }

func tabsToItems(ts []*tabs.Tab, active model.TabID) []list.Item {
	items := make([]list.Item, len(ts))
	for i, t := range ts {
		items[i] = tabItem{tab: t, active: t.ID == active}
	}
	return items
}
