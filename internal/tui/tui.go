// Package tui provides a Bubble Tea preview of the items a sync would write.
package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/fakeyudi/awcal/internal/pipeline"
	"github.com/fakeyudi/awcal/internal/reconcile"
)

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	timeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("178"))
	calStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))

	createStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82")).Bold(true)
	updateStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	deleteStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tabs ─────────────────

type tabID int

const (
	tabSummary tabID = iota
	tabItems
	tabChanges
	tabCount
)

var tabNames = [tabCount]string{"Summary", "Items", "Changes"}

// ── Model ────────────────────

// Model is the root Bubble Tea model for the preview.
type Model struct {
	res       *pipeline.Result
	items     []reconcile.SyncItem
	actions   map[reconcile.Key]string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	sortAsc   bool
	// Items tab: cursor position and expanded set
	cursor   int
	expanded map[int]bool
}

// New creates a preview model for a planned run.
func New(res *pipeline.Result) Model {
	m := Model{
		res:      res,
		sortAsc:  true,
		expanded: make(map[int]bool),
		actions:  make(map[reconcile.Key]string),
	}
	for _, it := range res.Plan.Creates {
		m.actions[it.Key()] = "create"
	}
	for _, u := range res.Plan.Updates {
		m.actions[u.Item.Key()] = "update"
	}
	m.items = append([]reconcile.SyncItem(nil), res.Items...)
	m.sortItems()
	return m
}

func (m *Model) sortItems() {
	sort.SliceStable(m.items, func(i, j int) bool {
		if m.sortAsc {
			return m.items[i].Start.Before(m.items[j].Start)
		}
		return m.items[i].Start.After(m.items[j].Start)
	})
}

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
		case "1", "2", "3":
			m.activeTab = tabID(msg.String()[0] - '1')
		case "s":
			if m.activeTab == tabItems {
				m.sortAsc = !m.sortAsc
				m.sortItems()
				m.cursor = 0
				m.expanded = make(map[int]bool)
				m.rebuildItemsViewport()
				m.viewports[tabItems].GotoTop()
			}
		case "up", "k":
			if m.activeTab == tabItems && m.cursor > 0 {
				m.cursor--
				m.rebuildItemsViewport()
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabItems && m.cursor < len(m.items)-1 {
				m.cursor++
				m.rebuildItemsViewport()
				return m, nil
			}
		case "enter", " ":
			if m.activeTab == tabItems && len(m.items) > 0 {
				if m.items[m.cursor].Description != "" {
					if m.expanded[m.cursor] {
						delete(m.expanded, m.cursor)
					} else {
						m.expanded[m.cursor] = true
					}
					m.rebuildItemsViewport()
				}
				return m, nil
			}
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render(fmt.Sprintf("  awcal  %s preview", m.res.Mode))

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  ↑/↓ scroll  1-3 jump  q quit"
	if m.activeTab == tabItems {
		dir := "oldest first"
		if !m.sortAsc {
			dir = "newest first"
		}
		hint += "  s sort (" + dir + ")  enter details"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(hint + strings.Repeat(" ", pad) + pct)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Viewport management ─────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) rebuildItemsViewport() {
	m.viewports[tabItems].SetContent(m.renderTab(tabItems))
}

// ── Tab renderers ─────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabSummary:
		return m.renderSummary()
	case tabItems:
		return m.renderItems()
	case tabChanges:
		return m.renderChanges()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) renderSummary() string {
	r := m.res
	var sb strings.Builder
	sb.WriteString(heading("Window"))

	row := func(label, value string) {
		sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-14s", label)) + "  " + value + "\n")
	}
	row("Mode:", string(r.Mode))
	row("From:", r.WindowStart.Local().Format("2006-01-02 15:04 MST"))
	row("To:", r.WindowEnd.Local().Format("2006-01-02 15:04 MST"))
	row("Records:", fmt.Sprintf("%d", r.Records))
	row("Items:", fmt.Sprintf("%d", len(r.Items)))

	sb.WriteString(heading("Planned changes"))
	row("Create:", fmt.Sprintf("%d", len(r.Plan.Creates)))
	row("Update:", fmt.Sprintf("%d", len(r.Plan.Updates)))
	row("Delete:", fmt.Sprintf("%d", len(r.Plan.Deletes)))
	row("Unchanged:", fmt.Sprintf("%d", len(r.Plan.Unchanged)))

	sb.WriteString(heading("Calendars"))
	for _, c := range perCalendar(r.Items) {
		row(c.name, fmt.Sprintf("%d items, %s", c.count, formatDuration(c.total)))
	}
	return sb.String()
}

func (m *Model) renderItems() string {
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Items (%d)", len(m.items))))
	if len(m.items) == 0 {
		sb.WriteString(dimStyle.Render("  (nothing to sync in this window)") + "\n")
		return sb.String()
	}
	for i, it := range m.items {
		toggle := dimStyle.Render("  ▶ ")
		if m.expanded[i] {
			toggle = dimStyle.Render("  ▼ ")
		}
		if it.Description == "" {
			toggle = "    "
		}
		ts := timeStyle.Render(it.Start.Local().Format("01-02 15:04") + "–" + it.End.Local().Format("15:04"))
		row := fmt.Sprintf("%s%s %s  %s  %s", toggle, actionBadge(m.actions[it.Key()]), ts, it.Title, calStyle.Render(it.Destination))
		if i == m.cursor {
			row = selectedRowStyle.Width(m.width - 2).Render(row)
		}
		sb.WriteString(row + "\n")
		if m.expanded[i] {
			sb.WriteString(dimStyle.Render(indent(it.Description, "        ")) + "\n")
		}
	}
	return sb.String()
}

func (m *Model) renderChanges() string {
	p := m.res.Plan
	var sb strings.Builder
	sb.WriteString(heading(fmt.Sprintf("Changes (%d)", len(p.Creates)+len(p.Updates)+len(p.Deletes))))
	if p.Empty() {
		sb.WriteString(dimStyle.Render("  (calendar already up to date)") + "\n")
		return sb.String()
	}
	line := func(badge string, start, end time.Time, title, cal string) {
		ts := timeStyle.Render(start.Local().Format("01-02 15:04") + "–" + end.Local().Format("15:04"))
		sb.WriteString(fmt.Sprintf("  %s %s  %s  %s\n", badge, ts, title, calStyle.Render(cal)))
	}
	for _, it := range p.Creates {
		line(actionBadge("create"), it.Start, it.End, it.Title, it.Destination)
	}
	for _, u := range p.Updates {
		line(actionBadge("update"), u.Entry.Start, u.Item.End, u.Entry.Title, u.Entry.Destination)
	}
	for _, e := range p.Deletes {
		line(actionBadge("delete"), e.Start, e.End, e.Title, e.Destination)
	}
	return sb.String()
}

// ── Helpers ─────────────

func actionBadge(action string) string {
	switch action {
	case "create":
		return createStyle.Render("+")
	case "update":
		return updateStyle.Render("~")
	case "delete":
		return deleteStyle.Render("-")
	}
	return dimStyle.Render("=")
}

type calendarTotal struct {
	name  string
	count int
	total time.Duration
}

func perCalendar(items []reconcile.SyncItem) []calendarTotal {
	idx := map[string]int{}
	var out []calendarTotal
	for _, it := range items {
		i, ok := idx[it.Destination]
		if !ok {
			i = len(out)
			idx[it.Destination] = i
			out = append(out, calendarTotal{name: it.Destination})
		}
		out[i].count++
		out[i].total += it.End.Sub(it.Start)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].total > out[j].total })
	return out
}

func formatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// Run starts the preview TUI.
func Run(res *pipeline.Result) error {
	p := tea.NewProgram(New(res), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
