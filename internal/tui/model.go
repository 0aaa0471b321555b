// Package tui renders the live usage dashboard. It is a pure consumer of
// meter.State; nothing in here feeds back into metering beyond manual
// refresh triggers.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/samber/lo"

	"github.com/janekbaraniewski/usagewatch/internal/core"
	"github.com/janekbaraniewski/usagewatch/internal/history"
	"github.com/janekbaraniewski/usagewatch/internal/meter"
	"github.com/janekbaraniewski/usagewatch/internal/poller"
)

type stateMsg meter.State

type snapshotsMsg []core.Snapshot

type Model struct {
	engine *meter.Engine
	pol    *poller.Poller
	store  *history.Store

	updates chan meter.State
	state   meter.State
	snaps   []core.Snapshot
	width   int
}

func NewModel(engine *meter.Engine, pol *poller.Poller, store *history.Store) *Model {
	m := &Model{
		engine:  engine,
		pol:     pol,
		store:   store,
		updates: make(chan meter.State, 8),
		state:   engine.State(),
		width:   80,
	}
	engine.OnUpdate(func(s meter.State) {
		select {
		case m.updates <- s:
		default: // a slow terminal must never block a fetch cycle
		}
	})
	return m
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForUpdate(), m.loadSnapshots())
}

func (m *Model) waitForUpdate() tea.Cmd {
	return func() tea.Msg {
		return stateMsg(<-m.updates)
	}
}

func (m *Model) loadSnapshots() tea.Cmd {
	return func() tea.Msg {
		snaps, err := m.store.Snapshots(context.Background())
		if err != nil {
			return snapshotsMsg(nil)
		}
		return snapshotsMsg(snaps)
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.pol.TriggerRefreshSoon(context.Background(), 0, poller.SourceManual)
		}
	case tea.FocusMsg:
		// Throttling lives in the poller.
		m.pol.TriggerRefreshSoon(context.Background(), 0, poller.SourceFocus)
	case tea.WindowSizeMsg:
		m.width = msg.Width
	case stateMsg:
		m.state = meter.State(msg)
		return m, tea.Batch(m.waitForUpdate(), m.loadSnapshots())
	case snapshotsMsg:
		m.snaps = []core.Snapshot(msg)
	}
	return m, nil
}

func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("usagewatch"))
	b.WriteString("\n\n")

	if !m.state.Authenticated {
		b.WriteString(errorStyle.Render("Not signed in."))
		b.WriteString(labelStyle.Render(" Run `usagewatch signin` to connect.\n"))
		return borderStyle.Render(b.String())
	}

	rec := m.state.Record
	if rec == nil {
		b.WriteString(labelStyle.Render("Waiting for first usage fetch…\n"))
	} else {
		b.WriteString(m.renderRecord(rec))
	}

	if spark := m.renderSparkline(); spark != "" {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("last 48h"))
		b.WriteString("\n")
		b.WriteString(spark)
	}

	if m.state.LastError != "" {
		b.WriteString("\n")
		b.WriteString(truncate(errorStyle.Render("last error: "+m.state.LastError), m.width-4))
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("r refresh · q quit"))
	return borderStyle.Render(b.String())
}

func (m *Model) renderRecord(rec *core.UsageRecord) string {
	var b strings.Builder

	gaugeWidth := m.width - 20
	if gaugeWidth > 48 {
		gaugeWidth = 48
	}
	b.WriteString(RenderUsageGauge(rec.Percent(), gaugeWidth))
	b.WriteString("\n\n")

	if rec.UnitLimit > 0 {
		b.WriteString(labelStyle.Render("used     "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%.0f / %.0f units", rec.ConsumedUnits, rec.UnitLimit)))
	} else {
		b.WriteString(labelStyle.Render("used     "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%.0f units (limit unknown)", rec.ConsumedUnits)))
	}
	b.WriteString("\n")

	if rate := m.state.RatePerHour; rate != nil {
		b.WriteString(labelStyle.Render("rate     "))
		b.WriteString(valueStyle.Render(fmt.Sprintf("%.1f units/h", *rate)))
		b.WriteString("\n")
	}
	if days := m.state.ProjectedDays; days != nil {
		b.WriteString(labelStyle.Render("runs out "))
		b.WriteString(valueStyle.Render(formatDays(*days)))
		b.WriteString("\n")
	}
	if rec.PlanName != "" {
		b.WriteString(labelStyle.Render("plan     "))
		b.WriteString(valueStyle.Render(rec.PlanName))
		b.WriteString("\n")
	}
	if rec.RenewalDate != "" {
		b.WriteString(labelStyle.Render("renews   "))
		b.WriteString(valueStyle.Render(rec.RenewalDate))
		b.WriteString("\n")
	}
	if !m.state.FetchedAt.IsZero() {
		b.WriteString(labelStyle.Render("fetched  "))
		b.WriteString(labelStyle.Render(fmt.Sprintf("%s (%s)",
			m.state.FetchedAt.Format("15:04:05"), m.state.LastSource)))
		b.WriteString("\n")
	}
	return b.String()
}

func (m *Model) renderSparkline() string {
	if len(m.snaps) < 2 {
		return ""
	}
	width := m.width - 8
	if width > 60 {
		width = 60
	}
	if width < 10 {
		width = 10
	}

	sl := sparkline.New(width, 3)
	values := lo.Map(m.snaps, func(s core.Snapshot, _ int) float64 { return s.Consumed })
	sl.PushAll(values)
	sl.Draw()
	return sl.View()
}

func formatDays(days float64) string {
	if days < 1 {
		return fmt.Sprintf("~%.0f hours", days*24)
	}
	if days < 14 {
		return fmt.Sprintf("~%.1f days", days)
	}
	return fmt.Sprintf("~%.0f days", days)
}

// Run starts the dashboard and blocks until the user quits.
func Run(engine *meter.Engine, pol *poller.Poller, store *history.Store) error {
	p := tea.NewProgram(NewModel(engine, pol, store), tea.WithAltScreen(), tea.WithReportFocus())
	_, err := p.Run()
	return err
}
