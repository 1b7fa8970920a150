package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/spf13/cobra"
)

var tuiOffline bool

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := buildServices(!tuiOffline)
		if err != nil {
			return err
		}
		if _, err := svc.load(cmd.Context(), tuiOffline); err != nil {
			return err
		}
		snap, err := svc.dashboard.Current()
		if err != nil {
			return err
		}
		if os.Getenv("FAROL_SKIP_TUI_RUN") == "true" {
			return nil
		}

		refresh := func() tea.Msg {
			if tuiOffline {
				return refreshedMsg{err: fmt.Errorf("refresh is disabled in offline mode")}
			}
			snap, err := svc.dashboard.Refresh(context.Background())
			return refreshedMsg{snap: snap, err: err}
		}

		p := tea.NewProgram(newTUIModel(snap, refresh))
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("tui run failed: %w", err)
		}
		return nil
	},
}

func init() {
	tuiCmd.Flags().BoolVar(&tuiOffline, "offline", false, "Use the last saved snapshot instead of calling Trello")
	RootCmd.AddCommand(tuiCmd)
}

// Styles
var baseStyle = lipgloss.NewStyle().
	BorderStyle(lipgloss.NormalBorder()).
	BorderForeground(lipgloss.Color("240"))

type refreshedMsg struct {
	snap *application.Snapshot
	err  error
}

type tuiModel struct {
	table    table.Model
	snap     *application.Snapshot
	refresh  tea.Cmd
	loading  bool
	agedOnly bool
	err      error
}

func newTUIModel(snap *application.Snapshot, refresh tea.Cmd) tuiModel {
	columns := []table.Column{
		{Title: "Card", Width: 36},
		{Title: "List", Width: 14},
		{Title: "Assignees", Width: 20},
		{Title: "Lead", Width: 5},
		{Title: "Aging", Width: 6},
		{Title: "Bypass", Width: 6},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	t.SetStyles(s)

	m := tuiModel{table: t, snap: snap, refresh: refresh}
	m.table.SetRows(m.rows())
	return m
}

func (m tuiModel) rows() []table.Row {
	if m.snap == nil {
		return nil
	}
	rows := make([]table.Row, 0, len(m.snap.Items))
	for _, item := range m.snap.Items {
		if m.agedOnly && item.AgingDays < m.snap.Threshold() {
			continue
		}
		rows = append(rows, table.Row(itemRow(item)))
	}
	return rows
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			if m.loading || m.refresh == nil {
				return m, nil
			}
			m.loading = true
			return m, m.refresh
		case "a":
			m.agedOnly = !m.agedOnly
			m.table.SetRows(m.rows())
			return m, nil
		}
	case refreshedMsg:
		m.loading = false
		m.err = msg.err
		if msg.err == nil && msg.snap != nil {
			m.snap = msg.snap
			m.table.SetRows(m.rows())
		}
		return m, nil
	}
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m tuiModel) View() string {
	if m.snap == nil {
		return "No data loaded.\nPress q to quit."
	}
	metrics := m.snap.Metrics

	header := titleStyle.Render(fmt.Sprintf("Farol · %d cards", metrics.TotalItems))
	summary := fmt.Sprintf("Health %s   Doing %d   Waiting %d   Aged %d (>= %dd)   Bypass %d%%   Lead %s",
		healthStyle(metrics.HealthScore).Render(fmt.Sprint(metrics.HealthScore)),
		len(metrics.DoingNow), len(metrics.WaitingNow), len(metrics.AgedNow), metrics.AgingThresholdDays,
		metrics.BypassRate, optionalInt(metrics.LeadAverage))

	status := goodStyle.Render("Updated " + m.snap.GeneratedAt.Format("15:04:05"))
	switch {
	case m.loading:
		status = warnStyle.Render("Refreshing...")
	case m.err != nil:
		status = badStyle.Render("Refresh failed: " + m.err.Error())
	}

	filter := "all cards"
	if m.agedOnly {
		filter = "aged cards only"
	}

	return baseStyle.Render(
		lipgloss.JoinVertical(lipgloss.Left,
			header,
			summary,
			"",
			m.table.View(),
			status+"  ·  showing "+filter,
			"[q] Quit  [r] Refresh  [a] Toggle aged  [Up/Down] Navigate",
		),
	) + "\n"
}
