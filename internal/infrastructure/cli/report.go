package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/felixgeelhaar/farol/pkg/application"
	"github.com/felixgeelhaar/farol/pkg/domain/analytics"
	"github.com/spf13/cobra"
)

var (
	reportJSON    bool
	reportOffline bool
	reportAging   int
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the board metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportAging < 0 {
			return fmt.Errorf("--aging must not be negative")
		}
		svc, err := buildServices(!reportOffline)
		if err != nil {
			return err
		}
		if _, err := svc.load(cmd.Context(), reportOffline); err != nil {
			return err
		}
		snap, err := svc.dashboard.View(reportAging)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if reportJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(snap)
		}
		renderReport(out, snap)
		return nil
	},
}

func init() {
	reportCmd.Flags().BoolVar(&reportJSON, "json", false, "Print the full snapshot as JSON")
	reportCmd.Flags().BoolVar(&reportOffline, "offline", false, "Use the last saved snapshot instead of calling Trello")
	reportCmd.Flags().IntVar(&reportAging, "aging", 0, "Aging threshold in days (default from aging_days)")
	RootCmd.AddCommand(reportCmd)
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#1D4ED8")).
			PaddingLeft(1).
			PaddingRight(1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Width(18)
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func healthStyle(score int) lipgloss.Style {
	switch {
	case score >= 80:
		return goodStyle
	case score >= 50:
		return warnStyle
	default:
		return badStyle
	}
}

func renderReport(w io.Writer, snap *application.Snapshot) {
	m := snap.Metrics
	line := func(label string, value any) {
		_, _ = fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label), value)
	}

	_, _ = fmt.Fprintln(w, titleStyle.Render("Farol"))
	_, _ = fmt.Fprintf(w, "%d cards, fetched %s\n\n", m.TotalItems, snap.FetchedAt.Format("2006-01-02 15:04"))

	line("Health score", healthStyle(m.HealthScore).Render(fmt.Sprint(m.HealthScore)))
	line("Doing now", len(m.DoingNow))
	line("Waiting", len(m.WaitingNow))
	line(fmt.Sprintf("Aged >= %dd", m.AgingThresholdDays), len(m.AgedNow))
	line("Done today", len(m.DoneToday))
	line("Done this week", len(m.DoneThisWeek))
	line("Bypass rate", fmt.Sprintf("%d%%", m.BypassRate))
	line("Avg lead (days)", optionalInt(m.LeadAverage))
	if m.Unmapped > 0 {
		line("Unmapped lists", warnStyle.Render(fmt.Sprint(m.Unmapped)))
	}

	_, _ = fmt.Fprintln(w, "\nThis week")
	_, _ = fmt.Fprintln(w, weekChart(m.DailyDone))

	if len(m.LeadByAssignee) > 0 {
		_, _ = fmt.Fprintln(w, "\nLead time by assignee")
		for _, a := range m.LeadByAssignee {
			_, _ = fmt.Fprintf(w, "  %-20s %3dd  (%d)\n", a.Name, a.MeanLeadDays, a.Items)
		}
	}

	if len(m.TopAged) > 0 {
		_, _ = fmt.Fprintln(w, "\nOldest without moving")
		for _, ref := range m.TopAged {
			style := lipgloss.NewStyle()
			if ref.AgingDays >= m.AgingThresholdDays {
				style = badStyle
			}
			_, _ = fmt.Fprintf(w, "  %s  %s (%s)\n", style.Render(fmt.Sprintf("%3dd", ref.AgingDays)), ref.Name, ref.Stage)
		}
	}
}

func weekChart(daily [7]int) string {
	top := 0
	for _, n := range daily {
		top = max(top, n)
	}
	var b strings.Builder
	for i, n := range daily {
		bar := 0
		if top > 0 {
			bar = n * 20 / top
		}
		fmt.Fprintf(&b, "  %s %s %d\n", weekdays[i], strings.Repeat("█", bar), n)
	}
	return strings.TrimRight(b.String(), "\n")
}

var weekdays = [7]string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

func optionalInt(p *int) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprint(*p)
}

// itemRow formats a card for tabular output.
func itemRow(item analytics.WorkItem) []string {
	bypass := ""
	if item.Movement.Bypass {
		bypass = "yes"
	}
	return []string{
		item.Name,
		item.Stage,
		strings.Join(item.Assignees, ", "),
		optionalInt(item.LeadDays),
		fmt.Sprint(item.AgingDays),
		bypass,
	}
}
