package main

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/google/uuid"

	"github.com/JaimeStill/lexis/internal/runs"
	"github.com/JaimeStill/lexis/internal/scheduler"
	"github.com/JaimeStill/lexis/internal/websites"
)

const timeLayout = "2006-01-02 15:04"

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#45475A"))

	statusColors = map[runs.Status]lipgloss.Color{
		runs.StatusSuccess: lipgloss.Color("#A6E3A1"),
		runs.StatusPartial: lipgloss.Color("#F9E2AF"),
		runs.StatusFailure: lipgloss.Color("#F38BA8"),
		runs.StatusRunning: lipgloss.Color("#06B6D4"),
		runs.StatusSkipped: lipgloss.Color("#6C7086"),
	}
)

func statusCell(s runs.Status) string {
	color, ok := statusColors[s]
	if !ok {
		return string(s)
	}
	return lipgloss.NewStyle().Foreground(color).Render(string(s))
}

func grid(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		String()
}

// renderRuns tabulates one run per website.
func renderRuns(list []runs.Run, names map[uuid.UUID]string) string {
	rows := make([][]string, 0, len(list))
	for _, r := range list {
		name, ok := names[r.WebsiteID]
		if !ok {
			name = r.WebsiteID.String()
		}
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format(timeLayout)
		}
		rows = append(rows, []string{
			name,
			statusCell(r.Status),
			r.Trigger,
			r.StartedAt.Local().Format(timeLayout),
			finished,
			strconv.Itoa(r.Processed()),
			strconv.Itoa(r.Skipped()),
			strconv.Itoa(r.Failed()),
		})
	}
	return grid([]string{"Website", "Status", "Trigger", "Started", "Finished", "Processed", "Skipped", "Failed"}, rows)
}

// renderStages tabulates a run's stage reports.
func renderStages(run *runs.Run) string {
	rows := make([][]string, 0, len(run.Stages))
	for _, s := range run.Stages {
		took := "-"
		if s.StartedAt != nil && s.FinishedAt != nil {
			took = s.FinishedAt.Sub(*s.StartedAt).Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			s.Name,
			statusCell(s.Status),
			strconv.Itoa(s.Processed),
			strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Failed),
			took,
			s.Error,
		})
	}
	return grid([]string{"Stage", "Status", "Processed", "Skipped", "Failed", "Took", "Error"}, rows)
}

func renderSchedule(entries []scheduler.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{e.Website, e.Schedule, e.Next.Local().Format(timeLayout)})
	}
	return grid([]string{"Website", "Schedule", "Next"}, rows)
}

func renderWebsites(list []websites.Website, fallback string) string {
	rows := make([][]string, 0, len(list))
	for _, w := range list {
		schedule := fallback + " (default)"
		if w.Schedule != nil && *w.Schedule != "" {
			schedule = *w.Schedule
		}
		rows = append(rows, []string{w.Name, w.URL, schedule, strconv.FormatBool(w.Enabled), w.ID.String()})
	}
	return grid([]string{"Name", "URL", "Schedule", "Enabled", "ID"}, rows)
}
