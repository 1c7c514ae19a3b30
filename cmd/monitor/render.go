package main

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"cityrun.ai/internal/persistence/indexdb"
	"cityrun.ai/internal/sim/world"
)

type dashboard struct {
	steps   []indexdb.StepRow
	step    int
	money   map[string]int64
	jobs    []indexdb.JobRow
	actions map[string]int
	results []indexdb.ResultRow
}

var liveStatuses = []string{string(world.JobActive), string(world.JobAuctioning), string(world.JobAssigned)}

func load(ctx context.Context, r *indexdb.Reader, rows int) (dashboard, error) {
	var d dashboard
	var err error
	if d.steps, err = r.RecentSteps(ctx, rows); err != nil {
		return d, fmt.Errorf("steps: %w", err)
	}
	if d.step, d.money, err = r.TeamMoney(ctx); err != nil {
		return d, fmt.Errorf("money: %w", err)
	}
	if d.jobs, err = r.Jobs(ctx, liveStatuses...); err != nil {
		return d, fmt.Errorf("jobs: %w", err)
	}
	if d.actions, err = r.ActionResults(ctx); err != nil {
		return d, fmt.Errorf("actions: %w", err)
	}
	if d.results, err = r.Results(ctx); err != nil {
		return d, fmt.Errorf("results: %w", err)
	}
	return d, nil
}

func renderSteps(table *tview.Table, steps []indexdb.StepRow) {
	table.Clear()
	headers := []string{"Step", "ms", "Actions", "Jobs", "Digest"}
	for i, h := range headers {
		table.SetCell(0, i, tview.NewTableCell(h).SetSelectable(false).SetAttributes(tcell.AttrBold))
	}
	for i, s := range steps {
		row := i + 1
		table.SetCell(row, 0, tview.NewTableCell(fmt.Sprint(s.Step)).SetAlign(tview.AlignRight))
		table.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%.2f", s.DurationMS)).SetAlign(tview.AlignRight))
		table.SetCell(row, 2, tview.NewTableCell(fmt.Sprint(s.Actions)).SetAlign(tview.AlignRight))
		table.SetCell(row, 3, tview.NewTableCell(fmt.Sprint(s.JobChanges)).SetAlign(tview.AlignRight))
		table.SetCell(row, 4, tview.NewTableCell(shortDigest(s.Digest)))
	}
}

func renderMoney(step int, money map[string]int64, results []indexdb.ResultRow) string {
	if len(money) == 0 {
		return "No steps yet"
	}
	final := map[string]indexdb.ResultRow{}
	for _, r := range results {
		final[r.Team] = r
	}
	teams := make([]string, 0, len(money))
	for t := range money {
		teams = append(teams, t)
	}
	sort.Slice(teams, func(i, j int) bool {
		if money[teams[i]] != money[teams[j]] {
			return money[teams[i]] > money[teams[j]]
		}
		return teams[i] < teams[j]
	})
	var b strings.Builder
	fmt.Fprintf(&b, "after step %d\n", step)
	for _, t := range teams {
		fmt.Fprintf(&b, "%-8s %10d", t, money[t])
		if r, ok := final[t]; ok {
			fmt.Fprintf(&b, "  [green]rank %d[-]", r.Ranking)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderJobs(jobs []indexdb.JobRow) string {
	if len(jobs) == 0 {
		return "No live jobs"
	}
	var b strings.Builder
	for _, j := range jobs {
		fmt.Fprintf(&b, "%-10s %-8s %-9s reward=%-6d %d..%d", j.Job, j.Kind, j.Status, j.Reward, j.Begin, j.End)
		if j.Team != "" {
			b.WriteString(" team=" + j.Team)
		}
		if j.Winner != "" {
			b.WriteString(" winner=" + j.Winner)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderActions(counts map[string]int) string {
	if len(counts) == 0 {
		return "No actions"
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	var b strings.Builder
	for _, k := range keys {
		color := "white"
		if strings.HasPrefix(k, "failed") || k == "unknown_action" {
			color = "red"
		}
		fmt.Fprintf(&b, "[%s]%-28s[-] %d\n", color, k, counts[k])
	}
	return b.String()
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}
