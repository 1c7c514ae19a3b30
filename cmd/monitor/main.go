package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"cityrun.ai/internal/persistence/indexdb"
)

func main() {
	dataDir := flag.String("data", "./data", "runtime data directory")
	runID := flag.String("run", "", "run id (required unless -db)")
	dbPath := flag.String("db", "", "sqlite index path (optional)")
	interval := flag.Duration("interval", time.Second, "refresh interval")
	rows := flag.Int("rows", 40, "steps shown in the step table")
	flag.Parse()

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "runs", *runID, "index.sqlite")
	}
	r, err := waitIndex(path, 30*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open index: %v\n", err)
		os.Exit(1)
	}
	defer r.Close()

	app := tview.NewApplication()
	stepsTable := tview.NewTable().
		SetBorders(false).
		SetSelectable(true, false).
		SetFixed(1, 0)
	stepsTable.SetTitle("Steps (F5 refresh, F10 quit)").SetBorder(true)

	moneyView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	moneyView.SetTitle("Teams").SetBorder(true)

	jobsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	jobsView.SetTitle("Live jobs").SetBorder(true)

	actionsView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	actionsView.SetTitle("Action results").SetBorder(true)

	statusView := tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	statusView.SetBorder(true).SetTitle("Status")
	statusView.SetText("Reading " + path)

	right := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(moneyView, 8, 0, false).
		AddItem(jobsView, 0, 2, false).
		AddItem(actionsView, 0, 1, false)
	mainLayout := tview.NewFlex().
		AddItem(stepsTable, 0, 1, true).
		AddItem(right, 0, 1, false)
	root := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(mainLayout, 0, 1, true).
		AddItem(statusView, 3, 0, false)

	refresh := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		d, err := load(ctx, r, *rows)
		app.QueueUpdateDraw(func() {
			if err != nil {
				statusView.SetText(fmt.Sprintf("[red]load error:[-] %v", err))
				return
			}
			renderSteps(stepsTable, d.steps)
			moneyView.SetText(renderMoney(d.step, d.money, d.results))
			jobsView.SetText(renderJobs(d.jobs))
			actionsView.SetText(renderActions(d.actions))
			statusView.SetText(fmt.Sprintf("%s | step %d | refreshed %s", path, d.step, time.Now().Format("15:04:05")))
		})
	}

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyF10, tcell.KeyCtrlC:
			app.Stop()
			return nil
		case tcell.KeyF5:
			go refresh()
			return nil
		}
		return event
	})

	go func() {
		ticker := time.NewTicker(*interval)
		defer ticker.Stop()
		refresh()
		for range ticker.C {
			refresh()
		}
	}()

	if err := app.SetRoot(root, true).EnableMouse(true).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "monitor failed: %v\n", err)
		os.Exit(1)
	}
}

// waitIndex retries until the server has created the index file.
func waitIndex(path string, timeout time.Duration) (*indexdb.Reader, error) {
	deadline := time.Now().Add(timeout)
	for {
		r, err := indexdb.OpenReader(path)
		if err == nil {
			return r, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(400 * time.Millisecond)
	}
}
