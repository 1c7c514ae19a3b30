package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cityrun.ai/internal/persistence/indexdb"
)

// dbCmd queries a run's SQLite index. Output is one JSON document per
// line so it can be piped into jq.
func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	runID := fs.String("run", "", "run id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit for steps")
	status := fs.String("status", "", "comma separated job statuses (jobs query)")
	_ = fs.Parse(args)

	q := "steps"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*runID) == "" {
			fmt.Fprintln(os.Stderr, "missing -run or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "runs", *runID, "index.sqlite")
	}

	r, err := indexdb.OpenReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := runQuery(ctx, r, q, *limit, *status, json.NewEncoder(os.Stdout)); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

func runQuery(ctx context.Context, r *indexdb.Reader, q string, limit int, status string, enc *json.Encoder) error {
	switch q {
	case "steps":
		if limit <= 0 {
			limit = 20
		}
		rows, err := r.RecentSteps(ctx, limit)
		if err != nil {
			return err
		}
		for _, row := range rows {
			_ = enc.Encode(row)
		}
	case "money":
		step, money, err := r.TeamMoney(ctx)
		if err != nil {
			return err
		}
		return enc.Encode(map[string]any{"step": step, "teams": money})
	case "jobs":
		var statuses []string
		for _, s := range strings.Split(status, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, s)
			}
		}
		rows, err := r.Jobs(ctx, statuses...)
		if err != nil {
			return err
		}
		for _, row := range rows {
			_ = enc.Encode(row)
		}
	case "results":
		rows, err := r.Results(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			_ = enc.Encode(row)
		}
	case "actions":
		counts, err := r.ActionResults(ctx)
		if err != nil {
			return err
		}
		keys := make([]string, 0, len(counts))
		for k := range counts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			_ = enc.Encode(map[string]any{"key": k, "count": counts[k]})
		}
	case "snapshots":
		rows, err := r.Snapshots(ctx)
		if err != nil {
			return err
		}
		for _, row := range rows {
			_ = enc.Encode(row)
		}
	default:
		return fmt.Errorf("unknown query (want steps, money, jobs, results, actions or snapshots)")
	}
	return nil
}
