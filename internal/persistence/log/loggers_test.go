package log

import (
	"path/filepath"
	"testing"
	"time"

	"cityrun.ai/internal/sim/city"
	"cityrun.ai/internal/sim/world"
)

func TestStepLogger_RoundTripAcrossRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewStepLogger(dir)
	hour := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	l.w.now = func() time.Time { return hour }

	for step := 0; step < 3; step++ {
		if step == 2 {
			hour = hour.Add(time.Hour)
		}
		rec := city.StepRecord{
			SimID:   "run",
			Step:    step,
			Digest:  "d" + string(rune('0'+step)),
			Actions: map[string]world.Action{"agentA1": {Type: "goto", Params: []string{"shop0"}}},
			Teams:   map[string]int64{"A": int64(100 * step)},
		}
		if err := l.WriteStep(rec); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "steps", "*.jsonl.zst"))
	if len(files) != 2 {
		t.Fatalf("expected two hourly files, got %v", files)
	}
	recs, err := ReadSteps(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("records: %d", len(recs))
	}
	for i, r := range recs {
		if r.Step != i || r.Teams["A"] != int64(100*i) {
			t.Fatalf("record %d: %+v", i, r)
		}
	}
	if a := recs[1].Actions["agentA1"]; a.Type != "goto" || len(a.Params) != 1 || a.Params[0] != "shop0" {
		t.Fatalf("action lost: %+v", a)
	}
}

func TestStepLogger_AppendsToExistingHour(t *testing.T) {
	dir := t.TempDir()
	fixed := func() time.Time { return time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC) }
	for step := 0; step < 2; step++ {
		l := NewStepLogger(dir)
		l.w.now = fixed
		if err := l.WriteStep(city.StepRecord{Step: step}); err != nil {
			t.Fatalf("write: %v", err)
		}
		_ = l.Close()
	}
	recs, err := ReadSteps(dir)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(recs) != 2 || recs[1].Step != 1 {
		t.Fatalf("appended frames should decode in order: %+v", recs)
	}
}

func TestReadSteps_EmptyDir(t *testing.T) {
	recs, err := ReadSteps(t.TempDir())
	if err != nil || len(recs) != 0 {
		t.Fatalf("got %v %v", recs, err)
	}
}
