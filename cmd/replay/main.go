package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	persistlog "cityrun.ai/internal/persistence/log"
	"cityrun.ai/internal/persistence/snapshot"
	"cityrun.ai/internal/sim/city"
	"cityrun.ai/internal/sim/tuning"
)

var errDigest = errors.New("digest mismatch")

func main() {
	var (
		runDir   = flag.String("run", "", "run directory containing steps/ and snapshots/")
		snapPath = flag.String("snapshot", "", "snapshot to take the config from (default: latest in <run>/snapshots)")
		toStep   = flag.Int("to_step", -1, "stop after this step (inclusive, optional)")
	)
	flag.Parse()
	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	if *runDir == "" {
		fmt.Fprintln(os.Stderr, "missing -run")
		os.Exit(2)
	}

	path := *snapPath
	if path == "" {
		p, err := snapshot.Latest(filepath.Join(*runDir, "snapshots"))
		if err != nil {
			logger.Fatalf("find snapshot: %v", err)
		}
		if p == "" {
			logger.Fatalf("no snapshot in %s; pass -snapshot", *runDir)
		}
		path = p
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		logger.Fatalf("read snapshot: %v", err)
	}
	fmt.Printf("snapshot v%d sim=%s step=%d seed=%d entities=%d jobs=%d\n",
		snap.Header.Version, snap.Header.SimID, snap.Header.Step, snap.Config.Seed,
		len(snap.State.Entities), len(snap.State.Jobs))

	recs, err := persistlog.ReadSteps(*runDir)
	if err != nil {
		logger.Fatalf("read steps: %v", err)
	}
	if len(recs) == 0 {
		logger.Fatalf("no step records in %s", *runDir)
	}

	cfg := snap.Config
	cfg.SimID = snap.Header.SimID
	checked, err := verify(cfg, recs, *toStep, map[int]string{snap.Header.Step: snap.Header.Digest})
	if err != nil {
		logger.Fatalf("replay: %v (after %d steps)", err, checked)
	}
	fmt.Printf("replay ok: checked=%d steps\n", checked)
}

// verify rebuilds the run from cfg, applying the logged actions of each
// record, and compares the state digest after every step. extra holds
// digests from other sources (snapshots) that must match as well.
func verify(cfg tuning.Config, recs []city.StepRecord, toStep int, extra map[int]string) (int, error) {
	sim := city.New(city.Options{})
	if _, err := sim.Init(cfg.Steps, cfg); err != nil {
		return 0, fmt.Errorf("init: %w", err)
	}
	checked := 0
	for i, rec := range recs {
		if rec.Step != i {
			return checked, fmt.Errorf("step log has a gap: record %d is step %d", i, rec.Step)
		}
		if toStep >= 0 && rec.Step > toStep {
			break
		}
		sim.PreStep(rec.Step)
		sim.Step(rec.Step, rec.Actions)
		got := sim.Digest()
		if got != rec.Digest {
			return checked, fmt.Errorf("step %d: %w: log=%s replay=%s", rec.Step, errDigest, rec.Digest, got)
		}
		if want, ok := extra[rec.Step]; ok && want != got {
			return checked, fmt.Errorf("step %d: %w: snapshot=%s replay=%s", rec.Step, errDigest, want, got)
		}
		checked++
	}
	return checked, nil
}
