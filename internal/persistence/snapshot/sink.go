package snapshot

import (
	"log/slog"

	"cityrun.ai/internal/logging"
	"cityrun.ai/internal/sim/city"
)

// Sink is a city.StepSink that writes a snapshot file for every step
// record carrying a world dump. It must be fed from the runner goroutine.
type Sink struct {
	dir     string
	sim     *city.Simulation
	log     *slog.Logger
	onWrite func(path string, h Header)
}

// NewSink writes into dir. onWrite, when set, is called after every
// successful write (the server uses it to index snapshots).
func NewSink(dir string, sim *city.Simulation, log *slog.Logger, onWrite func(path string, h Header)) *Sink {
	return &Sink{dir: dir, sim: sim, log: logging.OrNoop(log), onWrite: onWrite}
}

func (k *Sink) WriteStep(rec city.StepRecord) error {
	if rec.Snapshot == nil {
		return nil
	}
	snap := SnapshotV1{
		Header: Header{Version: Version, SimID: rec.SimID, Step: rec.Step, Digest: rec.Digest},
		Config: k.sim.Config(),
		Static: k.sim.StaticData(),
		State:  *rec.Snapshot,
	}
	path := PathFor(k.dir, rec.Step)
	if err := WriteSnapshot(path, snap); err != nil {
		return err
	}
	k.log.Info("snapshot written", "step", rec.Step, "path", path)
	if k.onWrite != nil {
		k.onWrite(path, snap.Header)
	}
	return nil
}
