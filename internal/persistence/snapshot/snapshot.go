package snapshot

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"cityrun.ai/internal/sim/city"
	"cityrun.ai/internal/sim/tuning"
)

const Version = 1

var ErrVersion = errors.New("unsupported snapshot version")

type Header struct {
	Version int    `json:"version"`
	SimID   string `json:"sim_id"`
	Step    int    `json:"step"`
	Digest  string `json:"digest"`
}

// SnapshotV1 holds everything needed to inspect a run at one step and to
// replay it from the start: the config carries the seed.
type SnapshotV1 struct {
	Header Header          `json:"header"`
	Config tuning.Config   `json:"config"`
	Static city.StaticData `json:"static"`
	State  city.Snapshot   `json:"state"`
}

// Capture builds a snapshot of the simulation's current step.
func Capture(s *city.Simulation) SnapshotV1 {
	return SnapshotV1{
		Header: Header{Version: Version, SimID: s.ID(), Step: s.CurrentStep(), Digest: s.Digest()},
		Config: s.Config(),
		Static: s.StaticData(),
		State:  s.Snapshot(),
	}
}

// PathFor is the file name of the snapshot of step under dir.
func PathFor(dir string, step int) string {
	return filepath.Join(dir, fmt.Sprintf("%06d.snap.zst", step))
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := json.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("json encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadHeader decodes only the first line of a snapshot.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, err
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	// header line is repeated in the body
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, err
	}
	if err := json.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("json decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrVersion, snap.Header.Version)
	}
	return snap, nil
}

// Latest returns the path of the highest-step snapshot in dir, or "" when
// there is none.
func Latest(dir string) (string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.snap.zst"))
	if err != nil || len(files) == 0 {
		return "", err
	}
	latest := files[0]
	for _, f := range files[1:] {
		if f > latest {
			latest = f
		}
	}
	return latest, nil
}
