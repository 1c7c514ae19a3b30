package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"cityrun.ai/internal/logging"
	"cityrun.ai/internal/persistence/indexdb"
	"cityrun.ai/internal/persistence/snapshot"
	"cityrun.ai/internal/sim/city"
	"cityrun.ai/internal/transport/ws"
)

// adminAPI serves the local-only operator endpoints. Work on the
// simulation goes through the runner so it happens between steps; once
// the run is over the simulation is used directly.
type adminAPI struct {
	runner  *city.Runner
	sim     *city.Simulation
	agents  *ws.Server
	snapDir string
	idx     *indexdb.SQLiteIndex
	log     *slog.Logger

	// guards direct access after the run ended
	mu sync.Mutex
}

type stateResponse struct {
	SimID     string                     `json:"sim_id"`
	Step      int                        `json:"step"`
	Steps     int                        `json:"steps"`
	Digest    string                     `json:"digest"`
	Results   map[string]city.TeamResult `json:"results"`
	Connected []string                   `json:"connected,omitempty"`
}

type commandRequest struct {
	Args []string `json:"args,omitempty"`
	Line string   `json:"line,omitempty"`
}

func (a *adminAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/v1/state", a.localOnly(a.handleState))
	mux.HandleFunc("/admin/v1/command", a.localOnly(a.handleCommand))
	mux.HandleFunc("/admin/v1/snapshot", a.localOnly(a.handleSnapshot))
}

func (a *adminAPI) localOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func (a *adminAPI) do(ctx context.Context, fn func(*city.Simulation)) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := a.runner.Do(ctx, fn)
	if errors.Is(err, city.ErrNotRunning) {
		a.mu.Lock()
		defer a.mu.Unlock()
		fn(a.sim)
		return nil
	}
	return err
}

func (a *adminAPI) handleState(rw http.ResponseWriter, r *http.Request) {
	var resp stateResponse
	err := a.do(r.Context(), func(s *city.Simulation) {
		resp = stateResponse{
			SimID:   s.ID(),
			Step:    s.CurrentStep(),
			Steps:   s.Steps(),
			Digest:  s.Digest(),
			Results: s.Result(),
		}
	})
	if err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if a.agents != nil {
		resp.Connected = a.agents.Connected()
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *adminAPI) handleCommand(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "bad json: " + err.Error()})
		return
	}
	args := req.Args
	if len(args) == 0 {
		args = strings.Fields(req.Line)
	}
	var cmdErr error
	if err := a.do(r.Context(), func(s *city.Simulation) { cmdErr = s.HandleCommand(args) }); err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if cmdErr != nil {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": cmdErr.Error()})
		return
	}
	logging.OrNoop(a.log).Info("admin command", "args", args)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true})
}

func (a *adminAPI) handleSnapshot(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var snap snapshot.SnapshotV1
	if err := a.do(r.Context(), func(s *city.Simulation) { snap = snapshot.Capture(s) }); err != nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	path := snapshot.PathFor(a.snapDir, snap.Header.Step)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "step": snap.Header.Step, "error": err.Error()})
		return
	}
	a.idx.RecordSnapshot(path, snap.Header)
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "step": snap.Header.Step, "path": path})
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
