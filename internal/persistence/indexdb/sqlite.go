package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"cityrun.ai/internal/persistence/snapshot"
	"cityrun.ai/internal/sim/city"
)

// SQLiteIndex is a secondary, queryable index of a run. Writes are queued
// and applied by one goroutine; the step log stays the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropStep     atomic.Uint64
	dropSnapshot atomic.Uint64
	dropResult   atomic.Uint64
	writeErrors  atomic.Uint64
}

type Stats struct {
	DropStepTotal     uint64
	DropSnapshotTotal uint64
	DropResultTotal   uint64
	WriteErrorTotal   uint64
	QueueDepth        int
	QueueCapacity     int
}

type reqKind int

const (
	reqStep reqKind = iota + 1
	reqSnapshot
	reqResult
)

type req struct {
	kind reqKind

	step     city.StepRecord
	snapshot snapshotRow
	result   resultRow
}

type snapshotRow struct {
	Step   int
	Path   string
	Digest string
}

type resultRow struct {
	SimID   string
	Step    int
	Results map[string]city.TeamResult
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{db: db, ch: make(chan req, queue)}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			step INTEGER PRIMARY KEY,
			sim_id TEXT NOT NULL,
			digest TEXT NOT NULL,
			duration_ms REAL NOT NULL,
			actions INTEGER NOT NULL,
			job_changes INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			step INTEGER NOT NULL,
			agent TEXT NOT NULL,
			type TEXT NOT NULL,
			params TEXT NOT NULL,
			result TEXT NOT NULL,
			PRIMARY KEY (step, agent)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_agent_step ON actions(agent, step);`,
		`CREATE TABLE IF NOT EXISTS team_money (
			step INTEGER NOT NULL,
			team TEXT NOT NULL,
			money INTEGER NOT NULL,
			PRIMARY KEY (step, team)
		);`,
		`CREATE TABLE IF NOT EXISTS jobs (
			job TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			status TEXT NOT NULL,
			reward INTEGER NOT NULL,
			begin_step INTEGER NOT NULL,
			end_step INTEGER NOT NULL,
			winner TEXT,
			team TEXT,
			updated_step INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			step INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			digest TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS results (
			sim_id TEXT NOT NULL,
			team TEXT NOT NULL,
			ranking INTEGER NOT NULL,
			score INTEGER NOT NULL,
			final_step INTEGER NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (sim_id, team)
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close drains the queue, commits and closes the database.
func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		DropStepTotal:     s.dropStep.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
		DropResultTotal:   s.dropResult.Load(),
		WriteErrorTotal:   s.writeErrors.Load(),
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
	}
}

// WriteStep queues a step record; it drops the record when the writer
// falls behind.
func (s *SQLiteIndex) WriteStep(rec city.StepRecord) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqStep, step: rec}:
	default:
		s.dropStep.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, h snapshot.Header) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: snapshotRow{Step: h.Step, Path: path, Digest: h.Digest}}:
	default:
		s.dropSnapshot.Add(1)
	}
}

func (s *SQLiteIndex) WriteResult(simID string, step int, results map[string]city.TeamResult) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqResult, result: resultRow{SimID: simID, Step: step, Results: results}}:
	default:
		s.dropResult.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO steps(step,sim_id,digest,duration_ms,actions,job_changes) VALUES(?,?,?,?,?,?)`)
	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(step,agent,type,params,result) VALUES(?,?,?,?,?)`)
	insertMoney, _ := s.db.Prepare(`INSERT OR REPLACE INTO team_money(step,team,money) VALUES(?,?,?)`)
	upsertJob, _ := s.db.Prepare(`INSERT OR REPLACE INTO jobs(job,kind,status,reward,begin_step,end_step,winner,team,updated_step) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(step,path,digest) VALUES(?,?,?)`)
	insertResult, _ := s.db.Prepare(`INSERT OR REPLACE INTO results(sim_id,team,ranking,score,final_step,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertStep, insertAction, insertMoney, upsertJob, insertSnapshot, insertResult} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			s.writeErrors.Add(1)
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			s.writeErrors.Add(1)
		}
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		s.writeErrors.Add(1)
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) bool {
		if st == nil || tx == nil {
			return false
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return false
		}
		opCount++
		return true
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqStep:
			rec := r.step
			if !exec(insertStep, rec.Step, rec.SimID, rec.Digest, rec.DurationMS, len(rec.Actions), len(rec.Jobs)) {
				continue
			}
			for _, a := range rec.Results {
				params, _ := json.Marshal(a.Params)
				if !exec(insertAction, rec.Step, a.Agent, a.Type, string(params), a.Result) {
					break
				}
			}
			for team, money := range rec.Teams {
				if !exec(insertMoney, rec.Step, team, money) {
					break
				}
			}
			for _, j := range rec.Jobs {
				if !exec(upsertJob, j.Job, string(j.Kind), string(j.Status), j.Reward, j.Begin, j.End, j.Winner, j.Team, rec.Step) {
					break
				}
			}

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, sn.Step, sn.Path, sn.Digest)

		case reqResult:
			now := time.Now().UTC().Format(time.RFC3339Nano)
			for team, res := range r.result.Results {
				if !exec(insertResult, r.result.SimID, team, res.Ranking, res.Score, r.result.Step, now) {
					break
				}
			}
			// final results are rare and worth persisting at once
			commit()
			continue
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}

// Reader runs the read-only queries used by the operator tools.
type Reader struct {
	db *sql.DB
}

func OpenReader(path string) (*Reader, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	dsn := "file:" + filepath.ToSlash(path) + "?mode=ro&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Reader{db: db}, nil
}

func (r *Reader) Close() error { return r.db.Close() }

type StepRow struct {
	Step       int     `json:"step"`
	SimID      string  `json:"sim_id"`
	Digest     string  `json:"digest"`
	DurationMS float64 `json:"duration_ms"`
	Actions    int     `json:"actions"`
	JobChanges int     `json:"job_changes"`
}

// RecentSteps returns the last n steps, newest first.
func (r *Reader) RecentSteps(ctx context.Context, n int) ([]StepRow, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT step,sim_id,digest,duration_ms,actions,job_changes FROM steps ORDER BY step DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StepRow
	for rows.Next() {
		var s StepRow
		if err := rows.Scan(&s.Step, &s.SimID, &s.Digest, &s.DurationMS, &s.Actions, &s.JobChanges); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// TeamMoney returns every team's money at the latest indexed step.
func (r *Reader) TeamMoney(ctx context.Context) (int, map[string]int64, error) {
	var step sql.NullInt64
	if err := r.db.QueryRowContext(ctx, `SELECT MAX(step) FROM team_money`).Scan(&step); err != nil {
		return 0, nil, err
	}
	out := map[string]int64{}
	if !step.Valid {
		return -1, out, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT team,money FROM team_money WHERE step=?`, step.Int64)
	if err != nil {
		return 0, nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var team string
		var money int64
		if err := rows.Scan(&team, &money); err != nil {
			return 0, nil, err
		}
		out[team] = money
	}
	return int(step.Int64), out, rows.Err()
}

type JobRow struct {
	Job         string `json:"job"`
	Kind        string `json:"kind"`
	Status      string `json:"status"`
	Reward      int    `json:"reward"`
	Begin       int    `json:"begin"`
	End         int    `json:"end"`
	Winner      string `json:"winner,omitempty"`
	Team        string `json:"team,omitempty"`
	UpdatedStep int    `json:"updated_step"`
}

// Jobs lists indexed jobs, optionally only those with one of statuses.
func (r *Reader) Jobs(ctx context.Context, statuses ...string) ([]JobRow, error) {
	q := `SELECT job,kind,status,reward,begin_step,end_step,COALESCE(winner,''),COALESCE(team,''),updated_step FROM jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		q += ` WHERE status IN (?` + strings.Repeat(",?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	q += ` ORDER BY begin_step, job`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JobRow
	for rows.Next() {
		var j JobRow
		if err := rows.Scan(&j.Job, &j.Kind, &j.Status, &j.Reward, &j.Begin, &j.End, &j.Winner, &j.Team, &j.UpdatedStep); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

type ResultRow struct {
	SimID     string `json:"sim_id"`
	Team      string `json:"team"`
	Ranking   int    `json:"ranking"`
	Score     int64  `json:"score"`
	FinalStep int    `json:"final_step"`
}

func (r *Reader) Results(ctx context.Context) ([]ResultRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sim_id,team,ranking,score,final_step FROM results ORDER BY sim_id, ranking, team`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ResultRow
	for rows.Next() {
		var res ResultRow
		if err := rows.Scan(&res.SimID, &res.Team, &res.Ranking, &res.Score, &res.FinalStep); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// ActionResults counts action results over all indexed steps.
func (r *Reader) ActionResults(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT result, COUNT(*) FROM actions GROUP BY result`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var res string
		var n int
		if err := rows.Scan(&res, &n); err != nil {
			return nil, err
		}
		out[res] = n
	}
	return out, rows.Err()
}

type SnapshotRow struct {
	Step   int    `json:"step"`
	Path   string `json:"path"`
	Digest string `json:"digest"`
}

func (r *Reader) Snapshots(ctx context.Context) ([]SnapshotRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT step,path,digest FROM snapshots ORDER BY step`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SnapshotRow
	for rows.Next() {
		var s SnapshotRow
		if err := rows.Scan(&s.Step, &s.Path, &s.Digest); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
