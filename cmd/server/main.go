package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"cityrun.ai/internal/logging"
	"cityrun.ai/internal/observability"
	"cityrun.ai/internal/persistence/indexdb"
	persistlog "cityrun.ai/internal/persistence/log"
	"cityrun.ai/internal/persistence/snapshot"
	"cityrun.ai/internal/sim/city"
	"cityrun.ai/internal/sim/tuning"
	"cityrun.ai/internal/transport/ws"
)

func main() {
	var (
		addr          = flag.String("addr", ":12300", "http listen address")
		configPath    = flag.String("config", "./configs/city.yaml", "scenario config (.yaml, .yml or .toml)")
		dataDir       = flag.String("data", "./data", "runtime data directory")
		passwordsPath = flag.String("passwords", "", "yaml file of agent: password (empty accepts any agent name)")
		stepTimeout   = flag.Duration("step_timeout", 4*time.Second, "time agents have to answer an action request")
		snapEvery     = flag.Int("snapshot_every", 100, "write a snapshot every N steps (0 writes only the last one)")
		startDelay    = flag.Duration("start_delay", 0, "wait before the first step so agents can connect")
		keepServing   = flag.Bool("keep_serving", false, "keep serving metrics and admin endpoints after the run ends")
		disableDB     = flag.Bool("disable_db", false, "disable the sqlite index")
		logLevel      = flag.String("log_level", "info", "debug, info, warn or error")
		logFormat     = flag.String("log_format", "text", "text or json")
		traceExporter = flag.String("trace", "none", "span exporter: none or stdout")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)
	slogger := logging.New(logging.Config{Level: *logLevel, Format: *logFormat}, nil)

	cfg, missing, err := tuning.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	for _, section := range missing {
		slogger.Error("config section missing, using defaults", "section", section)
	}

	auth, err := loadPasswords(*passwordsPath)
	if err != nil {
		logger.Fatalf("load passwords: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfig{
		Exporter:    *traceExporter,
		ServiceName: "cityrun-server",
	}, slogger)
	if err != nil {
		logger.Fatalf("init tracing: %v", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, slogger)

	runName := cfg.SimID
	if runName == "" {
		runName = time.Now().UTC().Format("20060102-150405")
	}
	runDir := filepath.Join(*dataDir, "runs", runName)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	collector, err := observability.NewCollector(nil)
	if err != nil {
		logger.Fatalf("metrics: %v", err)
	}

	sim := city.New(city.Options{Logger: slogger.With("component", "sim")})
	gate := city.NewActionGate()
	agents := ws.NewServer(gate, ws.Options{Auth: auth, Logger: slogger.With("component", "ws")})

	stepLog := persistlog.NewStepLogger(runDir)
	defer stepLog.Close()
	sinks := []city.StepSink{stepLog}

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(runDir, "index.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := observability.RegisterQueueGauges(nil, "city_index", func() (int, int, uint64) {
			st := idx.Stats()
			return st.QueueDepth, st.QueueCapacity, st.DropStepTotal + st.DropSnapshotTotal + st.DropResultTotal
		}); err != nil {
			logger.Fatalf("index metrics: %v", err)
		}
	}
	snapDir := filepath.Join(runDir, "snapshots")
	sinks = append(sinks, snapshot.NewSink(snapDir, sim, slogger, idx.RecordSnapshot))
	if idx != nil {
		sinks = append(sinks, idx)
	}

	runner := city.NewRunner(sim, gate, city.RunnerConfig{
		Config:        cfg,
		StepTimeout:   *stepTimeout,
		SnapshotEvery: *snapEvery,
	},
		city.WithPublisher(agents),
		city.WithSinks(sinks...),
		city.WithMetrics(collector),
		city.WithRunnerLogger(slogger.With("component", "runner")),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.Handle("/metrics", collector.Handler())
	mux.HandleFunc("/agent", agents.Handler())

	if envBool("CITY_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		api := &adminAPI{runner: runner, sim: sim, agents: agents, snapDir: snapDir, idx: idx, log: slogger}
		api.register(mux)
	} else {
		logger.Printf("admin endpoints disabled (CITY_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("CITY_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("ListenAndServe: %v", err)
		}
	}()

	if *startDelay > 0 {
		slogger.Info("waiting for agents", "delay", startDelay.String())
		select {
		case <-time.After(*startDelay):
		case <-ctx.Done():
		}
	}

	if err := runner.Run(ctx); err != nil {
		slogger.Warn("run stopped", "err", err)
	} else {
		for team, res := range sim.Result() {
			slogger.Info("final result", "team", team, "ranking", res.Ranking, "score", res.Score)
		}
	}
	agents.Close()

	if *keepServing && ctx.Err() == nil {
		slogger.Info("run finished, still serving until interrupted")
		<-ctx.Done()
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// loadPasswords reads an agent -> password table. An empty path accepts
// every non-empty agent name.
func loadPasswords(path string) (ws.Authenticator, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	table := map[string]string{}
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ws.Passwords(table), nil
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
