// agentnetd runs the network coordinator as a daemon: it restores the
// agent graph from the database, serves Prometheus metrics, journals
// every network event, and sweeps for stuck agents.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"agentnet/pkg/config"
	"agentnet/pkg/eventlog"
	"agentnet/pkg/graph"
	"agentnet/pkg/logx"
	"agentnet/pkg/metrics"
	"agentnet/pkg/network"
	"agentnet/pkg/persistence"
	"agentnet/pkg/proto"
	"agentnet/pkg/version"
	"agentnet/pkg/watchdog"
)

// Daemon wires the coordinator to its storage, telemetry, and watchdog.
type Daemon struct {
	cfg      *config.Config
	coord    *network.Coordinator
	db       *sql.DB
	store    *persistence.Store
	eventLog *eventlog.Writer
	watcher  *watchdog.Watchdog
	metrics  *http.Server
	logger   *logx.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func main() {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "", "Path to config file")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("agentnetd %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
		return
	}

	if configPath == "" {
		configPath = os.Getenv("AGENTNET_CONFIG")
	}
	if configPath == "" {
		configPath = config.DefaultConfigFile
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	daemon, err := NewDaemon(cfg)
	if err != nil {
		log.Fatalf("Failed to create daemon: %v", err)
	}

	if err := daemon.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start daemon: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	daemon.logger.Info("Received signal %v, initiating graceful shutdown", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := daemon.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
	daemon.logger.Info("Shutdown completed successfully")
}

// NewDaemon assembles the coordinator and its collaborators from config.
func NewDaemon(cfg *config.Config) (*Daemon, error) {
	logger := logx.NewLogger("agentnetd")

	types, sk, err := cfg.BuildRegistries()
	if err != nil {
		return nil, fmt.Errorf("failed to build type registries: %w", err)
	}

	db, err := persistence.InitializeDatabase(cfg.Storage.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	store := persistence.NewStore(db)

	g := graph.New()
	handles, err := store.LoadAgents()
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to restore agents: %w", err)
	}
	for _, h := range handles {
		g.Restore(h)
	}
	if len(handles) > 0 {
		logger.Info("restored %d agents from %s", len(handles), cfg.Storage.Database)
	}

	eventLog, err := eventlog.NewWriter(cfg.Storage.EventLogDir)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	coord := network.NewCoordinator(g, types, sk, cfg.Recovery, metrics.NewPrometheusRecorder())

	return &Daemon{
		cfg:      cfg,
		coord:    coord,
		db:       db,
		store:    store,
		eventLog: eventLog,
		watcher:  watchdog.New(coord, types, cfg.Recovery, nil),
		logger:   logger,
	}, nil
}

// Start launches the event consumer, watchdog, and metrics endpoint.
func (d *Daemon) Start(ctx context.Context) error {
	ctx, d.cancel = context.WithCancel(ctx)

	// A restored graph may carry configuration problems introduced
	// offline; surface them before accepting work.
	if err := d.coord.ValidateGraph(); err != nil {
		d.logger.Warn("restored graph failed validation: %v", err)
	}

	events := d.coord.Subscribe(256)
	d.wg.Add(1)
	go d.consumeEvents(ctx, events)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.watcher.Run(ctx)
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if d.cfg.Metrics.PrometheusURL != "" {
		qs, err := metrics.NewQueryService(d.cfg.Metrics.PrometheusURL)
		if err != nil {
			return fmt.Errorf("failed to create metrics query service: %w", err)
		}
		mux.Handle("/health/network", qs.HealthHandler())
		d.logger.Info("network health endpoint enabled (querying %s)", d.cfg.Metrics.PrometheusURL)
	}
	d.metrics = &http.Server{
		Addr:              d.cfg.Metrics.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := d.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.logger.Error("metrics server error: %v", err)
		}
	}()

	d.logger.Info("daemon started (metrics on %s)", d.cfg.Metrics.ListenAddr)
	return nil
}

// consumeEvents journals each network event and keeps the persisted
// snapshots in step with the graph.
func (d *Daemon) consumeEvents(ctx context.Context, events <-chan *proto.NetworkEvent) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := d.eventLog.WriteEvent(event); err != nil {
				d.logger.Error("failed to journal event %s: %v", event.ID, err)
			}
			if err := d.store.InsertEvent(event); err != nil {
				d.logger.Error("failed to persist event %s: %v", event.ID, err)
			}
			d.snapshotAgent(event)
		}
	}
}

func (d *Daemon) snapshotAgent(event *proto.NetworkEvent) {
	h, err := d.coord.Handle(event.AgentID)
	if err != nil {
		// Pruned after the event was emitted.
		if derr := d.store.DeleteAgent(event.AgentID); derr != nil {
			d.logger.Error("failed to drop snapshot for %s: %v", event.AgentID, derr)
		}
		return
	}
	if err := d.store.UpsertAgent(h); err != nil {
		d.logger.Error("failed to snapshot agent %s: %v", event.AgentID, err)
	}
}

// Shutdown stops background work and flushes storage.
func (d *Daemon) Shutdown(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	if err := d.metrics.Shutdown(ctx); err != nil {
		d.logger.Error("failed to stop metrics server: %v", err)
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.logger.Warn("shutdown timed out waiting for background workers")
	}

	if err := d.eventLog.Close(); err != nil {
		d.logger.Error("failed to close event log: %v", err)
	}
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
