package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sehyun-dev/snsweep/internal/app"
	"github.com/sehyun-dev/snsweep/internal/browser"
	"github.com/sehyun-dev/snsweep/internal/scheduler"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run scheduled collection with a status HTTP server",
	Long: `Run the collection pipeline on the configured cron schedule and expose
a small status server with /health, /stats and /trigger endpoints.`,
	RunE: runDaemon,
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	launcher := browser.NewLauncher(cfg.Collect.Headless, cfg.Collect.CookieFile)
	d := &daemon{
		pipeline: app.New(cfg, launcher.Factory()),
		log:      logrus.WithField("component", "daemon"),
	}

	sched, err := scheduler.New(cfg.Daemon.Timezone)
	if err != nil {
		return err
	}
	if err := sched.AddJob("collect", cfg.Daemon.Schedule, 0, d.collect); err != nil {
		return err
	}
	d.sched = sched
	sched.Start()

	router := mux.NewRouter()
	router.HandleFunc("/health", d.handleHealth).Methods("GET")
	router.HandleFunc("/stats", d.handleStats).Methods("GET")
	router.HandleFunc("/trigger", d.handleTrigger).Methods("POST")

	server := &http.Server{
		Addr:         cfg.Daemon.Listen,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErrs := make(chan error, 1)
	go func() {
		d.log.Infof("status server listening on %s", cfg.Daemon.Listen)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrs <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-quit:
		d.log.Infof("received %s, shutting down", sig)
	case serveErr = <-serveErrs:
		d.log.Errorf("status server failed: %v", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		d.log.Errorf("server shutdown: %v", err)
	}

	<-sched.Stop().Done()
	d.log.Info("daemon exited")
	return serveErr
}

// daemon owns the shared pipeline and serializes runs between the cron
// schedule and the /trigger endpoint.
type daemon struct {
	pipeline *app.Pipeline
	sched    *scheduler.Scheduler
	log      *logrus.Entry

	// runMu is held for the duration of a pipeline run.
	runMu sync.Mutex

	statsMu   sync.Mutex
	lastStats *app.Stats
	lastRunAt time.Time
	lastError string
}

// collect is the scheduled job body. A slot is skipped when a triggered
// run is still going.
func (d *daemon) collect(ctx context.Context) error {
	if !d.runMu.TryLock() {
		d.log.Warn("previous run still in progress, skipping this slot")
		return nil
	}
	defer d.runMu.Unlock()
	return d.runLocked(ctx)
}

// runLocked executes one pipeline pass and records the outcome. The
// caller must hold runMu.
func (d *daemon) runLocked(ctx context.Context) error {
	stats, err := d.pipeline.Run(ctx)

	d.statsMu.Lock()
	d.lastRunAt = time.Now()
	if err != nil {
		d.lastError = err.Error()
	} else {
		d.lastError = ""
		d.lastStats = &stats
	}
	d.statsMu.Unlock()

	return err
}

func (d *daemon) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

type statusReply struct {
	LastRunAt string              `json:"last_run_at,omitempty"`
	LastError string              `json:"last_error,omitempty"`
	LastStats *app.Stats          `json:"last_stats,omitempty"`
	Jobs      []scheduler.JobInfo `json:"jobs"`
}

func (d *daemon) handleStats(w http.ResponseWriter, r *http.Request) {
	d.statsMu.Lock()
	reply := statusReply{
		LastError: d.lastError,
		LastStats: d.lastStats,
		Jobs:      d.sched.Jobs(),
	}
	if !d.lastRunAt.IsZero() {
		reply.LastRunAt = d.lastRunAt.Format(time.RFC3339)
	}
	d.statsMu.Unlock()

	writeJSON(w, http.StatusOK, reply)
}

func (d *daemon) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !d.runMu.TryLock() {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "a collection run is already in progress",
		})
		return
	}

	go func() {
		defer d.runMu.Unlock()
		ctx, cancel := context.WithTimeout(context.Background(), scheduler.DefaultJobTimeout)
		defer cancel()
		if err := d.runLocked(ctx); err != nil {
			d.log.Errorf("triggered run failed: %v", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "collection run triggered",
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logrus.Warnf("write response: %v", err)
	}
}
