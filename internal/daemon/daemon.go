// Package daemon hosts the long-running process: single-instance locking,
// the HTTP control API, and wiring between the recording manager and the
// processing pipeline.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"chronicle/internal/config"
	"chronicle/internal/logging"
	"chronicle/internal/media"
	"chronicle/internal/pipeline"
	"chronicle/internal/recording"
	"chronicle/internal/store"
)

const healthCheckTimeout = 5 * time.Second

// Daemon coordinates the background services and enforces single-instance
// execution via a lock file.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *store.Store
	recorder   *recording.Manager
	dispatcher *pipeline.Dispatcher

	lockPath string
	lock     *flock.Flock
	api      *apiServer
	checks   []namedCheck

	running atomic.Bool
	cancel  context.CancelFunc
}

// HealthChecker verifies that an external collaborator is reachable.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

type namedCheck struct {
	name    string
	checker HealthChecker
}

// DependencyStatus captures the availability of one external dependency.
type DependencyStatus struct {
	Name      string
	Available bool
	Detail    string
}

// Status is a runtime snapshot served by the control API.
type Status struct {
	Running          bool
	ActiveRecordings int
	DatabasePath     string
	LockFilePath     string
	SessionCounts    map[store.Status]int
	Dependencies     []DependencyStatus
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, st *store.Store, recorder *recording.Manager, dispatcher *pipeline.Dispatcher, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil || st == nil || recorder == nil || dispatcher == nil {
		return nil, errors.New("daemon requires config, store, recorder, and dispatcher")
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "chronicled.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		recorder: recorder,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.dispatcher = dispatcher
	return d, nil
}

// RegisterHealthCheck adds a collaborator probe to the status surface.
// Call before Start; registrations are not synchronized afterwards.
func (d *Daemon) RegisterHealthCheck(name string, checker HealthChecker) {
	if checker == nil {
		return
	}
	d.checks = append(d.checks, namedCheck{name: name, checker: checker})
}

// Start acquires the instance lock and brings up workers and the control API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another instance holds %s", d.lockPath)
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.dispatcher.Start(runCtx)

	api, err := newAPIServer(d.cfg, d, d.logger)
	if err != nil {
		d.releaseLock()
		cancel()
		return err
	}
	d.api = api
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.releaseLock()
			cancel()
			return err
		}
	}

	d.running.Store(true)
	d.logger.Info("daemon started",
		logging.String("database", d.cfg.DatabasePath()),
		logging.String("lock_file", d.lockPath),
	)
	return nil
}

// Stop shuts the API down, drains the pipeline workers, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	if d.api != nil {
		d.api.stop()
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.dispatcher.Stop()
	d.releaseLock()
	d.logger.Info("daemon stopped")
}

func (d *Daemon) releaseLock() {
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release lock file", logging.Error(err))
	}
}

// Status reports runtime state for the control API and CLI.
func (d *Daemon) Status(ctx context.Context) Status {
	counts, err := d.store.Stats(ctx)
	if err != nil {
		d.logger.Warn("failed to load session stats", logging.Error(err))
		counts = map[store.Status]int{}
	}
	return Status{
		Running:          d.running.Load(),
		ActiveRecordings: d.recorder.ActiveCount(),
		DatabasePath:     d.cfg.DatabasePath(),
		LockFilePath:     d.lockPath,
		SessionCounts:    counts,
		Dependencies:     d.dependencies(ctx),
	}
}

func (d *Daemon) dependencies(ctx context.Context) []DependencyStatus {
	statuses := make([]DependencyStatus, 0, len(d.checks)+2)

	mixer := DependencyStatus{Name: d.cfg.FFmpegBinary(), Available: true}
	if _, err := media.ResolveMixer(d.cfg.FFmpegBinary()); err != nil {
		mixer.Available = false
		mixer.Detail = fmt.Sprintf("binary %q not found in PATH", d.cfg.FFmpegBinary())
	}
	statuses = append(statuses, mixer)

	storage := DependencyStatus{Name: "audio storage", Available: true}
	var fs unix.Statfs_t
	if err := unix.Statfs(d.cfg.Paths.AudioDir, &fs); err != nil {
		storage.Available = false
		storage.Detail = err.Error()
	} else {
		free := fs.Bavail * uint64(fs.Bsize)
		storage.Detail = fmt.Sprintf("%.1f GB free", float64(free)/(1<<30))
	}
	statuses = append(statuses, storage)

	for _, check := range d.checks {
		status := DependencyStatus{Name: check.name, Available: true}
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		if err := check.checker.HealthCheck(checkCtx); err != nil {
			status.Available = false
			status.Detail = err.Error()
		}
		cancel()
		statuses = append(statuses, status)
	}
	return statuses
}
