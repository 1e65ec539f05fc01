// Package syncer runs the cross-device sync loop. The queue and tick
// are provided here; the wire protocol is pluggable, and the default
// SyncFunc is a no-op so a single-device deployment carries no cost.
package syncer

import (
	"context"
	"sync"
	"time"

	"hivebrain/internal/logging"
	"hivebrain/internal/model"
	"hivebrain/internal/store"
)

// DefaultInterval is the tick period when the config leaves it unset.
const DefaultInterval = 30 * time.Second

// SyncFunc pushes this device's pending operations to its peers.
// Implementations must be idempotent at the receiving end; records are
// upserted by id, so replays are safe.
type SyncFunc func(ctx context.Context, pending []*model.SyncOperation) error

// Status reflects the worker's lifecycle for the façade.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

// Syncer owns the pending-op queue for one device and drives the
// background tick.
type Syncer struct {
	storage  store.Backend
	deviceID string
	interval time.Duration
	perform  SyncFunc

	mu      sync.Mutex
	status  Status
	lastErr error
	stopCh  chan struct{}
	doneCh  chan struct{}
	nudge   chan struct{}
}

// New builds a syncer over storage. A nil perform means every tick is
// a no-op; a non-positive interval falls back to DefaultInterval.
func New(storage store.Backend, deviceID string, interval time.Duration, perform SyncFunc) *Syncer {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Syncer{
		storage:  storage,
		deviceID: deviceID,
		interval: interval,
		perform:  perform,
		status:   StatusStopped,
		nudge:    make(chan struct{}, 1),
	}
}

// Start launches the tick loop. Starting a running syncer is a no-op.
func (s *Syncer) Start() {
	s.mu.Lock()
	if s.status == StatusRunning {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.status = StatusRunning
	s.lastErr = nil
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.run(stop, done)
}

// Stop cancels cooperatively and waits for the loop to exit.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if s.status != StatusRunning {
		s.mu.Unlock()
		return
	}
	stop, done := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stop)
	<-done

	s.mu.Lock()
	if s.status == StatusRunning {
		s.status = StatusStopped
	}
	s.mu.Unlock()
}

// ForceSync requests an immediate tick ahead of schedule.
func (s *Syncer) ForceSync() {
	select {
	case s.nudge <- struct{}{}:
	default:
	}
}

// Status returns the worker's current lifecycle state.
func (s *Syncer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns the most recent tick error, if any.
func (s *Syncer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// SyncOnce performs one synchronous tick: load this device's pending
// operations and hand them to the SyncFunc. With no SyncFunc or no
// pending work it returns immediately.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	pending, err := s.storage.GetPendingSyncOperations(ctx, s.deviceID)
	if err != nil {
		return err
	}
	if len(pending) == 0 || s.perform == nil {
		return nil
	}
	return s.perform(ctx, pending)
}

func (s *Syncer) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log := logging.Get(logging.CategorySync)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		case <-s.nudge:
		}

		err := s.SyncOnce(context.Background())
		s.mu.Lock()
		s.lastErr = err
		fatal := err != nil && store.IsFatal(err)
		if fatal {
			s.status = StatusError
		}
		s.mu.Unlock()

		if fatal {
			// Fatal storage errors mean the database itself is broken;
			// retrying cannot help, so the worker shuts down.
			log.Errorw("sync stopped on fatal storage error", "device", s.deviceID, "error", err)
			return
		}
		if err != nil {
			// Transient failures retry on the next tick; the loop
			// never dies.
			log.Warnw("sync tick failed", "device", s.deviceID, "error", err)
		}
	}
}
