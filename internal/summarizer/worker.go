package summarizer

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"

	"hivebrain/internal/logging"
)

// errBackoff is how long the loop sleeps after an unexpected sweep
// error before the next attempt.
const errBackoff = 60 * time.Second

// StartBackgroundMonitoring spawns the monitor task. Sweeps run on the
// configured interval; a filesystem watch on conversations/ nudges the
// schedule forward when new blobs land, but the trigger rule itself is
// unchanged. Starting a running agent is a no-op.
func (a *Agent) StartBackgroundMonitoring() {
	a.mu.Lock()
	if a.status == StatusRunning {
		a.mu.Unlock()
		return
	}
	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	a.status = StatusRunning
	a.lastErr = nil
	stop, done := a.stopCh, a.doneCh
	a.mu.Unlock()

	go a.monitor(stop, done)
}

// StopBackgroundMonitoring cancels cooperatively and waits for the
// task to exit. Pending work is abandoned; originals stay intact.
func (a *Agent) StopBackgroundMonitoring() {
	a.mu.Lock()
	if a.status != StatusRunning {
		a.mu.Unlock()
		return
	}
	stop, done := a.stopCh, a.doneCh
	a.mu.Unlock()

	close(stop)
	<-done

	a.mu.Lock()
	if a.status == StatusRunning {
		a.status = StatusStopped
	}
	a.mu.Unlock()
}

// Nudge requests an out-of-band sweep ahead of the next tick.
func (a *Agent) Nudge() {
	select {
	case a.scanNudge <- struct{}{}:
	default:
	}
}

// LastError returns the most recent sweep error, if any.
func (a *Agent) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastErr
}

func (a *Agent) monitor(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	log := logging.Get(logging.CategorySummarizer)

	watcher, err := fsnotify.NewWatcher()
	if err == nil {
		if werr := watcher.Add(a.ConversationsPath()); werr != nil {
			log.Debugw("watch on conversations dir failed, interval only", "error", werr)
			watcher.Close()
			watcher = nil
		}
	} else {
		log.Debugw("fsnotify unavailable, interval only", "error", err)
		watcher = nil
	}
	if watcher != nil {
		defer watcher.Close()
		go func() {
			for {
				select {
				case <-stop:
					return
				case ev, ok := <-watcher.Events:
					if !ok {
						return
					}
					if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
						a.Nudge()
					}
				case _, ok := <-watcher.Errors:
					if !ok {
						return
					}
				}
			}
		}()
	}

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		case <-a.scanNudge:
		}

		if _, err := a.Sweep(context.Background()); err != nil {
			log.Warnw("sweep failed, backing off", "error", err)
			a.mu.Lock()
			a.lastErr = err
			a.mu.Unlock()

			select {
			case <-stop:
				return
			case <-time.After(errBackoff):
			}
		}
	}
}
