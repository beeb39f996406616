// Package worker implements the single-worker execution loop: it pops queue
// items FIFO, stages a run, launches the execution subprocess in its own
// process group, and persists every state transition so concurrent CLI
// processes can observe and mutate the session through the state document
// alone. Exactly one worker per session is enforced by the PID lock.
package worker

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nbqueue/nbq/internal/index"
	"github.com/nbqueue/nbq/internal/models"
	"github.com/nbqueue/nbq/internal/notebook"
	"github.com/nbqueue/nbq/internal/pidlock"
	"github.com/nbqueue/nbq/internal/procgroup"
	"github.com/nbqueue/nbq/internal/runs"
	"github.com/nbqueue/nbq/internal/store"
)

// Options configure one worker invocation.
type Options struct {
	// TimeoutSec is the per-cell timeout forwarded to the engine; 0 = none.
	TimeoutSec int
	// Watch keeps the worker polling for new items instead of exiting when
	// the queue drains.
	Watch bool
	// Once processes at most a single item and exits.
	Once bool
	// PollInterval is the idle sleep in watch mode.
	PollInterval time.Duration
	// KillGrace bounds the TERM-to-KILL window during signal shutdown.
	KillGrace time.Duration
	// Kernel names the jupyter kernel for the engine.
	Kernel string
}

// Worker owns one session's execution loop.
type Worker struct {
	session store.Session
	engine  notebook.Engine
	conv    runs.Converter
	idx     *index.Index
	opts    Options
	sigCh   chan os.Signal
}

// New builds a worker. idx may be nil; index recording is best-effort.
func New(session store.Session, engine notebook.Engine, conv runs.Converter, idx *index.Index, opts Options) *Worker {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = 2 * time.Second
	}
	if opts.Kernel == "" {
		opts.Kernel = "python3"
	}
	return &Worker{session: session, engine: engine, conv: conv, idx: idx, opts: opts}
}

// Run executes the worker loop until the queue drains (or stop is requested,
// or a termination signal arrives). It returns nil on every normal exit path,
// including losing the lock to a live worker. The lock is released on all
// exits.
func (w *Worker) Run() error {
	acquired, err := pidlock.Acquire(w.session.LockPath())
	if err != nil {
		return err
	}
	if !acquired {
		log.Printf("worker: another worker is active for session %s", w.session.ID())
		return nil
	}
	defer pidlock.Release(w.session.LockPath())

	// Termination signals only land on this channel; all shutdown I/O runs
	// from the main loop when the signal is observed at a safe point.
	w.sigCh = make(chan os.Signal, 1)
	signal.Notify(w.sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(w.sigCh)

	for {
		if w.signalPending() {
			w.shutdown()
			return nil
		}

		// Never trust in-memory state across iterations; other processes
		// mutate the document while we run.
		st := store.Load(w.session)

		if st.StopRequested {
			st.StopRequested = false
			if err := store.Save(w.session, st); err != nil {
				log.Printf("worker: persist stop consumption: %v", err)
			}
			log.Printf("worker: stop requested, exiting after consuming flag")
			return nil
		}

		item := st.PopNext()
		if item == nil {
			if err := store.Save(w.session, st); err != nil {
				log.Printf("worker: persist idle state: %v", err)
			}
			if w.opts.Once || !w.opts.Watch {
				return nil
			}
			select {
			case <-w.sigCh:
				w.shutdown()
				return nil
			case <-time.After(w.opts.PollInterval):
			}
			continue
		}

		if exit := w.process(st, item); exit {
			return nil
		}
	}
}

// process runs a single popped item through running to a terminal state.
// It reports whether the loop should exit (once mode or signal shutdown).
func (w *Worker) process(st *models.State, item *models.QueueItem) bool {
	item.Status = models.StatusRunning
	item.StartedAt = models.StringPtr(models.ISONow())
	log.Printf("worker: starting item %s", item.ID)

	prep, err := runs.Prepare(item.QueuePath, w.session.Root, w.conv)
	if err != nil {
		w.failItem(item, nil, err)
		return w.opts.Once
	}
	item.RunDir = models.StringPtr(prep.Dir)
	st.Current = item
	if err := store.Save(w.session, st); err != nil {
		w.failItem(item, prep, err)
		return w.opts.Once
	}

	proc, err := w.engine.Launch(notebook.LaunchSpec{
		InputPath:    prep.InputPath,
		ExecutedPath: prep.ExecutedPath,
		LogPath:      prep.LogPath,
		Kernel:       w.opts.Kernel,
		TimeoutSec:   w.opts.TimeoutSec,
	})
	if err != nil {
		w.failItem(item, prep, err)
		return w.opts.Once
	}

	pid := proc.PID()
	item.PID = models.IntPtr(pid)
	if pgid, gerr := procgroup.Pgid(pid); gerr == nil {
		item.PGID = models.IntPtr(pgid)
	}
	st.Current = item
	if err := store.Save(w.session, st); err != nil {
		log.Printf("worker: persist pid for %s: %v", item.ID, err)
	}

	done := make(chan int, 1)
	go func() {
		code, werr := proc.Wait()
		if werr != nil {
			log.Printf("worker: wait for %s: %v", item.ID, werr)
		}
		done <- code
	}()

	select {
	case code := <-done:
		w.finalize(item, prep, code)
		return w.opts.Once
	case <-w.sigCh:
		w.shutdown()
		return true
	}
}

// finalize derives the terminal status after subprocess exit. The state is
// reloaded first: a kill or abort issued while we were blocked may have
// marked the current item canceled, and that marking wins over the raw exit
// code.
func (w *Worker) finalize(item *models.QueueItem, prep *runs.Prepared, code int) {
	after := store.Load(w.session)
	canceled := after.Current != nil && after.Current.ID == item.ID &&
		after.Current.Status == models.StatusCanceled

	switch {
	case canceled:
		item.Status = models.StatusCanceled
	case code == 0:
		item.Status = models.StatusDone
	default:
		item.Status = models.StatusFailed
	}
	item.Success = models.BoolPtr(code == 0 && !canceled)
	item.Returncode = models.IntPtr(code)
	item.EndedAt = models.StringPtr(models.ISONow())
	if canceled && item.Error == nil {
		item.Error = models.StringPtr("killed by user")
	}

	if err := runs.WriteStatus(prep.Dir, runs.Status{
		StartedAt:  derefOr(item.StartedAt, item.AddedAt),
		EndedAt:    *item.EndedAt,
		Success:    *item.Success,
		Returncode: code,
		Error:      item.Error,
	}); err != nil {
		log.Printf("worker: write run status for %s: %v", item.ID, err)
	}
	if err := runs.UpdateLatestLink(w.session.Root, prep.Dir); err != nil {
		log.Printf("worker: update latest_run link: %v", err)
	}

	w.appendHistory(item)
	log.Printf("worker: item %s finished %s (rc=%d)", item.ID, item.Status, code)
}

// failItem handles every failure before or at launch: the item is marked
// failed with the captured error and the loop moves on.
func (w *Worker) failItem(item *models.QueueItem, prep *runs.Prepared, cause error) {
	item.Status = models.StatusFailed
	item.Success = models.BoolPtr(false)
	item.Returncode = models.IntPtr(-1)
	item.Error = models.StringPtr(cause.Error())
	item.EndedAt = models.StringPtr(models.ISONow())

	if prep != nil {
		if err := runs.WriteStatus(prep.Dir, runs.Status{
			StartedAt:  derefOr(item.StartedAt, item.AddedAt),
			EndedAt:    *item.EndedAt,
			Success:    false,
			Returncode: -1,
			Error:      item.Error,
		}); err != nil {
			log.Printf("worker: write run status for %s: %v", item.ID, err)
		}
	}
	w.appendHistory(item)
	log.Printf("worker: item %s failed: %v", item.ID, cause)
}

// appendHistory moves the finalized item into history on a freshly loaded
// state and clears current. The item is also filtered out of the reloaded
// queue: if we failed before the running transition was persisted, the disk
// copy still lists it as queued, and it must never live in two containers.
func (w *Worker) appendHistory(item *models.QueueItem) {
	st := store.Load(w.session)
	kept := st.Queue[:0]
	for _, qi := range st.Queue {
		if qi.ID != item.ID {
			kept = append(kept, qi)
		}
	}
	st.Queue = kept
	st.History = append(st.History, *item)
	st.Current = nil
	if err := store.Save(w.session, st); err != nil {
		log.Printf("worker: persist finalized item %s: %v", item.ID, err)
	}
	if w.idx != nil {
		if err := w.idx.Record(w.session.ID(), *item); err != nil {
			log.Printf("worker: index item %s: %v", item.ID, err)
		}
	}
}

// shutdown is the single termination routine run from the main control flow
// once a SIGTERM/SIGINT is observed: terminate the in-flight group with a
// short grace, mark the current item canceled, best-effort write its run
// status, empty the pending queue and persist. Run's defer releases the lock.
func (w *Worker) shutdown() {
	st := store.Load(w.session)
	if cur := st.Current; cur != nil {
		pgid := 0
		if cur.PGID != nil {
			pgid = *cur.PGID
		} else if cur.PID != nil {
			if g, err := procgroup.Pgid(*cur.PID); err == nil {
				pgid = g
			}
		}
		if pgid != 0 {
			if err := procgroup.TerminateWithGrace(pgid, w.opts.KillGrace); err != nil {
				log.Printf("worker: terminate group %d: %v", pgid, err)
			}
		}
		cur.Status = models.StatusCanceled
		cur.Success = models.BoolPtr(false)
		if cur.Error == nil {
			cur.Error = models.StringPtr("worker terminated")
		}
		cur.EndedAt = models.StringPtr(models.ISONow())
		if cur.RunDir != nil {
			if err := runs.WriteStatus(*cur.RunDir, runs.Status{
				StartedAt:  derefOr(cur.StartedAt, cur.AddedAt),
				EndedAt:    *cur.EndedAt,
				Success:    false,
				Returncode: -1,
				Error:      cur.Error,
			}); err != nil {
				log.Printf("worker: write run status on shutdown: %v", err)
			}
		}
	}
	st.Queue = []models.QueueItem{}
	if err := store.Save(w.session, st); err != nil {
		log.Printf("worker: persist shutdown state: %v", err)
	}
	log.Printf("worker: terminated by signal")
}

func (w *Worker) signalPending() bool {
	select {
	case <-w.sigCh:
		return true
	default:
		return false
	}
}

func derefOr(s *string, fallback string) string {
	if s != nil {
		return *s
	}
	return fallback
}
