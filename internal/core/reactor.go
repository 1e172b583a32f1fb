package core

import (
	"syscall"
	"time"

	"github.com/presilabs/presispool/internal/eventsink"
)

// childEvent is one reaped child-process state change, as reported by
// syscall.Wait4. pid identifies a single pipeline stage; jobByPid maps
// it back to the owning job.
type childEvent struct {
	pid    int
	status syscall.WaitStatus
}

// Reactor owns the single background wait loop for the whole process
// and reconciles job/printer state from the child events it observes.
// There is exactly one Reactor per spooler: collapsing the original
// design's per-pipeline supervisor wait loop and top-level SIGCHLD
// handler into one goroutine is necessary because a Go process cannot
// install an async-signal-safe-only handler the way a C program does;
// a single blocking Wait4(-1, ...) loop reaps every stage process of
// every pipeline without needing signals at all.
type Reactor struct {
	store *JobStore
	sink  eventsink.Sink
	evts  chan childEvent
	stop  chan struct{}
}

// NewReactor constructs a Reactor over store, emitting to sink.
func NewReactor(store *JobStore, sink eventsink.Sink) *Reactor {
	return &Reactor{
		store: store,
		sink:  sink,
		evts:  make(chan childEvent, 64),
		stop:  make(chan struct{}),
	}
}

// Run starts the background reaping goroutine. It returns immediately;
// call Stop to shut it down.
func (r *Reactor) Run() {
	go r.waitLoop()
}

// Stop signals the reaping goroutine to exit. Already-queued events
// are left in the channel undrained.
func (r *Reactor) Stop() {
	close(r.stop)
}

// waitLoop blocks in syscall.Wait4 for any child's state change
// (stop, continue, exit, or signal-termination) and forwards each one
// on r.evts for Drain to process on the main command loop. This is the
// only goroutine that ever calls Wait4, so there is a single reader of
// child exit status for the whole process.
func (r *Reactor) waitLoop() {
	for {
		var status syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &status, syscall.WUNTRACED|syscall.WCONTINUED, nil)
		if err != nil {
			// ECHILD: no children currently exist. Nothing to wait for
			// right now; a fresh pipeline will be started by a later
			// command. Back off briefly rather than busy-spinning on
			// Wait4 until one appears.
			select {
			case <-r.stop:
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}
		select {
		case r.evts <- childEvent{pid: pid, status: status}:
		case <-r.stop:
			return
		}
		select {
		case <-r.stop:
			return
		default:
		}
	}
}

// Drain applies every currently queued child event to the job/printer
// stores and then invokes a fresh scheduling pass, exactly as the
// event table requires: a freed printer must be observable to
// try_schedule before Drain returns. Called immediately before the
// command loop blocks for the next input line, and immediately after
// every command dispatch returns.
func (r *Reactor) Drain() {
	for {
		select {
		case ev := <-r.evts:
			r.apply(ev)
		default:
			r.store.TrySchedule()
			return
		}
	}
}

func (r *Reactor) apply(ev childEvent) {
	j := r.store.jobByPid(ev.pid)
	if j == nil {
		// Already cancelled before this event arrived: reaping already
		// happened via Wait4 itself, nothing further to do.
		return
	}

	status := ev.status
	switch {
	case status.Stopped():
		// A single SIGSTOP to the pipeline's process group produces
		// one stop notification per stage; the job transitions to
		// Paused only once every stage has been observed stopped.
		r.store.mu.Lock()
		changed := false
		if j.Status == Running {
			j.pipe.StoppedCount++
			if j.pipe.StoppedCount >= j.pipe.Stages() {
				j.setStatus(Paused, r.store.now())
				changed = true
			}
		}
		r.store.mu.Unlock()
		if changed {
			r.sink.JobStatus(j.ID, j.Status.String())
		}

	case status.Continued():
		// The first stage to resume is enough to declare the whole
		// group running again: SIGCONT delivered to a stopped group
		// un-suspends every member, and a pipeline stalls as soon as
		// any one stage is unable to proceed, so partial resumption
		// isn't a meaningful intermediate state the way partial
		// stopping is.
		r.store.mu.Lock()
		changed := j.Status == Paused
		if changed {
			j.pipe.StoppedCount = 0
			j.setStatus(Running, r.store.now())
		}
		r.store.mu.Unlock()
		if changed {
			r.sink.JobStatus(j.ID, j.Status.String())
		}

	case status.Exited():
		r.finish(j, Finished, status.ExitStatus())

	case status.Signaled():
		r.finish(j, Aborted, int(status.Signal()))
	}
}

// finish reaps one stage's terminal exit toward its pipeline's
// aggregate completion. A job's pipeline may have more than one stage
// (one process per conversion edge); the job only reaches a terminal
// state once every stage has been reaped. The first stage observed to
// exit via signal marks the whole job Aborted even if other stages
// later exit normally; idempotency: if the job already left
// Running/Paused (e.g. via Cancel), later events for the same pgid are
// no-ops beyond this bookkeeping.
func (r *Reactor) finish(j *Job, outcome JobStatus, code int) {
	r.store.mu.Lock()
	if j.Status != Running && j.Status != Paused {
		r.store.mu.Unlock()
		return
	}

	pl := j.pipe
	pl.Remaining--
	pl.ExitCodes = append(pl.ExitCodes, code)
	if outcome == Aborted {
		pl.Signaled = true
	}

	if pl.Remaining > 0 {
		r.store.mu.Unlock()
		return
	}

	p := j.Printer
	finalCode := 0
	for _, c := range pl.ExitCodes {
		if c != 0 {
			finalCode = 1
			break
		}
	}
	finalOutcome := Finished
	if pl.Signaled {
		finalOutcome = Aborted
	}

	j.setStatus(finalOutcome, r.store.now())
	j.Pgid = 0
	j.pipe = nil
	r.store.mu.Unlock()

	r.store.printers.MarkIdle(p)
	r.sink.JobStatus(j.ID, j.Status.String())
	if finalOutcome == Finished {
		r.sink.JobFinished(j.ID, j.UUID, finalCode)
	} else {
		r.sink.JobAborted(j.ID, j.UUID, code)
	}
}
