package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/presilabs/presispool/internal/connector"
	"github.com/presilabs/presispool/internal/eventsink"
	"github.com/presilabs/presispool/internal/pipeline"
)

// DefaultExpirationGrace is how long a Finished or Aborted job remains
// visible before Sweep deletes and compacts it out, used when
// NewJobStore is given a zero grace period.
const DefaultExpirationGrace = 10 * time.Second

// JobStore is the bounded Job Store & Scheduler: it owns every Job
// record, matches Created jobs to idle compatible printers, and
// invokes the pipeline engine on their behalf.
type JobStore struct {
	mu              sync.Mutex
	capacity        int
	jobs            []*Job
	printers        *PrinterRegistry
	registry        *Registry
	connector       connector.Connector
	sink            eventsink.Sink
	now             func() time.Time
	expirationGrace time.Duration
}

// NewJobStore constructs a job store bounded to capacity jobs. A
// grace <= 0 falls back to DefaultExpirationGrace.
func NewJobStore(capacity int, printers *PrinterRegistry, registry *Registry, conn connector.Connector, sink eventsink.Sink, grace time.Duration) *JobStore {
	if grace <= 0 {
		grace = DefaultExpirationGrace
	}
	return &JobStore{
		capacity:        capacity,
		printers:        printers,
		registry:        registry,
		connector:       conn,
		sink:            sink,
		now:             time.Now,
		expirationGrace: grace,
	}
}

// Submit implements the submission algorithm: infer the file type,
// validate any explicit printer, allocate the record, and either
// launch immediately (explicit printer) or leave it Created for the
// next scheduling pass (auto-select).
func (s *JobStore) Submit(path string, explicitPrinter string) (*Job, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	s.mu.Lock()
	if len(s.jobs) >= s.capacity {
		s.mu.Unlock()
		return nil, ErrJobStoreFull
	}

	ft, err := s.registry.InferType(path)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("submit %q: %w", path, err)
	}

	var printer *Printer
	if explicitPrinter != "" {
		p, err := s.printers.LookupByName(explicitPrinter)
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		if p.Status != Idle {
			s.mu.Unlock()
			return nil, fmt.Errorf("printer %q: %w", explicitPrinter, ErrPrinterNotIdle)
		}
		if p.Type.Name != ft.Name {
			if _, err := s.registry.FindPath(ft.Name, p.Type.Name); err != nil {
				s.mu.Unlock()
				return nil, fmt.Errorf("printer %q incompatible with %q: %w", explicitPrinter, ft.Name, ErrNoIdlePrinter)
			}
		}
		printer = p
	}

	now := s.now()
	j := &Job{
		ID:              len(s.jobs),
		UUID:            uuid.New().String(),
		InputPath:       path,
		TypeName:        ft.Name,
		Status:          Created,
		CreatedAt:       now,
		StatusChangedAt: now,
	}
	s.jobs = append(s.jobs, j)
	s.mu.Unlock()

	s.sink.JobCreated(j.ID, j.UUID, j.InputPath, j.TypeName)

	if printer == nil {
		s.sink.JobStatus(j.ID, j.Status.String())
		s.TrySchedule()
		return j, nil
	}

	if err := s.launch(j, printer); err != nil {
		s.mu.Lock()
		s.jobs = s.jobs[:len(s.jobs)-1]
		s.mu.Unlock()
		return nil, err
	}
	return j, nil
}

// launch resolves the conversion path, connects to the printer, and
// starts the pipeline. The job is committed to Running as soon as the
// pipeline's stage 0 actually starts (see pipeline.Launch's onStage0
// hook), and that commit is never unwound by a later converter stage's
// own fork/exec failure. Once that commit has happened, launch always
// returns nil: any later
// stage's launch failure is left for the reactor to observe and
// resolve through the killed stages' own exits, exactly as it would
// resolve a pipeline that failed for any other reason after starting.
// Only a failure to even start stage 0 — conversion path, printer
// reservation, connector, or the first exec itself — unwinds the
// printer reservation and is reported to the caller.
func (s *JobStore) launch(j *Job, p *Printer) error {
	path, err := s.registry.FindPath(j.TypeName, p.Type.Name)
	if err != nil {
		return fmt.Errorf("launch job %d: %w", j.ID, err)
	}

	if err := s.printers.MarkBusy(p); err != nil {
		return fmt.Errorf("launch job %d: %w", j.ID, err)
	}

	sink, err := s.connector.Connect(p.Name, p.Type.Name)
	if err != nil {
		s.printers.MarkIdle(p)
		return fmt.Errorf("launch job %d: connect to printer %q: %w", j.ID, p.Name, err)
	}

	argvs := make([][]string, len(path))
	for i, c := range path {
		argvs[i] = c.Argv
	}

	committed := false
	onStage0 := func(pl *pipeline.Pipeline) {
		committed = true
		s.mu.Lock()
		j.Printer = p
		j.Pgid = pl.Pgid
		j.pipe = pl
		j.setStatus(Running, s.now())
		s.mu.Unlock()

		s.sink.JobStatus(j.ID, j.Status.String())
		s.sink.PrinterStatus(p.Name, p.Status.String())
	}

	pl, err := pipeline.Launch(argvs, j.InputPath, sink, onStage0)
	sink.Close()

	if !committed {
		s.printers.MarkIdle(p)
		return fmt.Errorf("launch job %d: %w", j.ID, ErrLaunchFailed)
	}

	s.mu.Lock()
	j.StageProgramNames = pl.StageNames()
	s.mu.Unlock()
	s.sink.JobStarted(j.ID, j.UUID, p.Name, j.Pgid, j.StageProgramNames)
	return nil
}

// TrySchedule attempts to match every Created job, in id order, to an
// idle compatible printer, launching its pipeline on a match. A single
// pass suffices per trigger.
func (s *JobStore) TrySchedule() {
	s.mu.Lock()
	created := make([]*Job, 0)
	for _, j := range s.jobs {
		if j.Status == Created {
			created = append(created, j)
		}
	}
	s.mu.Unlock()

	for _, j := range created {
		p := s.printers.SelectCompatible(j.TypeName, s.registry)
		if p == nil {
			continue
		}
		_ = s.launch(j, p)
	}
}

// Cancel implements the cancel(id) operation.
func (s *JobStore) Cancel(id int) error {
	s.mu.Lock()
	j, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	switch j.Status {
	case Created:
		j.setStatus(Aborted, s.now())
		s.mu.Unlock()
		s.sink.JobStatus(id, j.Status.String())
		s.sink.JobAborted(id, j.UUID, 0)
		return nil

	case Running, Paused:
		pl := j.pipe
		wasPaused := j.Status == Paused
		p := j.Printer
		j.setStatus(Aborted, s.now())
		j.Pgid = 0
		j.pipe = nil
		s.mu.Unlock()

		if wasPaused {
			_ = pl.Resume()
		}
		_ = pl.Terminate()

		s.printers.MarkIdle(p)
		s.sink.JobStatus(id, j.Status.String())
		s.sink.JobAborted(id, j.UUID, 0)
		return nil

	default:
		s.mu.Unlock()
		return fmt.Errorf("cancel job %d: %w", id, ErrWrongJobState)
	}
}

// Pause implements pause(id): only legal from Running. The job's
// status is left unchanged here; the reactor applies Running->Paused
// once it observes the stop.
func (s *JobStore) Pause(id int) error {
	s.mu.Lock()
	j, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if j.Status != Running {
		s.mu.Unlock()
		return fmt.Errorf("pause job %d: %w", id, ErrWrongJobState)
	}
	pl := j.pipe
	s.mu.Unlock()
	return pl.Pause()
}

// Resume implements resume(id): only legal from Paused. As with Pause,
// the status transition is deferred to the reactor.
func (s *JobStore) Resume(id int) error {
	s.mu.Lock()
	j, err := s.lookup(id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if j.Status != Paused {
		s.mu.Unlock()
		return fmt.Errorf("resume job %d: %w", id, ErrWrongJobState)
	}
	pl := j.pipe
	s.mu.Unlock()
	return pl.Resume()
}

// Sweep deletes every Finished or Aborted job whose status has not
// changed in at least the store's configured expiration grace period,
// emitting job_deleted for each and renumbering survivors' ids to
// their new index. Called after every user command completes.
func (s *JobStore) Sweep() {
	now := s.now()
	s.mu.Lock()
	survivors := s.jobs[:0]
	var deletedIDs []int
	for _, j := range s.jobs {
		if (j.Status == Finished || j.Status == Aborted) && now.Sub(j.StatusChangedAt) >= s.expirationGrace {
			deletedIDs = append(deletedIDs, j.ID)
			continue
		}
		survivors = append(survivors, j)
	}
	for i, j := range survivors {
		j.ID = i
	}
	s.jobs = survivors
	s.mu.Unlock()

	for _, id := range deletedIDs {
		s.sink.JobDeleted(id)
	}
}

// Lookup returns the job currently at id. Callers outside the package
// should prefer the accessor methods (Cancel/Pause/Resume/List) which
// hold the lock for the whole operation.
func (s *JobStore) Lookup(id int) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookup(id)
}

func (s *JobStore) lookup(id int) (*Job, error) {
	if id < 0 || id >= len(s.jobs) {
		return nil, ErrInvalidJobID
	}
	return s.jobs[id], nil
}

// List returns every job currently in the store, in id order.
func (s *JobStore) List() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, len(s.jobs))
	copy(out, s.jobs)
	return out
}

// jobByPid locates the job owning the pipeline stage with the given
// pid, used by the reactor to route a reaped child's status change to
// its job. A pipeline may have several stage processes, any of which
// can report a status change independently. Returns nil if no live
// job currently owns that pid (e.g. it was already cancelled).
func (s *JobStore) jobByPid(pid int) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if (j.Status == Running || j.Status == Paused) && j.pipe != nil && j.pipe.HasPid(pid) {
			return j
		}
	}
	return nil
}
