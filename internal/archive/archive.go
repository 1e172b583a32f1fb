// Package archive records the terminal history of jobs (their final
// status and completion code or signal) to a local SQLite database, so
// operators have something to consult after sweep() has compacted a
// job out of the live store. It never rehydrates live job state on
// startup: a restarted spooler always begins with an empty job store,
// this is a one-way audit log only.
//
// It keeps a sql.Open-plus-schema-migration pattern in a single small
// package, since this repo needs only one table rather than a full
// relational schema.
package archive

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	db   *sql.DB
	once sync.Once
)

// Record is one completed job's terminal history entry. JobUUID is the
// job's stable external identifier, distinct from its positional
// JobID, which Sweep recycles once the job is compacted out of the
// live store.
type Record struct {
	JobID      int
	JobUUID    string
	InputPath  string
	Printer    string
	Outcome    string // "finished" or "aborted"
	Code       int    // exit code for finished, signal number for aborted
	FinishedAt time.Time
}

// Init opens (creating if necessary) the archive database at path and
// ensures its schema exists. Safe to call more than once; until Close
// releases it, only the first call's path takes effect via the
// sync.Once-guarded package-level handle — the archive, unlike the job
// and printer stores, is genuinely process-global singleton storage.
func Init(path string) error {
	var initErr error
	once.Do(func() {
		db, initErr = sql.Open("sqlite3", path)
		if initErr != nil {
			return
		}
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		initErr = migrate(db)
	})
	return initErr
}

// Close releases the archive database handle, so that a later Init
// opens a fresh one.
func Close() error {
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	once = sync.Once{}
	return err
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS job_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id INTEGER NOT NULL,
			job_uuid TEXT NOT NULL,
			input_path TEXT NOT NULL,
			printer TEXT NOT NULL,
			outcome TEXT NOT NULL,
			code INTEGER NOT NULL,
			finished_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("archive: create job_history table: %w", err)
	}
	return nil
}

// Recorder is an eventsink.Sink that writes a Record for every job
// reaching Finished or Aborted. It ignores every other event: nothing
// else in the external event list needs a durable history entry.
type Recorder struct {
	// byJob tracks each live job's input path and assigned printer
	// name, populated from job_created/job_started, so the terminal
	// event (which only carries a code) can still be recorded with
	// enough context to be useful later. Keyed by the job's UUID, not
	// its positional id: a Sweep compaction between job_created/
	// job_started and the job's eventual job_finished/job_aborted can
	// renumber the id to a value another job already used, which would
	// silently cross-contaminate an id-keyed cache.
	mu    sync.Mutex
	byJob map[string]jobContext
}

type jobContext struct {
	inputPath string
	printer   string
}

// NewRecorder constructs a Recorder. Init must have already succeeded.
func NewRecorder() *Recorder {
	return &Recorder{byJob: make(map[string]jobContext)}
}

func (r *Recorder) record(jobID int, jobUUID, outcome string, code int) {
	r.mu.Lock()
	ctx := r.byJob[jobUUID]
	delete(r.byJob, jobUUID)
	r.mu.Unlock()

	if db == nil {
		return
	}
	_, err := db.Exec(
		`INSERT INTO job_history (job_id, job_uuid, input_path, printer, outcome, code, finished_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		jobID, jobUUID, ctx.inputPath, ctx.printer, outcome, code, time.Now(),
	)
	if err != nil {
		// Archival is a best-effort audit trail, not part of the job
		// lifecycle's correctness contract; a write failure here must
		// never affect the job's already-settled terminal state.
		fmt.Printf("archive: record job %s: %v\n", jobUUID, err)
	}
}

// eventsink.Sink implementation.

func (r *Recorder) PrinterDefined(name, typeName string) {}
func (r *Recorder) PrinterStatus(name, status string)    {}

func (r *Recorder) JobCreated(id int, jobUUID, path, typeName string) {
	r.mu.Lock()
	ctx := r.byJob[jobUUID]
	ctx.inputPath = path
	r.byJob[jobUUID] = ctx
	r.mu.Unlock()
}

func (r *Recorder) JobStatus(id int, status string) {}

func (r *Recorder) JobStarted(id int, jobUUID, printerName string, pgid int, stagePrograms []string) {
	r.mu.Lock()
	ctx := r.byJob[jobUUID]
	ctx.printer = printerName
	r.byJob[jobUUID] = ctx
	r.mu.Unlock()
}

func (r *Recorder) JobFinished(id int, jobUUID string, code int) {
	r.record(id, jobUUID, "finished", code)
}

func (r *Recorder) JobAborted(id int, jobUUID string, signal int) {
	r.record(id, jobUUID, "aborted", signal)
}

func (r *Recorder) JobDeleted(id int)              {}
func (r *Recorder) CmdOK(cmd string)               {}
func (r *Recorder) CmdError(cmd string, err error) {}
