package core

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/presilabs/presispool/internal/pipeline"
)

// recordingSink captures JobFinished/JobAborted/JobStatus calls for
// assertions without needing a real webhook or archive backend.
type recordingSink struct {
	finished []int
	aborted  []int
	statuses []string
}

func (r *recordingSink) JobFinished(id int, jobUUID string, code int) {
	r.finished = append(r.finished, code)
}

func (r *recordingSink) JobAborted(id int, jobUUID string, signal int) {
	r.aborted = append(r.aborted, signal)
}

func (r *recordingSink) JobStatus(id int, status string) {
	r.statuses = append(r.statuses, status)
}
func (r *recordingSink) PrinterDefined(name, typeName string) {}
func (r *recordingSink) PrinterStatus(name, status string)     {}
func (r *recordingSink) JobCreated(id int, jobUUID, path, typeName string) {}
func (r *recordingSink) JobStarted(id int, jobUUID, printerName string, pgid int, stagePrograms []string) {
}
func (r *recordingSink) JobDeleted(id int)              {}
func (r *recordingSink) CmdOK(cmd string)               {}
func (r *recordingSink) CmdError(cmd string, err error) {}

func launchTestJob(t *testing.T, store *JobStore, argvs [][]string) *Job {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.txt")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	sinkPath := filepath.Join(t.TempDir(), "out.txt")
	f, err := os.Create(sinkPath)
	if err != nil {
		t.Fatalf("create sink: %v", err)
	}
	defer f.Close()

	pl, err := pipeline.Launch(argvs, path, f, nil)
	if err != nil {
		t.Fatalf("pipeline.Launch: %v", err)
	}

	j := &Job{ID: 0, Status: Running, Pgid: pl.Pgid, pipe: pl}
	store.jobs = append(store.jobs, j)
	return j
}

func TestReactorSingleStageExitMarksFinished(t *testing.T) {
	sink := &recordingSink{}
	printers := newTestPrinterRegistry(4)
	store := NewJobStore(4, printers, NewRegistry(), nil, sink, 0)

	p, _ := printers.Add("alice", FileType{Name: "pdf"})
	printers.Enable(p.Name)
	store.mu.Lock()
	p.Status = Busy
	store.mu.Unlock()

	j := launchTestJob(t, store, [][]string{{"/bin/true"}})
	j.Printer = p

	reactor := NewReactor(store, sink)
	reactor.Run()
	defer reactor.Stop()

	deadline := time.After(2 * time.Second)
	for j.Status == Running {
		reactor.Drain()
		select {
		case <-deadline:
			t.Fatalf("job did not finish in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if j.Status != Finished {
		t.Fatalf("expected Finished, got %v", j.Status)
	}
	if len(sink.finished) != 1 {
		t.Fatalf("expected exactly one JobFinished event, got %d", len(sink.finished))
	}
	if p.Status != Idle {
		t.Fatalf("expected the printer freed back to Idle, got %v", p.Status)
	}
}

func TestReactorMultiStageWaitsForEveryStage(t *testing.T) {
	sink := &recordingSink{}
	printers := newTestPrinterRegistry(4)
	store := NewJobStore(4, printers, NewRegistry(), nil, sink, 0)

	p, _ := printers.Add("alice", FileType{Name: "pdf"})
	printers.Enable(p.Name)
	store.mu.Lock()
	p.Status = Busy
	store.mu.Unlock()

	// The middle stage sleeps briefly, so the first stage's exit is very
	// likely observed before it; the last stage only sees EOF (and
	// exits) once the middle stage has exited.
	j := launchTestJob(t, store, [][]string{{"/bin/cat"}, {"/bin/sleep", "0.15"}, {"/bin/cat"}})
	j.Printer = p

	reactor := NewReactor(store, sink)
	reactor.Run()
	defer reactor.Stop()

	deadline := time.After(3 * time.Second)
	for j.Status == Running {
		reactor.Drain()
		select {
		case <-deadline:
			t.Fatalf("job did not finish in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if j.Status != Finished {
		t.Fatalf("expected Finished once all 3 stages exit, got %v", j.Status)
	}
}

func TestReactorSignaledStageMarksAborted(t *testing.T) {
	sink := &recordingSink{}
	printers := newTestPrinterRegistry(4)
	store := NewJobStore(4, printers, NewRegistry(), nil, sink, 0)

	p, _ := printers.Add("alice", FileType{Name: "pdf"})
	printers.Enable(p.Name)
	store.mu.Lock()
	p.Status = Busy
	store.mu.Unlock()

	j := launchTestJob(t, store, [][]string{{"/bin/sleep", "5"}})
	j.Printer = p

	reactor := NewReactor(store, sink)
	reactor.Run()
	defer reactor.Stop()

	if err := j.pipe.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for j.Status == Running {
		reactor.Drain()
		select {
		case <-deadline:
			t.Fatalf("job did not abort in time")
		case <-time.After(10 * time.Millisecond):
		}
	}

	if j.Status != Aborted {
		t.Fatalf("expected Aborted after SIGTERM, got %v", j.Status)
	}
	if len(sink.aborted) != 1 {
		t.Fatalf("expected exactly one JobAborted event, got %d", len(sink.aborted))
	}
}
