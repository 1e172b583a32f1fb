// Package eventsink defines the event-logging collaborator the core
// scheduler, printer registry, and reactor call at every externally
// observable transition, and provides a default logging implementation.
package eventsink

import "log"

// Sink receives every event named in the external interface contract.
// Implementations must not block the caller for long: the scheduler,
// reactor, and printer registry call these synchronously from their
// single mutation path.
//
// JobStarted/JobFinished/JobAborted all carry the job's stable UUID
// alongside its positional id: a job's small int id can be renumbered
// by an intervening Sweep compaction between one of these events and
// the next for the same job, so a sink that correlates events across
// a job's lifetime (the archive recorder, in particular) must key on
// the UUID, not the id.
type Sink interface {
	PrinterDefined(name, typeName string)
	PrinterStatus(name, status string)
	JobCreated(id int, jobUUID, path, typeName string)
	JobStatus(id int, status string)
	JobStarted(id int, jobUUID, printerName string, pgid int, stagePrograms []string)
	JobFinished(id int, jobUUID string, code int)
	JobAborted(id int, jobUUID string, signal int)
	JobDeleted(id int)
	CmdOK(cmd string)
	CmdError(cmd string, err error)
}

// Logging is the default Sink: it writes one structured line per event
// via the standard logger.
type Logging struct {
	*log.Logger
}

// NewLogging builds a Logging sink writing to the given logger.
func NewLogging(l *log.Logger) *Logging {
	return &Logging{Logger: l}
}

func (s *Logging) PrinterDefined(name, typeName string) {
	s.Printf("event printer_defined name=%s type=%s", name, typeName)
}

func (s *Logging) PrinterStatus(name, status string) {
	s.Printf("event printer_status name=%s status=%s", name, status)
}

func (s *Logging) JobCreated(id int, jobUUID, path, typeName string) {
	s.Printf("event job_created id=%d uuid=%s path=%s type=%s", id, jobUUID, path, typeName)
}

func (s *Logging) JobStatus(id int, status string) {
	s.Printf("event job_status id=%d status=%s", id, status)
}

func (s *Logging) JobStarted(id int, jobUUID, printerName string, pgid int, stagePrograms []string) {
	s.Printf("event job_started id=%d uuid=%s printer=%s pgid=%d stages=%v", id, jobUUID, printerName, pgid, stagePrograms)
}

func (s *Logging) JobFinished(id int, jobUUID string, code int) {
	s.Printf("event job_finished id=%d uuid=%s code=%d", id, jobUUID, code)
}

func (s *Logging) JobAborted(id int, jobUUID string, signal int) {
	s.Printf("event job_aborted id=%d uuid=%s signal=%d", id, jobUUID, signal)
}

func (s *Logging) JobDeleted(id int) {
	s.Printf("event job_deleted id=%d", id)
}

func (s *Logging) CmdOK(cmd string) {
	s.Printf("event cmd_ok cmd=%s", cmd)
}

func (s *Logging) CmdError(cmd string, err error) {
	s.Printf("event cmd_error cmd=%s err=%v", cmd, err)
}

// Multi fans every call out to all of its members, in order. Used to
// combine the default Logging sink with an optional webhook notifier.
type Multi []Sink

func (m Multi) PrinterDefined(name, typeName string) {
	for _, s := range m {
		s.PrinterDefined(name, typeName)
	}
}

func (m Multi) PrinterStatus(name, status string) {
	for _, s := range m {
		s.PrinterStatus(name, status)
	}
}

func (m Multi) JobCreated(id int, jobUUID, path, typeName string) {
	for _, s := range m {
		s.JobCreated(id, jobUUID, path, typeName)
	}
}

func (m Multi) JobStatus(id int, status string) {
	for _, s := range m {
		s.JobStatus(id, status)
	}
}

func (m Multi) JobStarted(id int, jobUUID, printerName string, pgid int, stagePrograms []string) {
	for _, s := range m {
		s.JobStarted(id, jobUUID, printerName, pgid, stagePrograms)
	}
}

func (m Multi) JobFinished(id int, jobUUID string, code int) {
	for _, s := range m {
		s.JobFinished(id, jobUUID, code)
	}
}

func (m Multi) JobAborted(id int, jobUUID string, signal int) {
	for _, s := range m {
		s.JobAborted(id, jobUUID, signal)
	}
}

func (m Multi) JobDeleted(id int) {
	for _, s := range m {
		s.JobDeleted(id)
	}
}

func (m Multi) CmdOK(cmd string) {
	for _, s := range m {
		s.CmdOK(cmd)
	}
}

func (m Multi) CmdError(cmd string, err error) {
	for _, s := range m {
		s.CmdError(cmd, err)
	}
}
