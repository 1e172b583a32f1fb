package core

import (
	"time"

	"github.com/presilabs/presispool/internal/pipeline"
)

// JobStatus is one of a Job's six lifecycle states.
type JobStatus int

const (
	Created JobStatus = iota
	Running
	Paused
	Finished
	Aborted
	Deleted
)

func (s JobStatus) String() string {
	switch s {
	case Created:
		return "created"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Finished:
		return "finished"
	case Aborted:
		return "aborted"
	case Deleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// Job is a user request to print one file. It owns a pipeline instance
// for the portion of its life spent Running or Paused.
type Job struct {
	ID int
	// UUID is a stable external identifier assigned once at submission
	// and never reused or renumbered, unlike ID (which Sweep compacts
	// and reassigns). Archive and webhook consumers key off UUID so a
	// job's history stays addressable across the id space being
	// recycled by later submissions.
	UUID              string
	InputPath         string
	TypeName          string
	Printer           *Printer // non-owning; nil unless Running/Paused/Finished/Aborted
	Status            JobStatus
	Pgid              int // 0 unless Running/Paused
	StageProgramNames []string
	CreatedAt         time.Time
	StatusChangedAt   time.Time

	// pipe is set by the scheduler when it launches this job's
	// pipeline and cleared once the job is no longer Running/Paused.
	// It is not part of the documented record, only an internal
	// handle the reactor uses to send signals and await exits.
	pipe *pipeline.Pipeline
}

func (j *Job) setStatus(s JobStatus, now time.Time) {
	j.Status = s
	j.StatusChangedAt = now
}
