// Package pipeline constructs and signals multi-stage converter
// pipelines: one exec.Cmd per conversion stage (plus a byte-passthrough
// stage when no conversion is needed), chained by pipes, running as a
// single OS process group so the whole chain can be paused, resumed,
// and terminated with one signal to the group.
//
// There is no separate supervisor process: a literal fork of a running
// Go binary cannot safely continue executing Go code in the child, so
// the role the original design gives to a forked supervisor — becoming
// the pipeline's process-group leader and reaping its stages — is
// split between the kernel (stage 0 becomes the group leader via
// SysProcAttr.Setpgid) and a single long-lived reactor goroutine that
// reaps every child process for the whole program (see reactor.go).
package pipeline

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// passthroughArgv is the stage used when a job's source and target
// types are identical: a byte-for-byte copy from stdin to stdout.
var passthroughArgv = []string{"/bin/cat"}

// Stage is one program in a pipeline, identified by its argv.
type Stage struct {
	Argv []string
}

// Pipeline is a launched, running process group: one or more stages
// chained by pipes, with stage 0 reading from an input file and the
// last stage writing to a printer sink.
type Pipeline struct {
	// Pgid is the process group id for the whole pipeline, equal to
	// stage 0's pid.
	Pgid int
	// Cmds holds every started stage's *exec.Cmd, in stage order.
	Cmds []*exec.Cmd
	// Remaining counts stages not yet reaped by the reactor.
	Remaining int
	// ExitCodes collects each reaped stage's exit code, in arrival
	// order (not stage order), used to compute the pipeline's
	// aggregate exit status once every stage has exited.
	ExitCodes []int
	// Signaled is set once the reactor observes any stage terminated
	// by a signal, short-circuiting the success/failure aggregation.
	Signaled bool
	// StoppedCount counts stages currently observed stopped, used to
	// detect "every stage in the group has stopped" for a pipeline
	// with more than one process, since a single SIGSTOP to the group
	// produces one stop notification per stage rather than one per
	// pipeline.
	StoppedCount int
}

// Stages returns the number of processes in the pipeline.
func (p *Pipeline) Stages() int {
	return len(p.Cmds)
}

// HasPid reports whether pid belongs to one of this pipeline's stages.
func (p *Pipeline) HasPid(pid int) bool {
	for _, c := range p.Cmds {
		if c.Process != nil && c.Process.Pid == pid {
			return true
		}
	}
	return false
}

// Launch starts one exec.Cmd per stage of argvs (or a single
// passthrough stage if argvs is empty), wiring stage i's stdout to
// stage i+1's stdin via an anonymous pipe, stage 0's stdin to
// inputPath, and the last stage's stdout to sink.
//
// onStage0, if non-nil, is called exactly once, synchronously, right
// after stage 0 starts and becomes the pipeline's process group
// leader — before stage 1 is ever attempted. This is the caller's one
// chance to commit a job as Running against a real, already-running
// pgid before anything downstream can fail.
//
// If a later stage fails to start, Launch sends SIGKILL to the
// partially-formed group and returns the partial *Pipeline alongside
// an error; it never undoes an onStage0 commit. The caller must not
// treat the already-started stages as alive, and must not report this
// error back through anything that would roll back committed job
// state — the killed stages' exits are reaped and turned into the
// job's terminal state through the reactor's ordinary signaled-exit
// path, the same way the committed job's completion is always
// observed asynchronously rather than from Launch's own return.
// Descriptor hygiene: every pipe end and the input file are closed in
// this process once both of their consumers/producers have been
// started, so no descriptor opened for one job outlives its need.
func Launch(argvs [][]string, inputPath string, sink *os.File, onStage0 func(*Pipeline)) (*Pipeline, error) {
	if len(argvs) == 0 {
		argvs = [][]string{passthroughArgv}
	}

	in, err := os.Open(inputPath)
	if err != nil {
		return nil, fmt.Errorf("pipeline: open input %q: %w", inputPath, err)
	}

	p := &Pipeline{}
	stdin := in

	for i, argv := range argvs {
		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Stdin = stdin

		last := i == len(argvs)-1
		var pipeRead, pipeWrite *os.File
		if last {
			cmd.Stdout = sink
		} else {
			pr, pw, perr := os.Pipe()
			if perr != nil {
				stdin.Close()
				p.killStarted()
				return p, fmt.Errorf("pipeline: create pipe for stage %d: %w", i, perr)
			}
			cmd.Stdout = pw
			pipeRead, pipeWrite = pr, pw
		}

		if i == 0 {
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
		} else {
			cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: p.Pgid}
		}

		if err := cmd.Start(); err != nil {
			stdin.Close()
			if pipeWrite != nil {
				pipeWrite.Close()
			}
			if pipeRead != nil {
				pipeRead.Close()
			}
			p.killStarted()
			return p, fmt.Errorf("pipeline: start stage %d (%s): %w", i, argv[0], err)
		}

		if i == 0 {
			p.Pgid = cmd.Process.Pid
		}

		// The child now holds its own duplicate of both stdin and
		// stdout; this process's copies are no longer needed by
		// anything and must be closed immediately so no descriptor
		// outlives its stage.
		stdin.Close()
		if pipeWrite != nil {
			pipeWrite.Close()
		}

		p.Cmds = append(p.Cmds, cmd)
		p.Remaining++
		stdin = pipeRead

		if i == 0 && onStage0 != nil {
			onStage0(p)
		}
	}

	return p, nil
}

// killStarted sends SIGKILL to every stage already started, used when
// a later stage fails to launch. The reactor will reap the resulting
// exits normally.
func (p *Pipeline) killStarted() {
	if p.Pgid != 0 {
		_ = syscall.Kill(-p.Pgid, syscall.SIGKILL)
		return
	}
	for _, cmd := range p.Cmds {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

// StageNames returns each stage's program name (argv[0]), in order,
// for job_started event payloads.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.Cmds))
	for i, c := range p.Cmds {
		names[i] = c.Args[0]
	}
	return names
}

// Pause sends SIGSTOP to the pipeline's process group.
func (p *Pipeline) Pause() error {
	return syscall.Kill(-p.Pgid, syscall.SIGSTOP)
}

// Resume sends SIGCONT to the pipeline's process group.
func (p *Pipeline) Resume() error {
	return syscall.Kill(-p.Pgid, syscall.SIGCONT)
}

// Terminate cancels the pipeline: if it may currently be stopped, the
// caller should have already called Resume so the group is runnable,
// then this sends SIGTERM to the group. No automatic SIGKILL escalation
// is performed if the group ignores it.
func (p *Pipeline) Terminate() error {
	return syscall.Kill(-p.Pgid, syscall.SIGTERM)
}
