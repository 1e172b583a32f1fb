// Package cli is the default implementation of the interactive command
// parser and tokenizer: it supplies already-validated user intents to
// the core job store, printer registry, and registry packages, reading
// from stdin (or a batch file) and reproducing the original presi
// spooler's exact command set, argument-count validation, and output
// strings.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"github.com/presilabs/presispool/internal/core"
	"github.com/presilabs/presispool/internal/eventsink"
)

const commandSummary = "Commands are: help quit type printer conversion printers jobs print cancel disable enable pause resume"

// Spooler is the set of collaborators the CLI dispatches commands to.
type Spooler struct {
	Registry *core.Registry
	Printers *core.PrinterRegistry
	Jobs     *core.JobStore
	Reactor  *core.Reactor
	Sink     eventsink.Sink
}

// Run executes the read-dispatch-sweep loop over in, writing output to
// out. It returns when the user types "quit" or input reaches EOF.
// Prompt is printed before every read when interactive is true (stdin);
// batch-mode callers (any other file) pass false and get no prompt.
func (s *Spooler) Run(in io.Reader, out io.Writer, interactive bool) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 1024), 1024*1024)

	for {
		// Drain any child-process events observed since the previous
		// command, exactly before the loop blocks for the next line —
		// this is the only suspension point in the whole command loop.
		s.Reactor.Drain()

		if interactive {
			fmt.Fprint(out, "presi> ")
		}
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()

		if line == "" || isAllWhitespace(line) || unicode.IsSpace(rune(line[0])) {
			continue
		}

		tokens := strings.Fields(line)
		if len(tokens) == 0 {
			fmt.Fprintf(out, "Unrecognized command: \n")
			s.Sink.CmdError("", fmt.Errorf("unrecognized command"))
			continue
		}

		if tokens[0] == "quit" {
			if len(tokens) != 1 {
				fmt.Fprintf(out, "Wrong number of args (given: %d, required: 0) for CLI command 'quit'\n", len(tokens)-1)
				s.Sink.CmdError("quit", fmt.Errorf("invalid number of arguments"))
			} else {
				s.Sink.CmdOK("quit")
				return
			}
		} else {
			s.dispatch(tokens, out)
		}

		s.Jobs.Sweep()
	}
}

func isAllWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func (s *Spooler) dispatch(argv []string, out io.Writer) {
	cmd := argv[0]
	argc := len(argv)

	switch cmd {
	case "help":
		if argc != 1 {
			s.wrongArgs(out, cmd, argc-1, 0)
			return
		}
		fmt.Fprintln(out, commandSummary)
		s.Sink.CmdOK(cmd)

	case "type":
		s.handleType(argv, argc, out)

	case "conversion":
		s.handleConversion(argv, argc, out)

	case "printer":
		s.handlePrinter(argv, argc, out)

	case "enable":
		s.handleEnable(argv, argc, out)

	case "disable":
		fmt.Fprintln(out, "Command error: disable (not implemented)")
		s.Sink.CmdError(cmd, fmt.Errorf("disable command not implemented"))

	case "printers":
		s.handlePrinters(out)

	case "print":
		s.handlePrint(argv, argc, out)

	case "jobs":
		s.handleJobs(out)

	case "cancel":
		s.handleCancel(argv, argc, out)

	case "pause":
		s.handlePause(argv, argc, out)

	case "resume":
		s.handleResume(argv, argc, out)

	default:
		fmt.Fprintf(out, "Unrecognized command: %s\n", cmd)
		s.Sink.CmdError(cmd, fmt.Errorf("unknown command"))
	}
}

func (s *Spooler) wrongArgs(out io.Writer, cmd string, given, required int) {
	fmt.Fprintf(out, "Wrong number of args (given: %d, required: %d) for CLI command '%s'\n", given, required, cmd)
	s.Sink.CmdError(cmd, fmt.Errorf("invalid number of arguments for '%s'", cmd))
}

func (s *Spooler) handleType(argv []string, argc int, out io.Writer) {
	if argc != 2 {
		s.wrongArgs(out, "type", argc-1, 1)
		return
	}
	if _, err := s.Registry.DeclareType(argv[1]); err != nil {
		fmt.Fprintln(out, "Command error: type (failed)")
		s.Sink.CmdError("type", err)
		return
	}
	s.Sink.CmdOK("type")
}

func (s *Spooler) handleConversion(argv []string, argc int, out io.Writer) {
	if argc < 4 {
		s.wrongArgs(out, "conversion", argc-1, 3)
		return
	}
	from, to := argv[1], argv[2]

	if _, err := s.Registry.LookupType(from); err != nil {
		fmt.Fprintf(out, "Undeclared file type: %s\n", from)
		s.Sink.CmdError("conversion", err)
		fmt.Fprintln(out, "Command error: conversion (failed)")
		return
	}
	if _, err := s.Registry.LookupType(to); err != nil {
		fmt.Fprintf(out, "Undeclared file type: %s\n", to)
		s.Sink.CmdError("conversion", err)
		fmt.Fprintln(out, "Command error: conversion (failed)")
		return
	}

	argvCmd := append([]string(nil), argv[3:]...)
	if _, err := s.Registry.DeclareConversion(from, to, argvCmd); err != nil {
		fmt.Fprintln(out, "Command error: conversion (failed)")
		s.Sink.CmdError("conversion", err)
		return
	}
	s.Sink.CmdOK("conversion")
}

func (s *Spooler) handlePrinter(argv []string, argc int, out io.Writer) {
	if argc != 3 {
		s.wrongArgs(out, "printer", argc-1, 2)
		return
	}
	name, typeName := argv[1], argv[2]

	ft, err := s.Registry.LookupType(typeName)
	if err != nil {
		fmt.Fprintf(out, "Unknown file type: %s\n", typeName)
		s.Sink.CmdError("printer", err)
		fmt.Fprintln(out, "Command error: printer (failed)")
		return
	}

	p, err := s.Printers.Add(name, ft)
	if err != nil {
		s.Sink.CmdError("printer", err)
		fmt.Fprintln(out, "Command error: printer (failed)")
		return
	}

	fmt.Fprintf(out, "PRINTER: id=%d, name=%s, type=%s, status=%s\n", p.ID, p.Name, p.Type.Name, p.Status)
	s.Sink.CmdOK("printer")
}

func (s *Spooler) handleEnable(argv []string, argc int, out io.Writer) {
	if argc != 2 {
		s.wrongArgs(out, "enable", argc-1, 1)
		return
	}

	if err := s.Printers.Enable(argv[1]); err != nil {
		s.Sink.CmdError("enable", err)
		fmt.Fprintln(out, "Command error: enable (no printer)")
		return
	}

	p, _ := s.Printers.LookupByName(argv[1])
	fmt.Fprintf(out, "PRINTER: id=%d, name=%s, type=%s, status=%s\n", p.ID, p.Name, p.Type.Name, p.Status)

	s.Jobs.TrySchedule()
	s.Sink.CmdOK("enable")
}

func (s *Spooler) handlePrinters(out io.Writer) {
	for _, p := range s.Printers.Enumerate() {
		fmt.Fprintf(out, "PRINTER: id=%d, name=%s, type=%s, status=%s\n", p.ID, p.Name, p.Type.Name, p.Status)
	}
	s.Sink.CmdOK("printers")
}

func (s *Spooler) handlePrint(argv []string, argc int, out io.Writer) {
	if argc != 2 && argc != 3 {
		s.wrongArgs(out, "print", argc-1, 1)
		return
	}
	path := argv[1]
	explicitPrinter := ""
	if argc == 3 {
		explicitPrinter = argv[2]
	}

	if _, err := s.Registry.InferType(path); err != nil {
		fmt.Fprintln(out, "Command error: print (file type)")
		s.Sink.CmdError("print", err)
		return
	}

	if _, err := s.Jobs.Submit(path, explicitPrinter); err != nil {
		fmt.Fprintln(out, "Command error: print (failed)")
		s.Sink.CmdError("print", err)
		return
	}
	s.Sink.CmdOK("print")
}

func (s *Spooler) handleJobs(out io.Writer) {
	for _, j := range s.Jobs.List() {
		s.Sink.JobStatus(j.ID, j.Status.String())
	}
	s.Sink.CmdOK("jobs")
}

func (s *Spooler) handleCancel(argv []string, argc int, out io.Writer) {
	if argc != 2 {
		fmt.Fprintln(out, "Error: 'cancel' requires 1 argument: <job_id>")
		s.Sink.CmdError("cancel", fmt.Errorf("invalid arguments"))
		return
	}
	id, err := strconv.Atoi(argv[1])
	if err != nil {
		id = -1
	}
	if err := s.Jobs.Cancel(id); err != nil {
		fmt.Fprintf(out, "Error: Failed to cancel job %d\n", id)
		s.Sink.CmdError("cancel", err)
		return
	}
	s.Sink.CmdOK("cancel")
}

func (s *Spooler) handlePause(argv []string, argc int, out io.Writer) {
	if argc != 2 {
		fmt.Fprintln(out, "Error: 'pause' requires 1 argument: <job_id>")
		s.Sink.CmdError("pause", fmt.Errorf("invalid arguments"))
		return
	}
	id, err := strconv.Atoi(argv[1])
	if err != nil {
		id = -1
	}
	if err := s.Jobs.Pause(id); err != nil {
		fmt.Fprintf(out, "Error: Failed to pause job %d\n", id)
		s.Sink.CmdError("pause", err)
		return
	}
	s.Sink.CmdOK("pause")
}

func (s *Spooler) handleResume(argv []string, argc int, out io.Writer) {
	if argc != 2 {
		fmt.Fprintln(out, "Error: 'resume' requires 1 argument: <job_id>")
		s.Sink.CmdError("resume", fmt.Errorf("invalid arguments"))
		return
	}
	id, err := strconv.Atoi(argv[1])
	if err != nil {
		id = -1
	}
	if err := s.Jobs.Resume(id); err != nil {
		fmt.Fprintf(out, "Error: Failed to resume job %d\n", id)
		s.Sink.CmdError("resume", err)
		return
	}
	s.Sink.CmdOK("resume")
}
