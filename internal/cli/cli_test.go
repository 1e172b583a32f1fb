package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/presilabs/presispool/internal/connector"
	"github.com/presilabs/presispool/internal/core"
	"github.com/presilabs/presispool/internal/eventsink"
)

func newTestSpooler(t *testing.T) (*Spooler, string) {
	t.Helper()
	spoolDir := t.TempDir()
	conn, err := connector.NewFileConnector(spoolDir)
	if err != nil {
		t.Fatalf("NewFileConnector: %v", err)
	}

	reg := core.NewRegistry()
	sink := eventsink.Multi{}
	printers := core.NewPrinterRegistry(8, sink)
	jobs := core.NewJobStore(8, printers, reg, conn, sink, 0)
	reactor := core.NewReactor(jobs, sink)
	reactor.Run()
	t.Cleanup(reactor.Stop)

	return &Spooler{Registry: reg, Printers: printers, Jobs: jobs, Reactor: reactor, Sink: sink}, spoolDir
}

func run(t *testing.T, s *Spooler, script string) string {
	t.Helper()
	var out strings.Builder
	s.Run(strings.NewReader(script), &out, false)
	return out.String()
}

func TestHelpWrongArgCount(t *testing.T) {
	s, _ := newTestSpooler(t)
	out := run(t, s, "help extra\nquit\n")
	if !strings.Contains(out, "Wrong number of args (given: 1, required: 0) for CLI command 'help'") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestCancelWrongArgFamily(t *testing.T) {
	s, _ := newTestSpooler(t)
	out := run(t, s, "cancel\nquit\n")
	if !strings.Contains(out, "Error: 'cancel' requires 1 argument: <job_id>") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestBlankAndWhitespaceLinesAreSkipped(t *testing.T) {
	s, _ := newTestSpooler(t)
	out := run(t, s, "\n   \nhelp\nquit\n")
	if !strings.Contains(out, commandSummary) {
		t.Fatalf("expected the help summary to print, got %q", out)
	}
}

func TestTypePrinterEnablePrintEndToEnd(t *testing.T) {
	s, spoolDir := newTestSpooler(t)

	input := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(input, []byte("data"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	script := "type pdf\n" +
		"printer alice pdf\n" +
		"enable alice\n" +
		"print " + input + "\n" +
		"quit\n"
	out := run(t, s, script)

	if !strings.Contains(out, "PRINTER: id=0, name=alice, type=pdf, status=disabled") {
		t.Fatalf("expected printer-declared line, got %q", out)
	}
	if !strings.Contains(out, "PRINTER: id=0, name=alice, type=pdf, status=idle") {
		t.Fatalf("expected enable to report idle status, got %q", out)
	}

	jobs := s.Jobs.List()
	if len(jobs) != 1 {
		t.Fatalf("expected exactly one job, got %d", len(jobs))
	}

	if _, err := os.Stat(filepath.Join(spoolDir, "alice.spool")); err != nil {
		t.Fatalf("expected a spool file for alice: %v", err)
	}
}

func TestPrintWithExplicitPrinterArgument(t *testing.T) {
	s, _ := newTestSpooler(t)
	input := filepath.Join(t.TempDir(), "doc.pdf")
	os.WriteFile(input, []byte("data"), 0o644)

	script := "type pdf\n" +
		"printer alice pdf\n" +
		"enable alice\n" +
		"print " + input + " alice\n" +
		"quit\n"
	out := run(t, s, script)
	if strings.Contains(out, "Command error") {
		t.Fatalf("explicit-printer print should succeed, got %q", out)
	}

	j := s.Jobs.List()[0]
	if j.Printer == nil || j.Printer.Name != "alice" {
		t.Fatalf("expected the job to be pinned to the explicitly named printer")
	}
}

func TestUnknownCommand(t *testing.T) {
	s, _ := newTestSpooler(t)
	out := run(t, s, "frobnicate\nquit\n")
	if !strings.Contains(out, "Unrecognized command: frobnicate") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestConversionRequiresDeclaredTypes(t *testing.T) {
	s, _ := newTestSpooler(t)
	out := run(t, s, "conversion pdf ps /bin/cat\nquit\n")
	if !strings.Contains(out, "Undeclared file type: pdf") {
		t.Fatalf("unexpected output: %q", out)
	}
}
