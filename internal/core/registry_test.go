package core

import (
	"errors"
	"reflect"
	"testing"
)

func declareChain(t *testing.T, r *Registry, types []string, edges [][3]string) {
	t.Helper()
	for _, ty := range types {
		if _, err := r.DeclareType(ty); err != nil {
			t.Fatalf("DeclareType(%q): %v", ty, err)
		}
	}
	for _, e := range edges {
		if _, err := r.DeclareConversion(e[0], e[1], []string{e[2]}); err != nil {
			t.Fatalf("DeclareConversion(%q, %q): %v", e[0], e[1], err)
		}
	}
}

func TestFindPathDirect(t *testing.T) {
	r := NewRegistry()
	declareChain(t, r, []string{"pdf", "ps"}, [][3]string{{"pdf", "ps", "pdf2ps"}})

	path, err := r.FindPath("pdf", "ps")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 1 || path[0].Argv[0] != "pdf2ps" {
		t.Fatalf("unexpected path: %+v", path)
	}
}

func TestFindPathSameTypeIsEmpty(t *testing.T) {
	r := NewRegistry()
	declareChain(t, r, []string{"pdf"}, nil)

	path, err := r.FindPath("pdf", "pdf")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 0 {
		t.Fatalf("expected empty path, got %+v", path)
	}
}

func TestFindPathUnreachable(t *testing.T) {
	r := NewRegistry()
	declareChain(t, r, []string{"pdf", "ps"}, nil)

	_, err := r.FindPath("pdf", "ps")
	if !errors.Is(err, ErrNoPath) {
		t.Fatalf("expected ErrNoPath, got %v", err)
	}
}

func TestFindPathPrefersShorterOverLonger(t *testing.T) {
	r := NewRegistry()
	// pdf -> ps -> txt is longer than a direct pdf -> txt edge declared
	// after it; BFS must still pick the length-1 path regardless of
	// declaration order, and among equal-length candidates, the one
	// whose edges were declared first.
	declareChain(t, r, []string{"pdf", "ps", "txt"}, [][3]string{
		{"pdf", "ps", "pdf2ps"},
		{"ps", "txt", "ps2txt"},
		{"pdf", "txt", "pdf2txt"},
	})

	path, err := r.FindPath("pdf", "txt")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 1 || path[0].Argv[0] != "pdf2txt" {
		t.Fatalf("expected direct 1-hop path, got %+v", path)
	}
}

func TestFindPathTieBreaksOnDeclarationOrder(t *testing.T) {
	r := NewRegistry()
	// Two equal-length two-hop paths from pdf to txt; the one whose
	// first edge was declared first must win.
	declareChain(t, r, []string{"pdf", "ps", "html", "txt"}, [][3]string{
		{"pdf", "ps", "pdf2ps"},
		{"ps", "txt", "ps2txt"},
		{"pdf", "html", "pdf2html"},
		{"html", "txt", "html2txt"},
	})

	path, err := r.FindPath("pdf", "txt")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 2 || path[0].Argv[0] != "pdf2ps" {
		t.Fatalf("expected pdf->ps->txt to win the tie, got %+v", path)
	}
}

func TestDeclareConversionLastDeclaredWins(t *testing.T) {
	r := NewRegistry()
	declareChain(t, r, []string{"pdf", "ps"}, [][3]string{{"pdf", "ps", "old-converter"}})
	if _, err := r.DeclareConversion("pdf", "ps", []string{"new-converter"}); err != nil {
		t.Fatalf("redeclare: %v", err)
	}

	path, err := r.FindPath("pdf", "ps")
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(path) != 1 {
		t.Fatalf("expected a single edge to survive redeclaration, got %+v", path)
	}
	if !reflect.DeepEqual(path[0].Argv, []string{"new-converter"}) {
		t.Fatalf("expected the later declaration to win, got argv=%v", path[0].Argv)
	}
}

func TestLookupTypeUndeclared(t *testing.T) {
	r := NewRegistry()
	if _, err := r.LookupType("pdf"); !errors.Is(err, ErrUndeclaredType) {
		t.Fatalf("expected ErrUndeclaredType, got %v", err)
	}
}

func TestInferTypeFromExtension(t *testing.T) {
	r := NewRegistry()
	declareChain(t, r, []string{"pdf"}, nil)

	ft, err := r.InferType("/tmp/report.pdf")
	if err != nil {
		t.Fatalf("InferType: %v", err)
	}
	if ft.Name != "pdf" {
		t.Fatalf("expected pdf, got %q", ft.Name)
	}

	if _, err := r.InferType("/tmp/report"); err == nil {
		t.Fatalf("expected an error for an extensionless path")
	}
}
