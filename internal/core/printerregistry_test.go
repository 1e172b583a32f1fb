package core

import (
	"errors"
	"testing"

	"github.com/presilabs/presispool/internal/eventsink"
)

func newTestPrinterRegistry(capacity int) *PrinterRegistry {
	return NewPrinterRegistry(capacity, eventsink.Multi{})
}

func TestPrinterRegistryAddDuplicateName(t *testing.T) {
	r := newTestPrinterRegistry(4)
	ft := FileType{Name: "pdf"}

	if _, err := r.Add("alice", ft); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Add("alice", ft); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestPrinterRegistryAddFullRegistry(t *testing.T) {
	r := newTestPrinterRegistry(1)
	ft := FileType{Name: "pdf"}

	if _, err := r.Add("alice", ft); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := r.Add("bob", ft); !errors.Is(err, ErrRegistryFull) {
		t.Fatalf("expected ErrRegistryFull, got %v", err)
	}
}

func TestPrinterRegistryEnableIdempotent(t *testing.T) {
	r := newTestPrinterRegistry(4)
	ft := FileType{Name: "pdf"}
	p, _ := r.Add("alice", ft)

	if err := r.Enable("alice"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if p.Status != Idle {
		t.Fatalf("expected Idle after first Enable, got %v", p.Status)
	}

	if err := r.MarkBusy(p); err != nil {
		t.Fatalf("MarkBusy: %v", err)
	}
	if err := r.Enable("alice"); err != nil {
		t.Fatalf("Enable while Busy: %v", err)
	}
	if p.Status != Busy {
		t.Fatalf("Enable must not downgrade a Busy printer, got %v", p.Status)
	}
}

func TestPrinterRegistryEnableUnknown(t *testing.T) {
	r := newTestPrinterRegistry(4)
	if err := r.Enable("ghost"); !errors.Is(err, ErrPrinterNotFound) {
		t.Fatalf("expected ErrPrinterNotFound, got %v", err)
	}
}

func TestSelectCompatiblePrefersDirectMatchRegardlessOfOrder(t *testing.T) {
	reg := NewRegistry()
	declareChain(t, reg, []string{"pdf", "ps"}, [][3]string{{"pdf", "ps", "pdf2ps"}})

	r := newTestPrinterRegistry(4)
	// Registered before the direct-match printer, but only reachable
	// via conversion: must still lose to the later direct match.
	conv, _ := r.Add("conv-printer", FileType{Name: "ps"})
	direct, _ := r.Add("direct-printer", FileType{Name: "pdf"})
	r.Enable(conv.Name)
	r.Enable(direct.Name)

	got := r.SelectCompatible("pdf", reg)
	if got == nil || got.Name != "direct-printer" {
		t.Fatalf("expected direct-printer to be preferred, got %+v", got)
	}
}

func TestSelectCompatibleFallsBackToConversion(t *testing.T) {
	reg := NewRegistry()
	declareChain(t, reg, []string{"pdf", "ps"}, [][3]string{{"pdf", "ps", "pdf2ps"}})

	r := newTestPrinterRegistry(4)
	conv, _ := r.Add("conv-printer", FileType{Name: "ps"})
	r.Enable(conv.Name)

	got := r.SelectCompatible("pdf", reg)
	if got == nil || got.Name != "conv-printer" {
		t.Fatalf("expected conv-printer via conversion, got %+v", got)
	}
}

func TestSelectCompatibleSkipsNonIdle(t *testing.T) {
	reg := NewRegistry()
	declareChain(t, reg, []string{"pdf"}, nil)

	r := newTestPrinterRegistry(4)
	p, _ := r.Add("alice", FileType{Name: "pdf"})
	// never enabled: stays Disabled

	if got := r.SelectCompatible("pdf", reg); got != nil {
		t.Fatalf("expected no match for a Disabled printer, got %+v", got)
	}

	r.Enable(p.Name)
	r.MarkBusy(p)
	if got := r.SelectCompatible("pdf", reg); got != nil {
		t.Fatalf("expected no match for a Busy printer, got %+v", got)
	}
}

func TestMarkBusyRequiresIdle(t *testing.T) {
	r := newTestPrinterRegistry(4)
	p, _ := r.Add("alice", FileType{Name: "pdf"})

	if err := r.MarkBusy(p); !errors.Is(err, ErrPrinterNotIdle) {
		t.Fatalf("expected ErrPrinterNotIdle for a Disabled printer, got %v", err)
	}
}
