package core

import (
	"fmt"
	"sync"

	"github.com/presilabs/presispool/internal/eventsink"
)

// PrinterStatus is one of a Printer's three lifecycle states.
type PrinterStatus int

const (
	Disabled PrinterStatus = iota
	Idle
	Busy
)

// String renders the status the way the CLI's "printers" listing does:
// lowercase, matching the external PRINTER: ... status=<s> format.
func (s PrinterStatus) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	default:
		return "unknown"
	}
}

// Printer is a named endpoint pinned to exactly one file type.
type Printer struct {
	ID     int
	Name   string
	Type   FileType
	Status PrinterStatus
}

// PrinterRegistry is a bounded, named set of printers, each pinned to
// one declared file type and tracked through the Disabled/Idle/Busy
// state machine.
type PrinterRegistry struct {
	mu       sync.Mutex
	capacity int
	byName   map[string]*Printer
	order    []*Printer
	sink     eventsink.Sink
	nextID   int
}

// NewPrinterRegistry constructs a registry bounded to capacity
// printers, emitting events to sink.
func NewPrinterRegistry(capacity int, sink eventsink.Sink) *PrinterRegistry {
	return &PrinterRegistry{
		capacity: capacity,
		byName:   make(map[string]*Printer),
		sink:     sink,
	}
}

// Add declares a new printer pinned to ft, initially Disabled.
func (r *PrinterRegistry) Add(name string, ft FileType) (*Printer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[name]; exists {
		return nil, fmt.Errorf("printer %q: %w", name, ErrDuplicateName)
	}
	if len(r.order) >= r.capacity {
		return nil, fmt.Errorf("printer registry: %w", ErrRegistryFull)
	}

	p := &Printer{ID: r.nextID, Name: name, Type: ft, Status: Disabled}
	r.nextID++
	r.byName[name] = p
	r.order = append(r.order, p)
	r.sink.PrinterDefined(p.Name, p.Type.Name)
	return p, nil
}

// Enable transitions a printer from Disabled to Idle. A printer
// already Idle or Busy is left unchanged (no-op, no duplicate event).
func (r *PrinterRegistry) Enable(name string) error {
	r.mu.Lock()
	p, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("printer %q: %w", name, ErrPrinterNotFound)
	}
	if p.Status != Disabled {
		r.mu.Unlock()
		return nil
	}
	p.Status = Idle
	r.mu.Unlock()
	r.sink.PrinterStatus(p.Name, p.Status.String())
	return nil
}

// LookupByName returns the printer registered under name.
func (r *PrinterRegistry) LookupByName(name string) (*Printer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("printer %q: %w", name, ErrPrinterNotFound)
	}
	return p, nil
}

// Enumerate returns all printers in registration order.
func (r *PrinterRegistry) Enumerate() []*Printer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Printer, len(r.order))
	copy(out, r.order)
	return out
}

// SelectCompatible returns the first Idle printer whose type matches
// fromType directly, in registration order; failing that, the first
// Idle printer reachable from fromType via the conversion registry,
// again in registration order. Direct matches are always preferred
// over conversion-requiring ones, regardless of registration order
// (see DESIGN.md Open Question 3).
func (r *PrinterRegistry) SelectCompatible(fromType string, reg *Registry) *Printer {
	r.mu.Lock()
	candidates := make([]*Printer, len(r.order))
	copy(candidates, r.order)
	r.mu.Unlock()

	for _, p := range candidates {
		if p.Status == Idle && p.Type.Name == fromType {
			return p
		}
	}
	for _, p := range candidates {
		if p.Status != Idle || p.Type.Name == fromType {
			continue
		}
		if _, err := reg.FindPath(fromType, p.Type.Name); err == nil {
			return p
		}
	}
	return nil
}

// MarkBusy transitions an Idle printer to Busy. Callers must only
// invoke this immediately before launching a pipeline for it.
func (r *PrinterRegistry) MarkBusy(p *Printer) error {
	r.mu.Lock()
	if p.Status != Idle {
		r.mu.Unlock()
		return fmt.Errorf("printer %q: %w", p.Name, ErrPrinterNotIdle)
	}
	p.Status = Busy
	r.mu.Unlock()
	r.sink.PrinterStatus(p.Name, p.Status.String())
	return nil
}

// MarkIdle transitions a Busy printer back to Idle, e.g. when its job
// reaches a terminal state. This registry never transitions a printer
// from Busy directly to Disabled.
func (r *PrinterRegistry) MarkIdle(p *Printer) {
	r.mu.Lock()
	p.Status = Idle
	r.mu.Unlock()
	r.sink.PrinterStatus(p.Name, p.Status.String())
}
