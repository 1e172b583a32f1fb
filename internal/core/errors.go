package core

import "errors"

// Registry and declaration errors.
var (
	ErrDuplicateName  = errors.New("core: duplicate name")
	ErrUnknownType    = errors.New("core: unknown file type")
	ErrUndeclaredType = errors.New("core: undeclared file type")
	ErrRegistryFull   = errors.New("core: registry is full")
	ErrNoPath         = errors.New("core: no conversion path")
)

// Printer registry errors.
var (
	ErrPrinterNotFound = errors.New("core: printer not found")
	ErrPrinterBusy     = errors.New("core: printer is busy")
	ErrPrinterNotIdle  = errors.New("core: printer is not idle")
)

// Job store / scheduler errors.
var (
	ErrJobStoreFull  = errors.New("core: job store is full")
	ErrEmptyPath     = errors.New("core: empty input path")
	ErrInvalidJobID  = errors.New("core: invalid job id")
	ErrWrongJobState = errors.New("core: job is not in the required state")
	ErrNoIdlePrinter = errors.New("core: no idle compatible printer")
	ErrLaunchFailed  = errors.New("core: pipeline launch failed")
)
