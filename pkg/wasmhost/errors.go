package wasmhost

import "errors"

var (
	// ErrProgramChanged is returned out of a yield when the control
	// plane selected a new program; the guest is expected to unwind and
	// let its run export return.
	ErrProgramChanged = errors.New("wasmhost: terminated for program change")

	// ErrFuelExhausted indicates the guest spent its fuel budget without
	// yielding.
	ErrFuelExhausted = errors.New("wasmhost: fuel exhausted")

	// ErrMissingExport indicates the guest module lacks one of the
	// required exports (run, memory, cabi_realloc).
	ErrMissingExport = errors.New("wasmhost: guest is missing a required export")

	// ErrGuestMemory indicates a guest-supplied pointer/length pair fell
	// outside the guest's linear memory.
	ErrGuestMemory = errors.New("wasmhost: guest memory access out of range")
)
