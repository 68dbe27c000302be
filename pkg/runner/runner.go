// Package runner owns the long-lived worker that executes guest
// programs: it receives file handles from the control plane, tears down
// the current sandbox, and brings up a new one with the file's bytes as
// the module. The guest runs inline on the worker goroutine and
// cooperates through the host's yield call.
package runner

import (
	"context"
	"errors"
	"sync"

	"github.com/rudelblinken/firmware/internal/logger"
	"github.com/rudelblinken/firmware/pkg/vfile"
	"github.com/rudelblinken/firmware/pkg/wasmhost"
)

// LaunchFunc instantiates and runs one guest program to completion. The
// default launches a wazero sandbox; tests substitute their own.
type LaunchFunc func(ctx context.Context, host *wasmhost.Host, program []byte) error

// Runner is the program-execution worker. Exactly one program runs at a
// time; swapping is cooperative, via a ProgramChanged event that the
// running guest observes on its next yield.
type Runner struct {
	newHost  func() *wasmhost.Host
	launch   LaunchFunc
	programs chan vfile.Reader

	// current is the environment of the running sandbox; Swap signals
	// it from the BLE thread while the worker goroutine owns it.
	mu      sync.Mutex
	current *wasmhost.Host
}

// New builds a Runner. newHost constructs a fresh Host per sandbox so a
// replaced program cannot leave stale events behind for its successor.
func New(newHost func() *wasmhost.Host) *Runner {
	return &Runner{
		newHost:  newHost,
		launch:   launchWazero,
		programs: make(chan vfile.Reader, 1),
	}
}

// SetLaunch overrides the sandbox launcher, for tests.
func (r *Runner) SetLaunch(launch LaunchFunc) { r.launch = launch }

// Swap hands a new program to the worker: the reader is queued (its
// strong reference keeps the file's blocks alive until the worker is
// done with it) and the running guest, if any, is asked to unwind. A
// pending not-yet-started program is replaced rather than queued behind.
func (r *Runner) Swap(file vfile.Reader) {
	// Drop a program that was queued but never started.
	select {
	case old := <-r.programs:
		old.Close()
	default:
	}
	r.programs <- file

	r.mu.Lock()
	h := r.current
	r.mu.Unlock()
	if h != nil {
		h.Notify(wasmhost.ProgramChangedEvent{})
	}
}

// Run is the worker loop. It blocks until ctx is cancelled; the caller
// starts it on a dedicated goroutine at boot.
func (r *Runner) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case file := <-r.programs:
			r.execute(ctx, file)
		}
	}
}

// execute runs one program to completion. Errors terminate the guest
// and are logged; the worker then idles until the next program.
func (r *Runner) execute(ctx context.Context, file vfile.Reader) {
	defer file.Close()

	program, err := file.Bytes()
	if err != nil {
		logger.Error("failed to read program", logger.Filename(file.Name()), logger.Err(err))
		return
	}

	host := r.newHost()
	r.mu.Lock()
	r.current = host
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.current = nil
		r.mu.Unlock()
	}()

	logger.Info("starting program",
		logger.Filename(file.Name()),
		logger.ProgramHash(file.Hash()),
		logger.Size(uint64(len(program))),
	)

	err = r.launch(ctx, host, program)
	switch {
	case err == nil:
		logger.Info("program finished", logger.Filename(file.Name()))
	case errors.Is(err, wasmhost.ErrProgramChanged):
		logger.Info("program replaced", logger.Filename(file.Name()))
	default:
		logger.Error("program failed", logger.Filename(file.Name()), logger.Err(err))
	}
}

// launchWazero is the production sandbox: compile, link, run, close.
func launchWazero(ctx context.Context, host *wasmhost.Host, program []byte) error {
	inst, err := wasmhost.NewInstance(ctx, program, host)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := inst.Close(ctx); cerr != nil {
			logger.Warn("sandbox close failed", logger.Err(cerr))
		}
	}()
	return inst.Run(ctx)
}
