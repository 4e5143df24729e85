// Package errors provides structured error types for the executor.
//
// Errors are categorized by Phase (which step of load, instantiate or call
// failed) and Kind (the error category callers branch on). Each Kind has a
// sentinel that matches regardless of phase:
//
//	if errors.Is(err, execerrors.ErrImportBinding) { ... }
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseInvoke, errors.KindInvocation).
//		Name("main").
//		Detail("export has signature %s", sig).
//		Build()
//
// Host functions report failures with HostCode, which survives the guest
// trap and can be recovered with errors.As.
package errors
