package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/errors"
)

// HostModuleName is the internal module the host functions are defined in.
// The guest never sees it; the synthesized env module re-exports from it.
const HostModuleName = "env.host"

// memoryResolver returns the memory a host function operates on.
type memoryResolver func(caller api.Module) *Memory

// instantiateHostModule defines every host function in HostModuleName.
func instantiateHostModule(ctx context.Context, rt wazero.Runtime, hosts []wasmexecutor.HostFunction, resolve memoryResolver) (api.Module, error) {
	builder := rt.NewHostModuleBuilder(HostModuleName)
	for _, h := range hosts {
		params, ok := apiValueTypes(h.Signature.Params)
		if !ok {
			return nil, errors.New(errors.PhaseHost, errors.KindUnsupportedValue).
				Name(h.Name).
				Detail("unsupported parameter type in %s", h.Signature).
				Build()
		}
		results, ok := apiValueTypes(h.Signature.Results)
		if !ok {
			return nil, errors.New(errors.PhaseHost, errors.KindUnsupportedValue).
				Name(h.Name).
				Detail("unsupported result type in %s", h.Signature).
				Build()
		}
		builder.NewFunctionBuilder().
			WithName(h.Name).
			WithGoModuleFunction(hostAdapter(h, resolve), params, results).
			Export(h.Name)
	}
	mod, err := builder.Instantiate(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInstantiate, errors.KindImportBinding, err, "instantiate host functions")
	}
	return mod, nil
}

// hostAdapter converts the raw stack to host values, calls the closure and
// writes the results back. Failures panic with the error, which wazero turns
// into a trap that wraps it.
func hostAdapter(h wasmexecutor.HostFunction, resolve memoryResolver) api.GoModuleFunc {
	params := h.Signature.Params
	results := h.Signature.Results
	return func(ctx context.Context, caller api.Module, stack []uint64) {
		args := make([]wasmexecutor.Value, len(params))
		for i, t := range params {
			at, _ := APIValueType(t)
			args[i] = ToValue(at, stack[i])
		}

		var mem wasmexecutor.Memory
		if m := resolve(caller); m != nil {
			mem = m
		}

		out, err := h.Func(ctx, mem, args)
		if err != nil {
			Logger().Debug("host function failed", zap.String("name", h.Name), zap.Error(err))
			panic(err)
		}
		if len(out) != len(results) {
			panic(errors.New(errors.PhaseHost, errors.KindInvocation).
				Name(h.Name).
				Detail("returned %d values, signature declares %d", len(out), len(results)).
				Build())
		}
		for i, v := range out {
			if v.Type() != results[i] {
				panic(errors.New(errors.PhaseHost, errors.KindInvocation).
					Name(h.Name).
					Detail("result %d is %s, signature declares %s", i, v.Type(), results[i]).
					Build())
			}
			stack[i] = FromValue(v)
		}
	}
}

// ValidateHostFunctions checks names and signature types.
func ValidateHostFunctions(hosts []wasmexecutor.HostFunction) error {
	seen := make(map[string]bool, len(hosts))
	for i, h := range hosts {
		if h.Name == "" {
			return errors.InvalidInput(errors.PhaseHost, fmt.Sprintf("host function %d has no name", i))
		}
		if seen[h.Name] {
			return errors.New(errors.PhaseHost, errors.KindInvalidInput).
				Name(h.Name).
				Detail("duplicate host function").
				Build()
		}
		seen[h.Name] = true
		if h.Func == nil {
			return errors.New(errors.PhaseHost, errors.KindInvalidInput).
				Name(h.Name).
				Detail("host function has no implementation").
				Build()
		}
		for _, t := range append(append([]wasmexecutor.ValueType(nil), h.Signature.Params...), h.Signature.Results...) {
			if !t.Valid() {
				return errors.New(errors.PhaseHost, errors.KindUnsupportedValue).
					Name(h.Name).
					Detail("unsupported value type %s", t).
					Build()
			}
		}
	}
	return nil
}
