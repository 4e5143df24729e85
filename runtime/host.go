package runtime

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/engine"
	"github.com/wippyai/wasm-executor/errors"
)

// HostRegistry collects host functions for the env namespace in
// registration order.
type HostRegistry struct {
	funcs map[string]int
	list  []wasmexecutor.HostFunction
	mu    sync.RWMutex
}

func NewHostRegistry() *HostRegistry {
	return &HostRegistry{funcs: make(map[string]int)}
}

// Register adds a host function with an explicit signature.
func (r *HostRegistry) Register(name string, sig wasmexecutor.Signature, fn wasmexecutor.HostFunc) error {
	h := wasmexecutor.HostFunction{Name: name, Signature: sig, Func: fn}
	if err := engine.ValidateHostFunctions([]wasmexecutor.HostFunction{h}); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.funcs[name]; ok {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Name(name).
			Detail("host function already registered").
			Build()
	}
	r.funcs[name] = len(r.list)
	r.list = append(r.list, h)
	return nil
}

// RegisterFunc adds a typed Go function. Its signature is derived by
// reflection: an optional leading context.Context, an optional
// wasmexecutor.Memory, then int32, uint32, int64, uint64, float32 or
// float64 parameters; results use the same numeric types with an optional
// trailing error.
func (r *HostRegistry) RegisterFunc(name string, fn any) error {
	if name == "" {
		return errors.InvalidInput(errors.PhaseHost, "function name cannot be empty")
	}
	sig, call, err := reflectHostFunc(fn)
	if err != nil {
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Name(name).
			Cause(err).
			Detail("unsupported handler").
			Build()
	}
	return r.Register(name, sig, call)
}

// RegisterHost registers every exported method of h. Method names are
// converted from PascalCase to snake_case (AddOne -> add_one).
func (r *HostRegistry) RegisterHost(h any) error {
	rv := reflect.ValueOf(h)
	if !rv.IsValid() {
		return errors.InvalidInput(errors.PhaseHost, "host cannot be nil")
	}
	rt := rv.Type()
	for i := 0; i < rt.NumMethod(); i++ {
		method := rt.Method(i)
		if !method.IsExported() {
			continue
		}
		if err := r.RegisterFunc(toSnakeCase(method.Name), rv.Method(i).Interface()); err != nil {
			return err
		}
	}
	return nil
}

// Functions returns a copy of the registered functions.
func (r *HostRegistry) Functions() []wasmexecutor.HostFunction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]wasmexecutor.HostFunction(nil), r.list...)
}

// Len returns the number of registered functions.
func (r *HostRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.list)
}

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	memoryType  = reflect.TypeOf((*wasmexecutor.Memory)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

func valueTypeOf(t reflect.Type) (wasmexecutor.ValueType, bool) {
	switch t.Kind() {
	case reflect.Int32, reflect.Uint32:
		return wasmexecutor.I32, true
	case reflect.Int64, reflect.Uint64:
		return wasmexecutor.I64, true
	case reflect.Float32:
		return wasmexecutor.F32, true
	case reflect.Float64:
		return wasmexecutor.F64, true
	}
	return 0, false
}

func reflectHostFunc(fn any) (wasmexecutor.Signature, wasmexecutor.HostFunc, error) {
	var sig wasmexecutor.Signature
	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return sig, nil, fmt.Errorf("handler must be a function, got %T", fn)
	}
	ft := rv.Type()
	if ft.IsVariadic() {
		return sig, nil, fmt.Errorf("variadic handlers are not supported")
	}

	in := 0
	wantCtx := in < ft.NumIn() && ft.In(in) == contextType
	if wantCtx {
		in++
	}
	wantMem := in < ft.NumIn() && ft.In(in) == memoryType
	if wantMem {
		in++
	}
	firstParam := in
	for ; in < ft.NumIn(); in++ {
		vt, ok := valueTypeOf(ft.In(in))
		if !ok {
			return sig, nil, fmt.Errorf("parameter %d has unsupported type %s", in, ft.In(in))
		}
		sig.Params = append(sig.Params, vt)
	}

	numOut := ft.NumOut()
	returnsErr := numOut > 0 && ft.Out(numOut-1) == errorType
	if returnsErr {
		numOut--
	}
	for i := 0; i < numOut; i++ {
		vt, ok := valueTypeOf(ft.Out(i))
		if !ok {
			return sig, nil, fmt.Errorf("result %d has unsupported type %s", i, ft.Out(i))
		}
		sig.Results = append(sig.Results, vt)
	}

	call := func(ctx context.Context, mem wasmexecutor.Memory, params []wasmexecutor.Value) ([]wasmexecutor.Value, error) {
		args := make([]reflect.Value, 0, ft.NumIn())
		if wantCtx {
			args = append(args, reflect.ValueOf(&ctx).Elem())
		}
		if wantMem {
			args = append(args, reflect.ValueOf(&mem).Elem())
		}
		for i, p := range params {
			args = append(args, toReflect(p, ft.In(firstParam+i)))
		}

		out := rv.Call(args)
		if returnsErr {
			if errv := out[len(out)-1]; !errv.IsNil() {
				return nil, errv.Interface().(error)
			}
			out = out[:len(out)-1]
		}
		results := make([]wasmexecutor.Value, len(out))
		for i, o := range out {
			results[i] = fromReflect(o, sig.Results[i])
		}
		return results, nil
	}
	return sig, call, nil
}

func toReflect(v wasmexecutor.Value, t reflect.Type) reflect.Value {
	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Int32, reflect.Int64:
		if v.Type() == wasmexecutor.I32 {
			out.SetInt(int64(v.I32()))
		} else {
			out.SetInt(v.I64())
		}
	case reflect.Uint32, reflect.Uint64:
		out.SetUint(v.Bits())
	case reflect.Float32:
		out.SetFloat(float64(v.F32()))
	case reflect.Float64:
		out.SetFloat(v.F64())
	}
	return out
}

func fromReflect(v reflect.Value, t wasmexecutor.ValueType) wasmexecutor.Value {
	switch t {
	case wasmexecutor.I32:
		if v.CanInt() {
			return wasmexecutor.ValueI32(int32(v.Int()))
		}
		return wasmexecutor.ValueI32(int32(uint32(v.Uint())))
	case wasmexecutor.I64:
		if v.CanInt() {
			return wasmexecutor.ValueI64(v.Int())
		}
		return wasmexecutor.ValueI64(int64(v.Uint()))
	case wasmexecutor.F32:
		return wasmexecutor.ValueF32(float32(v.Float()))
	}
	return wasmexecutor.ValueF64(v.Float())
}

// toSnakeCase converts PascalCase to snake_case.
// Handles acronyms: GetHTTPServer -> get_http_server
func toSnakeCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	runes := []rune(s)
	var result strings.Builder

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if unicode.IsUpper(r) {
			acronymEnd := i + 1
			for acronymEnd < len(runes) && unicode.IsUpper(runes[acronymEnd]) {
				acronymEnd++
			}

			if acronymEnd > i+1 {
				// Last uppercase before lowercase starts next word, not part of acronym
				if acronymEnd < len(runes) && unicode.IsLower(runes[acronymEnd]) {
					acronymEnd--
				}
			}

			if i > 0 {
				result.WriteByte('_')
			}

			for j := i; j < acronymEnd; j++ {
				result.WriteRune(unicode.ToLower(runes[j]))
			}
			i = acronymEnd - 1
		} else {
			result.WriteRune(r)
		}
	}
	return result.String()
}
