package engine

import (
	"fmt"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/blob"
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/wasm"
)

// memoryPlan is the linear memory the env module defines for the guest.
type memoryPlan struct {
	maxPages *uint32
	minPages uint32
}

// envModule is a synthesized core module named "env" that provides the
// guest's imports. Host functions come in from HostModuleName and are
// re-exported under their own names; wazero host modules cannot define
// memories, so the memory is declared here.
type envModule struct {
	memory  *memoryPlan
	code    []byte
	stubbed []string
}

type envRequest struct {
	guest               *wasm.Module
	maxMemoryBytes      *uint32
	hosts               []wasmexecutor.HostFunction
	heapPages           uint32
	allowMissingImports bool
}

// buildEnvModule checks every guest import against the host functions and
// the memory plan and encodes the env module. It returns nil when the guest
// imports nothing and no host functions are registered.
func buildEnvModule(req envRequest) (*envModule, error) {
	hostTypes := make(map[string]wasm.FuncType, len(req.hosts))
	for _, h := range req.hosts {
		hostTypes[h.Name] = hostFuncType(h.Signature)
	}

	out := &envModule{}
	var missing []wasm.Import
	seenMissing := make(map[string]bool)

	for _, imp := range req.guest.Imports {
		name := imp.Module + "." + imp.Name
		if imp.Module != blob.ImportModule {
			return nil, errors.ImportBinding(name, fmt.Errorf("imports must come from the %s namespace", blob.ImportModule))
		}
		switch imp.Desc.Kind {
		case wasm.KindFunc:
			if int(imp.Desc.TypeIdx) >= len(req.guest.Types) {
				return nil, errors.ImportBinding(name, fmt.Errorf("invalid type index %d", imp.Desc.TypeIdx))
			}
			ft := req.guest.Types[imp.Desc.TypeIdx]
			if ht, ok := hostTypes[imp.Name]; ok {
				if !ht.Equal(ft) {
					return nil, errors.ImportBinding(name, fmt.Errorf("signature mismatch: guest expects %s, host provides %s", ft, ht))
				}
				continue
			}
			if !req.allowMissingImports {
				return nil, errors.ImportBinding(name, fmt.Errorf("no host function provides %s", ft))
			}
			if !seenMissing[imp.Name] {
				seenMissing[imp.Name] = true
				missing = append(missing, imp)
			}
		case wasm.KindMemory:
			if imp.Name != blob.MemoryName {
				return nil, errors.ImportBinding(name, fmt.Errorf("memory must be imported as %s.%s", blob.ImportModule, blob.MemoryName))
			}
			plan, err := planMemory(imp.Desc.Memory.Limits, req.heapPages, req.maxMemoryBytes)
			if err != nil {
				return nil, errors.ImportBinding(name, err)
			}
			out.memory = plan
		default:
			return nil, errors.ImportBinding(name, fmt.Errorf("unsupported import kind %d", imp.Desc.Kind))
		}
	}

	if len(req.hosts) == 0 && len(missing) == 0 && out.memory == nil {
		return nil, nil
	}

	m := &wasm.Module{}
	for i, h := range req.hosts {
		m.Imports = append(m.Imports, wasm.Import{
			Module: HostModuleName,
			Name:   h.Name,
			Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: m.AddType(hostTypes[h.Name])},
		})
		m.Exports = append(m.Exports, wasm.Export{Name: h.Name, Kind: wasm.KindFunc, Idx: uint32(i)})
	}
	for i, imp := range missing {
		m.Funcs = append(m.Funcs, m.AddType(req.guest.Types[imp.Desc.TypeIdx]))
		m.Code = append(m.Code, wasm.FuncBody{Code: []byte{wasm.OpUnreachable, wasm.OpEnd}})
		m.Exports = append(m.Exports, wasm.Export{Name: imp.Name, Kind: wasm.KindFunc, Idx: uint32(len(req.hosts) + i)})
		out.stubbed = append(out.stubbed, imp.Name)
	}
	if out.memory != nil {
		limits := wasm.Limits{Min: uint64(out.memory.minPages)}
		if out.memory.maxPages != nil {
			maxPages := uint64(*out.memory.maxPages)
			limits.Max = &maxPages
		}
		m.Memories = append(m.Memories, wasm.MemoryType{Limits: limits})
		m.Exports = append(m.Exports, wasm.Export{Name: blob.MemoryName, Kind: wasm.KindMemory, Idx: 0})
	}

	out.code = m.Encode()
	return out, nil
}

// planMemory sizes the host-defined memory: at least heapPages and the
// import's minimum, at most the configured and declared maximums.
func planMemory(imported wasm.Limits, heapPages uint32, maxMemoryBytes *uint32) (*memoryPlan, error) {
	if imported.Memory64 || imported.Shared {
		return nil, fmt.Errorf("64-bit and shared memories are not supported")
	}
	if imported.Min > MemoryLimitPages {
		return nil, fmt.Errorf("import requires %d pages, limit is %d", imported.Min, MemoryLimitPages)
	}

	plan := &memoryPlan{minPages: max(heapPages, uint32(imported.Min))}

	var maxPages *uint32
	if maxMemoryBytes != nil {
		p := *maxMemoryBytes / PageSize
		maxPages = &p
	}
	if imported.Max != nil {
		declared := uint32(min(*imported.Max, MemoryLimitPages))
		if maxPages == nil || declared < *maxPages {
			maxPages = &declared
		}
	}
	if maxPages != nil && plan.minPages > *maxPages {
		return nil, fmt.Errorf("initial memory of %d pages exceeds maximum of %d pages", plan.minPages, *maxPages)
	}
	plan.maxPages = maxPages
	return plan, nil
}

func hostFuncType(sig wasmexecutor.Signature) wasm.FuncType {
	ft := wasm.FuncType{
		Params:  make([]wasm.ValType, len(sig.Params)),
		Results: make([]wasm.ValType, len(sig.Results)),
	}
	for i, t := range sig.Params {
		ft.Params[i] = wasmValType(t)
	}
	for i, t := range sig.Results {
		ft.Results[i] = wasmValType(t)
	}
	return ft
}

func wasmValType(t wasmexecutor.ValueType) wasm.ValType {
	switch t {
	case wasmexecutor.I32:
		return wasm.ValI32
	case wasmexecutor.I64:
		return wasm.ValI64
	case wasmexecutor.F32:
		return wasm.ValF32
	case wasmexecutor.F64:
		return wasm.ValF64
	}
	return 0
}
