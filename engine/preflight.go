package engine

import (
	"fmt"
	"slices"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/wasm"
)

// preflight decodes the guest binary and checks its imports against the
// modules a guest is linked with, so a bad plugin fails at load time with
// the offending import named instead of at instantiation.
func (g *Guest) preflight(bin []byte) error {
	m, err := wasm.ParseModuleValidate(bin)
	if err != nil {
		return errors.Load("guest is not a wasm module", err)
	}

	host := make(map[string]HostFunc)
	for _, f := range append(g.builtins(), g.cfg.HostFuncs...) {
		// duplicates are reported by Boot
		if _, ok := host[f.Name]; !ok {
			host[f.Name] = f
		}
	}

	fn := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		idx := fn
		fn++
		switch imp.Module {
		case wasiModule:
		case HostModule:
			f, ok := host[imp.Name]
			if !ok {
				return errors.Load(fmt.Sprintf("guest imports undefined host function %s.%s", imp.Module, imp.Name), nil)
			}
			ft := m.GetFuncType(idx)
			if ft == nil || !sameTypes(ft.Params, f.Params) || !sameTypes(ft.Results, f.Results) {
				return errors.Load(fmt.Sprintf("guest import %s.%s has the wrong signature", imp.Module, imp.Name), nil)
			}
		default:
			return errors.Load(fmt.Sprintf("guest imports %s.%s from unknown module", imp.Module, imp.Name), nil)
		}
	}
	return nil
}

func sameTypes(got []wasm.ValType, want []api.ValueType) bool {
	return slices.EqualFunc(got, want, func(a wasm.ValType, b api.ValueType) bool {
		return byte(a) == b
	})
}
