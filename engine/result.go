package engine

import (
	"strconv"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/syncbridge"
	"github.com/wippyai/syncbridge/errors"
	"github.com/wippyai/syncbridge/resource"
	"github.com/wippyai/syncbridge/signature"
)

// decode converts raw guest results into host values:
//
//	bool       i32           -> bool
//	int        i32 or i64    -> int64
//	userdata   i32           -> syncbridge.Ref
//	handle     i32           -> host object
//	buffer     i64 ptr<<32|n -> []byte copy, nil for 0
func (g *Guest) decode(export string, raw []uint64, types []api.ValueType, kinds []signature.Kind) ([]any, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	if len(raw) < len(kinds) || len(types) < len(kinds) {
		return nil, errors.New(errors.PhaseResult, errors.KindTypeMismatch).
			Path(export).
			Detail("export returns %d values, want %d", len(raw), len(kinds)).
			Build()
	}

	out := make([]any, len(kinds))
	for i, k := range kinds {
		v, err := g.decodeOne(k, raw[i], types[i])
		if err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.Path = append([]string{export}, e.Path...)
			}
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (g *Guest) decodeOne(k signature.Kind, raw uint64, t api.ValueType) (any, error) {
	mismatch := func() error {
		return errors.New(errors.PhaseResult, errors.KindTypeMismatch).
			Detail("cannot decode %s from %s", k, api.ValueTypeName(t)).
			Build()
	}

	switch k {
	case signature.KindBool, signature.KindOutBool:
		if t != api.ValueTypeI32 {
			return nil, mismatch()
		}
		return uint32(raw) != 0, nil

	case signature.KindInt:
		switch t {
		case api.ValueTypeI32:
			return int64(int32(uint32(raw))), nil
		case api.ValueTypeI64:
			return int64(raw), nil
		}
		return nil, mismatch()

	case signature.KindUserData:
		if t != api.ValueTypeI32 {
			return nil, mismatch()
		}
		return syncbridge.Ref(uint32(raw)), nil

	case signature.KindHandle:
		if t != api.ValueTypeI32 {
			return nil, mismatch()
		}
		if raw == 0 {
			return nil, nil
		}
		v, ok := g.handles.Get(resource.Handle(uint32(raw)))
		if !ok {
			return nil, errors.NotFound(errors.PhaseResult, "handle", strconv.FormatUint(raw, 10))
		}
		return v, nil

	case signature.KindBuffer, signature.KindString, signature.KindOutBuffer:
		if t != api.ValueTypeI64 {
			return nil, mismatch()
		}
		ptr, n := unpack(raw)
		if ptr == 0 && n == 0 {
			return []byte(nil), nil
		}
		return g.mem.ReadCopy(ptr, n)

	default:
		return nil, errors.Unsupported(errors.PhaseResult, "result kind "+k.String())
	}
}
