package signature

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/syncbridge"
	"github.com/wippyai/syncbridge/errors"
)

// Lowerer supplies the runtime half of argument conversion.
type Lowerer interface {
	// Handle returns the handle exposing host object v as native type typeName.
	Handle(typeName string, v any) (uint32, error)
	// Bytes copies b into runtime memory and returns its location.
	Bytes(b []byte) (ptr, length uint32, err error)
}

// Lower converts bound slots into the guest's flat calling convention.
// Slots without a marshaling rule lower to a single zero.
func Lower(slots []Slot, l Lowerer) ([]uint64, error) {
	params := make([]uint64, 0, len(slots)+2)
	for _, s := range slots {
		var err error
		params, err = lowerSlot(params, s, l)
		if err != nil {
			return nil, err
		}
	}
	return params, nil
}

func lowerSlot(params []uint64, s Slot, l Lowerer) ([]uint64, error) {
	if !s.Kind.Passed() {
		return params, nil
	}
	switch s.Kind {
	case KindHandle:
		if s.Value == nil {
			return append(params, 0), nil
		}
		h, err := l.Handle(strings.TrimSuffix(strings.TrimPrefix(s.Type, "const "), "*"), s.Value)
		if err != nil {
			return nil, errors.New(errors.PhaseMarshal, errors.KindRegistration).
				Path(s.Name).CType(s.Type).Cause(err).Build()
		}
		return append(params, uint64(h)), nil

	case KindBool:
		b, ok := s.Value.(bool)
		if !ok && s.Value != nil {
			return nil, errors.TypeMismatch(errors.PhaseMarshal, []string{s.Name}, s.Type, s.Value)
		}
		if b {
			return append(params, 1), nil
		}
		return append(params, 0), nil

	case KindBuffer, KindString:
		var data []byte
		switch v := s.Value.(type) {
		case nil:
			return append(params, 0, 0), nil
		case []byte:
			data = v
		case string:
			data = []byte(v)
		default:
			return nil, errors.TypeMismatch(errors.PhaseMarshal, []string{s.Name}, s.Type, s.Value)
		}
		ptr, n, err := l.Bytes(data)
		if err != nil {
			return nil, errors.New(errors.PhaseMarshal, errors.KindAllocation).
				Path(s.Name).CType(s.Type).Cause(err).Build()
		}
		return append(params, uint64(ptr), uint64(n)), nil

	case KindInt:
		v, ok := toInt64(s.Value)
		if !ok {
			return nil, errors.TypeMismatch(errors.PhaseMarshal, []string{s.Name}, s.Type, s.Value)
		}
		return append(params, uint64(v)), nil

	case KindUserData:
		switch v := s.Value.(type) {
		case nil:
			return append(params, 0), nil
		case syncbridge.Ref:
			return append(params, uint64(v)), nil
		case uint32:
			return append(params, uint64(v)), nil
		default:
			return nil, errors.TypeMismatch(errors.PhaseMarshal, []string{s.Name}, s.Type, s.Value)
		}

	default:
		if s.Value != nil {
			Logger().Debug("passing unresolved argument as nil",
				zap.String("name", s.Name),
				zap.String("type", s.Type))
		}
		return append(params, 0), nil
	}
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, true
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	default:
		return 0, false
	}
}
