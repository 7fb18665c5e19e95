package engine

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/syncbridge"
	"github.com/wippyai/syncbridge/errors"
)

// Memory wraps the guest's linear memory.
type Memory struct {
	mem api.Memory
}

func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	if m.mem == nil {
		return nil, errors.Unsupported(errors.PhaseResult, "guest exports no memory")
	}
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseResult, nil, offset, length)
	}
	return data, nil
}

// ReadCopy reads length bytes at offset into a fresh slice.
func (m *Memory) ReadCopy(offset uint32, length uint32) ([]byte, error) {
	data, err := m.Read(offset, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if m.mem == nil {
		return errors.Unsupported(errors.PhaseMarshal, "guest exports no memory")
	}
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseMarshal, nil, offset, uint32(len(data)))
	}
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	if m.mem == nil {
		return 0, errors.Unsupported(errors.PhaseResult, "guest exports no memory")
	}
	val, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseResult, nil, offset, 4)
	}
	return val, nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if m.mem == nil {
		return errors.Unsupported(errors.PhaseMarshal, "guest exports no memory")
	}
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseMarshal, nil, offset, 4)
	}
	return nil
}

func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

// allocator calls the guest's cabi_realloc. Calls made while the guest is
// running reuse the running call's context.
type allocator struct {
	allocFn  api.Function
	freeFn   api.Function
	ctx      context.Context
	stackBuf [4]uint64
}

func newAllocator(mod api.Module) *allocator {
	return &allocator{
		allocFn: mod.ExportedFunction("cabi_realloc"),
		freeFn:  mod.ExportedFunction("cabi_free"),
	}
}

func (a *allocator) context() context.Context {
	if a.ctx == nil {
		return context.Background()
	}
	return a.ctx
}

func (a *allocator) Alloc(size, align uint32) (uint32, error) {
	if a.allocFn == nil {
		return 0, errors.Unsupported(errors.PhaseMarshal, "guest exports no cabi_realloc")
	}
	a.stackBuf[0] = 0
	a.stackBuf[1] = 0
	a.stackBuf[2] = uint64(align)
	a.stackBuf[3] = uint64(size)
	if err := a.allocFn.CallWithStack(a.context(), a.stackBuf[:]); err != nil {
		return 0, errors.New(errors.PhaseMarshal, errors.KindAllocation).
			Detail("cabi_realloc(%d, %d)", size, align).Cause(err).Build()
	}
	ptr := uint32(a.stackBuf[0])
	if ptr == 0 && size > 0 {
		return 0, errors.AllocationFailed(errors.PhaseMarshal, size, align)
	}
	return ptr, nil
}

func (a *allocator) Free(ptr, size, align uint32) {
	if a.freeFn == nil || ptr == 0 {
		return
	}
	a.stackBuf[0] = uint64(ptr)
	a.stackBuf[1] = uint64(size)
	a.stackBuf[2] = uint64(align)
	if err := a.freeFn.CallWithStack(a.context(), a.stackBuf[:3]); err != nil {
		Logger().Warn("cabi_free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

var (
	_ syncbridge.Memory      = (*Memory)(nil)
	_ syncbridge.MemorySizer = (*Memory)(nil)
	_ syncbridge.Allocator   = (*allocator)(nil)
)
