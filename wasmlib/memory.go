package wasmlib

import (
	"github.com/tetratelabs/wazero/api"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/errors"
)

// Memory is the exported linear memory of a loaded library.
type Memory struct {
	mem api.Memory
}

// Read returns a view of guest memory. The view is invalidated by the next
// call into the library; callers that keep data must copy it.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, m.outOfBounds(offset, length)
	}
	return data, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return m.outOfBounds(offset, uint32(len(data)))
	}
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, m.outOfBounds(offset, 4)
	}
	return v, nil
}

func (m *Memory) WriteU32(offset uint32, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return m.outOfBounds(offset, 4)
	}
	return nil
}

// Size returns the memory size in bytes.
func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

func (m *Memory) outOfBounds(offset, length uint32) *errors.Error {
	return errors.New(errors.PhaseCall, errors.KindOutOfBounds).
		Value(offset).
		Detail("guest memory access [%d, %d) exceeds %d bytes", offset, uint64(offset)+uint64(length), m.Size()).
		Build()
}

var _ ffiruntime.Memory = (*Memory)(nil)
