// Package wasmtest encodes small WebAssembly modules for tests.
//
// NativeLibrary builds a guest that follows the wasmlib calling convention,
// so tests exercise real wazero execution without a compiled artifact.
package wasmtest

// Value types
const (
	I32 byte = 0x7f
	I64 byte = 0x7e
)

const (
	sectionType   = 0x01
	sectionImport = 0x02
	sectionFunc   = 0x03
	sectionMemory = 0x05
	sectionGlobal = 0x06
	sectionExport = 0x07
	sectionCode   = 0x0a
	sectionData   = 0x0b

	exportFunc   = 0x00
	exportMemory = 0x02
	exportGlobal = 0x03
)

// Func is a function with its own type. Body is the instruction sequence
// without the trailing end opcode. Exported under Name when non-empty.
type Func struct {
	Name    string
	Params  []byte
	Results []byte
	Body    []byte
}

// Import is a function imported from the host. Imports take the first
// function indices, ahead of Funcs.
type Import struct {
	Module  string
	Name    string
	Params  []byte
	Results []byte
}

// Global is a mutable global, i32 unless Type says otherwise. Exported
// under Name when non-empty.
type Global struct {
	Name string
	Type byte
	Init int32
}

// Data is an active data segment in memory 0.
type Data struct {
	Offset int32
	Bytes  []byte
}

// Module is the subset of the binary format these tests need.
type Module struct {
	Imports     []Import
	Funcs       []Func
	Globals     []Global
	Data        []Data
	MemoryPages uint32
}

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	imported := uint32(len(m.Imports))
	if types := len(m.Imports) + len(m.Funcs); types > 0 {
		sec := appendU32(nil, uint32(types))
		for _, im := range m.Imports {
			sec = append(sec, 0x60)
			sec = appendVec(sec, im.Params)
			sec = appendVec(sec, im.Results)
		}
		for _, f := range m.Funcs {
			sec = append(sec, 0x60)
			sec = appendVec(sec, f.Params)
			sec = appendVec(sec, f.Results)
		}
		out = appendSection(out, sectionType, sec)
	}

	if len(m.Imports) > 0 {
		sec := appendU32(nil, imported)
		for i, im := range m.Imports {
			sec = appendVec(sec, []byte(im.Module))
			sec = appendVec(sec, []byte(im.Name))
			sec = append(sec, 0x00)
			sec = appendU32(sec, uint32(i))
		}
		out = appendSection(out, sectionImport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := appendU32(nil, uint32(len(m.Funcs)))
		for i := range m.Funcs {
			sec = appendU32(sec, imported+uint32(i))
		}
		out = appendSection(out, sectionFunc, sec)
	}

	if m.MemoryPages > 0 {
		sec := appendU32(nil, 1)
		sec = append(sec, 0x00)
		sec = appendU32(sec, m.MemoryPages)
		out = appendSection(out, sectionMemory, sec)
	}

	if len(m.Globals) > 0 {
		sec := appendU32(nil, uint32(len(m.Globals)))
		for _, g := range m.Globals {
			typ, op := I32, byte(0x41) // i32.const
			if g.Type == I64 {
				typ, op = I64, 0x42 // i64.const
			}
			sec = append(sec, typ, 0x01, op)
			sec = appendS32(sec, g.Init)
			sec = append(sec, 0x0b)
		}
		out = appendSection(out, sectionGlobal, sec)
	}

	var exports []byte
	var count uint32
	if m.MemoryPages > 0 {
		exports = appendExport(exports, "memory", exportMemory, 0)
		count++
	}
	for i, f := range m.Funcs {
		if f.Name != "" {
			exports = appendExport(exports, f.Name, exportFunc, imported+uint32(i))
			count++
		}
	}
	for i, g := range m.Globals {
		if g.Name != "" {
			exports = appendExport(exports, g.Name, exportGlobal, uint32(i))
			count++
		}
	}
	if count > 0 {
		out = appendSection(out, sectionExport, append(appendU32(nil, count), exports...))
	}

	if len(m.Funcs) > 0 {
		sec := appendU32(nil, uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			body := append([]byte{0x00}, f.Body...) // no locals
			body = append(body, 0x0b)
			sec = appendU32(sec, uint32(len(body)))
			sec = append(sec, body...)
		}
		out = appendSection(out, sectionCode, sec)
	}

	if len(m.Data) > 0 {
		sec := appendU32(nil, uint32(len(m.Data)))
		for _, d := range m.Data {
			sec = append(sec, 0x00, 0x41)
			sec = appendS32(sec, d.Offset)
			sec = append(sec, 0x0b)
			sec = appendVec(sec, d.Bytes)
		}
		out = appendSection(out, sectionData, sec)
	}

	return out
}

func appendSection(out []byte, id byte, data []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(data)))
	return append(out, data...)
}

func appendVec(out []byte, items []byte) []byte {
	out = appendU32(out, uint32(len(items)))
	return append(out, items...)
}

func appendExport(out []byte, name string, kind byte, idx uint32) []byte {
	out = appendU32(out, uint32(len(name)))
	out = append(out, name...)
	out = append(out, kind)
	return appendU32(out, idx)
}

// appendU32 appends v as unsigned LEB128.
func appendU32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}

// appendS32 appends v as signed LEB128.
func appendS32(out []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
