package wasmtest

// Globals exported by NativeLibrary.
const (
	GlobalHeap        = "heap"
	GlobalBufferFrees = "buffer_frees"
	GlobalObjects     = "objects"
	GlobalClones      = "clones"
	GlobalObjectFrees = "object_frees"
)

// ErrorPayload is the payload the fail and panic exports report.
const ErrorPayload = "oops"

const payloadAddr = 16

// NativeLibrary returns a guest following the wasmlib calling convention.
// It exports one page of memory and:
//
//	ffi_alloc(size) -> ptr           bump allocator, 8-byte aligned
//	ffi_free(ptr, size)              counts frees in buffer_frees
//	add(a, b, st) -> a+b
//	echo(ptr, len, st) -> i64        returns its argument buffer packed
//	fail(st)                         status 1 with ErrorPayload
//	panic(st)                        status 2 with ErrorPayload
//	bad_status(st)                   status 9
//	abort(st)                        traps
//	obj_new(st) -> i64               handles count up from 1
//	obj_clone(h, st) -> i64          returns h, counts in clones
//	obj_free(h, st)                  counts in object_frees
func NativeLibrary() []byte {
	m := &Module{
		MemoryPages: 1,
		Globals: []Global{
			{Name: GlobalHeap, Init: 1024},
			{Name: GlobalBufferFrees},
			{Name: GlobalObjects},
			{Name: GlobalClones},
			{Name: GlobalObjectFrees},
		},
		Data: []Data{{Offset: payloadAddr, Bytes: []byte(ErrorPayload)}},
		Funcs: []Func{
			bumpAlloc(),
			{Name: "ffi_free", Params: []byte{I32, I32}, Body: increment(1)},
			{
				Name: "add", Params: []byte{I32, I32, I32}, Results: []byte{I32},
				Body: []byte{0x20, 0x00, 0x20, 0x01, 0x6a},
			},
			{
				Name: "echo", Params: []byte{I32, I32, I32}, Results: []byte{I64},
				Body: []byte{
					0x20, 0x00, 0xad, 0x42, 0x20, 0x86, // u64(ptr) << 32
					0x20, 0x01, 0xad, 0x84, // | u64(len)
				},
			},
			{Name: "fail", Params: []byte{I32}, Body: setStatus(0, 1, true)},
			{Name: "panic", Params: []byte{I32}, Body: setStatus(0, 2, true)},
			{Name: "bad_status", Params: []byte{I32}, Body: setStatus(0, 9, false)},
			{Name: "abort", Params: []byte{I32}, Body: []byte{0x00}},
			{
				Name: "obj_new", Params: []byte{I32}, Results: []byte{I64},
				Body: append(increment(2), 0x23, 0x02, 0xad),
			},
			{
				Name: "obj_clone", Params: []byte{I64, I32}, Results: []byte{I64},
				Body: append(increment(3), 0x20, 0x00),
			},
			{Name: "obj_free", Params: []byte{I64, I32}, Body: increment(4)},
		},
	}
	return m.Encode()
}

// bumpAlloc is ffi_alloc over the heap pointer in global 0.
func bumpAlloc() Func {
	return Func{
		Name: "ffi_alloc", Params: []byte{I32}, Results: []byte{I32},
		Body: []byte{
			0x23, 0x00, // global.get heap (result)
			0x23, 0x00, // global.get heap
			0x20, 0x00, 0x41, 0x07, 0x6a, 0x41, 0x78, 0x71, // (size + 7) & -8
			0x6a, 0x24, 0x00, // heap += aligned size
		},
	}
}

// increment adds one to global idx.
func increment(idx byte) []byte {
	return []byte{0x23, idx, 0x41, 0x01, 0x6a, 0x24, idx}
}

// setStatus writes code into the status record addressed by local st,
// optionally pointing it at ErrorPayload.
func setStatus(st byte, code int8, payload bool) []byte {
	body := []byte{0x20, st, 0x41, byte(code), 0x3a, 0x00, 0x00} // i32.store8 code
	if payload {
		body = append(body,
			0x20, st, 0x41, payloadAddr, 0x36, 0x02, 0x04, // errPtr
			0x20, st, 0x41, byte(len(ErrorPayload)), 0x36, 0x02, 0x08, // errLen
		)
	}
	return body
}
