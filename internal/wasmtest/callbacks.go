package wasmtest

// Globals exported by CallbackLibrary.
const (
	GlobalCompletions    = "completions"
	GlobalCompletedData  = "completed_data"
	GlobalCompletedCode  = "completed_code"
	GlobalCompletedValue = "completed_value"
	GlobalCompletedErr   = "completed_err"
)

// CallbackLibrary returns a guest that reaches the callback vtable named
// iface through the wasmlib host imports. Besides the allocator pair of
// NativeLibrary it exports:
//
//	invoke(index, h i64, ptr, len, st) -> i64        iface.call
//	invoke_async(index, h i64, ptr, len, data i64, st) -> i64
//	                                                 iface.call_async
//	release(h i64, st)                               iface.free
//	free_future(f i64, st)                           future_free
//	completed(st) -> i32                             completions so far
//	ffi_complete(data i64, code, value i64, err i64) records the last
//	                                                 completion in globals
func CallbackLibrary(iface string) []byte {
	const module = "ffi_callbacks"
	m := &Module{
		MemoryPages: 1,
		Imports: []Import{
			{Module: module, Name: iface + ".call", Params: []byte{I32, I64, I32, I32, I32}, Results: []byte{I64}},
			{Module: module, Name: iface + ".call_async", Params: []byte{I32, I64, I32, I32, I64}, Results: []byte{I64}},
			{Module: module, Name: iface + ".free", Params: []byte{I64}},
			{Module: module, Name: "future_free", Params: []byte{I64}},
		},
		Globals: []Global{
			{Name: GlobalHeap, Init: 1024},
			{Name: GlobalBufferFrees},
			{Name: GlobalCompletions},
			{Name: GlobalCompletedData, Type: I64},
			{Name: GlobalCompletedCode},
			{Name: GlobalCompletedValue, Type: I64},
			{Name: GlobalCompletedErr, Type: I64},
		},
		Funcs: []Func{
			bumpAlloc(),
			{Name: "ffi_free", Params: []byte{I32, I32}, Body: increment(1)},
			{
				Name: "invoke", Params: []byte{I32, I64, I32, I32, I32}, Results: []byte{I64},
				Body: []byte{0x20, 0x00, 0x20, 0x01, 0x20, 0x02, 0x20, 0x03, 0x20, 0x04, 0x10, 0x00},
			},
			{
				Name: "invoke_async", Params: []byte{I32, I64, I32, I32, I64, I32}, Results: []byte{I64},
				Body: []byte{0x20, 0x00, 0x20, 0x01, 0x20, 0x02, 0x20, 0x03, 0x20, 0x04, 0x10, 0x01},
			},
			{Name: "release", Params: []byte{I64, I32}, Body: []byte{0x20, 0x00, 0x10, 0x02}},
			{Name: "free_future", Params: []byte{I64, I32}, Body: []byte{0x20, 0x00, 0x10, 0x03}},
			{Name: "completed", Params: []byte{I32}, Results: []byte{I32}, Body: []byte{0x23, 0x02}},
			{
				Name: "ffi_complete", Params: []byte{I64, I32, I64, I64},
				Body: append([]byte{
					0x20, 0x00, 0x24, 0x03,
					0x20, 0x01, 0x24, 0x04,
					0x20, 0x02, 0x24, 0x05,
					0x20, 0x03, 0x24, 0x06,
				}, increment(2)...),
			},
		},
	}
	return m.Encode()
}
