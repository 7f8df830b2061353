package ffiruntime

// Handle is an opaque 64-bit token. On the forward path it names a native
// resource; on the reverse path it names a host implementation registered in a
// handle table. Zero is never a valid handle.
type Handle uint64

// Memory is foreign linear memory that buffers are staged through.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// Allocator allocates in foreign linear memory.
type Allocator interface {
	Alloc(size uint32) (uint32, error)
	Free(ptr, size uint32)
}
