package syncbridge

// Ref is a reference to a value living inside the guest, such as the user
// data returned by an initialize callback. The guest decides what the
// number means; 0 is nil.
type Ref uint32

// Memory represents the guest's linear memory
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU32(offset uint32) (uint32, error)
	WriteU32(offset uint32, value uint32) error
}

// MemorySizer provides the current size of guest memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// Allocator allocates memory in the guest's linear memory
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}
