package wasm

// MemoryInstance is a linear memory belonging to a module instance or
// registered by the embedder. Buffer always holds PageCount pages.
type MemoryInstance struct {
	Buffer []byte
	Min    uint32
	Max    *uint32
}

// PageCount returns the current size of the memory in pages.
func (m *MemoryInstance) PageCount() uint32 {
	return uint32(len(m.Buffer) / MemoryPageSize)
}

// Grow attempts to extend the memory by delta pages, returning the previous
// page count, or -1 when the result would exceed the declared maximum (or
// the implementation limit of 2^16 pages). Grow never traps.
func (m *MemoryInstance) Grow(delta uint32) int32 {
	current := m.PageCount()
	max := uint32(MemoryMaxPages)
	if m.Max != nil && *m.Max < max {
		max = *m.Max
	}
	if uint64(current)+uint64(delta) > uint64(max) {
		return -1
	}
	m.Buffer = append(m.Buffer, make([]byte, uint64(delta)*MemoryPageSize)...)
	return int32(current)
}

// ViewBytes returns the n bytes at offset, or false when the range is out of
// bounds. The slice aliases the memory so writes through it are visible to
// the module.
func (m *MemoryInstance) ViewBytes(offset, n uint32) ([]byte, bool) {
	if uint64(offset)+uint64(n) > uint64(len(m.Buffer)) {
		return nil, false
	}
	return m.Buffer[offset : offset+n], true
}
