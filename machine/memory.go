package machine

import "github.com/forkvm/evmcore/word"

// Memory is byte-addressable, zero-initialized on growth, and bounded above
// by a configured limit. Its size is always a multiple of 32 bytes (the EVM
// word size) and never shrinks within a frame.
type Memory struct {
	store []byte
	limit int
}

// NewMemory allocates memory bounded by limit bytes.
func NewMemory(limit int) *Memory {
	return &Memory{limit: limit}
}

// Len returns the current byte size of memory.
func (m *Memory) Len() int { return len(m.store) }

// Data returns the underlying buffer; callers must not mutate it directly.
func (m *Memory) Data() []byte { return m.store }

// wordSize rounds n up to the next multiple of 32.
func wordSize(n uint64) uint64 {
	return (n + 31) / 32 * 32
}

// Resize grows memory to at least size bytes, rounded up to a word boundary.
// It is a no-op if memory is already at least that large.
func (m *Memory) Resize(size uint64) error {
	if size == 0 {
		return nil
	}
	rounded := wordSize(size)
	if rounded > uint64(m.limit) {
		return Err(OutOfOffset)
	}
	if int(rounded) <= len(m.store) {
		return nil
	}
	grown := make([]byte, rounded)
	copy(grown, m.store)
	m.store = grown
	return nil
}

// accessSize computes the byte range touched by an offset+len access,
// reporting overflow, matching the EVM's 64-bit memory-size arithmetic.
func accessSize(offset, length word.Word) (uint64, bool) {
	if length.IsZero() {
		return 0, false
	}
	if !offset.IsUint64() || !length.IsUint64() {
		return 0, true
	}
	off, ln := offset.Uint64(), length.Uint64()
	end := off + ln
	if end < off {
		return 0, true
	}
	return end, false
}

// Set writes data into memory at offset, growing memory first if needed.
func (m *Memory) Set(offset uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if err := m.Resize(offset + uint64(len(data))); err != nil {
		return err
	}
	copy(m.store[offset:], data)
	return nil
}

// Get reads size bytes starting at offset, zero-padding past the end of the
// current buffer rather than growing it (read-only views never resize).
func (m *Memory) Get(offset, size uint64) []byte {
	out := make([]byte, size)
	if offset >= uint64(len(m.store)) {
		return out
	}
	end := offset + size
	if end > uint64(len(m.store)) {
		end = uint64(len(m.store))
	}
	copy(out, m.store[offset:end])
	return out
}

// Copy copies a memory-to-memory range, first growing memory to cover both
// the source and the destination range.
func (m *Memory) Copy(dst, src, length uint64) error {
	if length == 0 {
		return nil
	}
	need := dst + length
	if s := src + length; s > need {
		need = s
	}
	if err := m.Resize(need); err != nil {
		return err
	}
	copy(m.store[dst:dst+length], m.store[src:src+length])
	return nil
}
