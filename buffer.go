package secureendpoint

// Buffer is an ordered sequence of byte ranges, the Go analogue of the
// C-core slice buffer: appending, swapping, and splitting a prefix are all
// O(1) (amortized) because Go slices already carry their own
// reference-counted backing array via the garbage collector — there is no
// separate refcount to manage here, only the bookkeeping of which ranges
// belong to the buffer.
//
// A zero-value Buffer is ready to use.
type Buffer struct {
	slices [][]byte
	length int
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Len returns the sum of the lengths of all ranges in the buffer.
func (b *Buffer) Len() int {
	return b.length
}

// Count returns the number of ranges in the buffer.
func (b *Buffer) Count() int {
	return len(b.slices)
}

// At returns the i'th range. It panics if i is out of bounds, like slice
// indexing.
func (b *Buffer) At(i int) []byte {
	return b.slices[i]
}

// Append adds s as a new range at the end of the buffer. The buffer does
// not copy s; the caller must not mutate s afterward.
func (b *Buffer) Append(s []byte) {
	if len(s) == 0 {
		return
	}
	b.slices = append(b.slices, s)
	b.length += len(s)
}

// AppendOwned adds s as a new range, taking ownership of it. In Go this is
// identical to Append — there is no separate ownership transfer to perform
// — but the distinct name documents that the caller is handing over a
// buffer it will not touch again, versus lending a reference it still owns.
func (b *Buffer) AppendOwned(s []byte) {
	b.Append(s)
}

// Reset drops all ranges, releasing the buffer back to empty. The backing
// arrays become eligible for garbage collection once nothing else
// references them, which is this module's equivalent of "release back to
// the quota" for the buffer primitive itself (the owning reservation, if
// any, is released separately — see MemoryOwner).
func (b *Buffer) Reset() {
	b.slices = nil
	b.length = 0
}

// Swap exchanges the contents of b and other.
func (b *Buffer) Swap(other *Buffer) {
	b.slices, other.slices = other.slices, b.slices
	b.length, other.length = other.length, b.length
}

// SplitPrefix removes the first n bytes from b and returns them as a new
// Buffer, mutating b in place. It panics if n exceeds b.Len().
//
// This is the one operation that may allocate beyond the new Buffer header:
// splitting inside a range requires slicing that range into two.
func (b *Buffer) SplitPrefix(n int) *Buffer {
	if n < 0 || n > b.length {
		panic("secureendpoint: SplitPrefix out of range")
	}
	out := &Buffer{}
	if n == 0 {
		return out
	}
	remaining := n
	i := 0
	for i < len(b.slices) && remaining > 0 {
		s := b.slices[i]
		if remaining >= len(s) {
			out.slices = append(out.slices, s)
			remaining -= len(s)
			i++
			continue
		}
		out.slices = append(out.slices, s[:remaining])
		b.slices[i] = s[remaining:]
		remaining = 0
	}
	out.length = n
	b.slices = b.slices[i:]
	b.length -= n
	return out
}

// MoveFirstInto moves the first n bytes of b into dst, appending them as
// new ranges and removing them from b. It panics if n exceeds b.Len().
func (b *Buffer) MoveFirstInto(n int, dst *Buffer) {
	prefix := b.SplitPrefix(n)
	for i := 0; i < prefix.Count(); i++ {
		dst.Append(prefix.At(i))
	}
}

// Bytes copies the full contents of the buffer into a single contiguous
// slice. It is provided for tests and callers that need a flattened view;
// the hot paths in this package never call it, since the whole point of a
// slice buffer is to avoid that copy.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, 0, b.length)
	for _, s := range b.slices {
		out = append(out, s...)
	}
	return out
}
