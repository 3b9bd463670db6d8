// Package arena implements a per-request bump allocator.
//
// Each ConnectionWorker owns exactly one Arena for the lifetime of a single
// request/response cycle. Handler code that needs request-scoped scratch
// space gets it from the arena instead of the garbage collector, so there is
// nothing to free when the worker exits: the whole arena is simply dropped.
package arena

// defaultBlockSize is the size of the first block handed out by a fresh
// Arena. Requests that need more grow the arena with additional blocks
// rather than failing, since the wire layer already caps a frame payload at
// wire.MaxFrameSize before an Arena is ever asked to hold it.
const defaultBlockSize = 16 << 10 // 16 KiB

// Arena is a single-threaded bump allocator. It is not safe for concurrent
// use: a worker's arena is only ever touched by that worker's goroutine.
type Arena struct {
	blocks [][]byte
	cur    []byte
	used   int
}

// New creates an Arena with no memory reserved yet; the first allocation
// lazily grabs a block.
func New() *Arena {
	return &Arena{}
}

// Alloc returns a zeroed byte slice of length n backed by the arena. The
// slice is valid until Reset or the Arena is discarded.
func (a *Arena) Alloc(n int) []byte {
	if n == 0 {
		return nil
	}
	if a.cur == nil || len(a.cur)-a.used < n {
		size := defaultBlockSize
		if n > size {
			size = n
		}
		a.cur = make([]byte, size)
		a.used = 0
		a.blocks = append(a.blocks, a.cur)
	}
	b := a.cur[a.used : a.used+n : a.used+n]
	a.used += n
	return b
}

// Copy allocates len(p) bytes from the arena and copies p into them,
// returning the arena-owned copy. Handlers use this to retain request bytes
// (e.g. a procedure name) past the point where the original buffer may be
// reused.
func (a *Arena) Copy(p []byte) []byte {
	dst := a.Alloc(len(p))
	copy(dst, p)
	return dst
}

// Reset releases all blocks back to nil, making the Arena ready for reuse.
// Each rpcserver Worker creates its own Arena with New and drops it when the
// worker exits; workers do not call Reset.
func (a *Arena) Reset() {
	a.blocks = nil
	a.cur = nil
	a.used = 0
}

// Bytes reports the full length of every earlier block plus the bytes used
// so far in the current block, for diagnostics/metrics only. Unused space
// left at the end of an earlier block is counted as consumed.
func (a *Arena) Bytes() int {
	total := 0
	for i, b := range a.blocks {
		if i == len(a.blocks)-1 {
			total += a.used
		} else {
			total += len(b)
		}
	}
	return total
}
