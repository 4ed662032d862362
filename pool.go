package ncfs

import (
	"sync"
)

// bufferPool manages reusable staging buffers for data reads.
//
// A data read serializes whole elements, so its staging buffer is the
// request size plus up to two partial elements. Size classes leave room
// for that slack above the kernel's usual request sizes.
type bufferPool struct {
	pools []*sync.Pool
	sizes []int
}

// slack covers the partial elements at both ends of a read; the widest
// element is a 25 byte text double.
const slack = 64

// newBufferPool creates a new buffer pool with predefined size classes.
//
// Size classes:
//   - 4KB: attribute files, small reads
//   - 64KB: medium reads
//   - 128KB: MaxReadahead sized reads
//   - 1MB: large sequential reads
func newBufferPool() *bufferPool {
	sizes := []int{
		4*1024 + slack,
		64*1024 + slack,
		128*1024 + slack,
		1024*1024 + slack,
	}

	pools := make([]*sync.Pool, len(sizes))
	for i, size := range sizes {
		pools[i] = &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		}
	}

	return &bufferPool{
		pools: pools,
		sizes: sizes,
	}
}

// Get retrieves a buffer of exactly size bytes backed by the smallest
// class that fits. Requests above the largest class are allocated and
// never pooled.
func (p *bufferPool) Get(size int) []byte {
	for i, poolSize := range p.sizes {
		if size <= poolSize {
			bufPtr := p.pools[i].Get().(*[]byte)
			return (*bufPtr)[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer obtained from Get to its class.
func (p *bufferPool) Put(buf []byte) {
	capacity := cap(buf)
	for i, size := range p.sizes {
		if capacity == size {
			fullBuf := buf[:capacity]
			p.pools[i].Put(&fullBuf)
			return
		}
	}
}

// globalBufferPool is the shared buffer pool for all data reads
var globalBufferPool = newBufferPool()

// GetBuffer retrieves a buffer from the global pool
func GetBuffer(size int) []byte {
	return globalBufferPool.Get(size)
}

// PutBuffer returns a buffer to the global pool
func PutBuffer(buf []byte) {
	globalBufferPool.Put(buf)
}
