// Package pool provides reusable transfer buffers.
//
// Downloads copy data in fixed-size chunks; with many workers streaming
// at once, pooling the chunks keeps allocations flat.
package pool

import (
	"sync"
)

// ChunkSize is the size of one download chunk (1KB).
const ChunkSize = 1024

// BufferPool manages reusable buffers of one fixed size.
type BufferPool struct {
	size int
	pool *sync.Pool
}

// NewBufferPool creates a pool of buffers of the given size.
// A size of 0 or less uses ChunkSize.
func NewBufferPool(size int) *BufferPool {
	if size <= 0 {
		size = ChunkSize
	}
	return &BufferPool{
		size: size,
		pool: &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		},
	}
}

// Size returns the length of the buffers handed out by the pool.
func (bp *BufferPool) Size() int {
	return bp.size
}

// Get returns a buffer of length Size.
// The caller is responsible for calling Put to return the buffer to the pool.
func (bp *BufferPool) Get() []byte {
	bufPtr := bp.pool.Get().(*[]byte)
	return (*bufPtr)[:bp.size]
}

// Put returns a buffer to the pool. Buffers of a different capacity are dropped.
// The buffer should not be used after calling Put.
func (bp *BufferPool) Put(buf []byte) {
	if cap(buf) != bp.size {
		return
	}
	buf = buf[:bp.size]
	bp.pool.Put(&buf)
}

// Global chunk pool shared by every client in the process.
var chunkPool = NewBufferPool(ChunkSize)

// Chunks returns the shared pool of ChunkSize buffers.
func Chunks() *BufferPool {
	return chunkPool
}
