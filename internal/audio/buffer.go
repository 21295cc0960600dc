package audio

import (
	"sync"
)

// ChunkBuffer is the ordered, append-only store of raw audio fragments
// captured during one recording. It is safe for concurrent use.
type ChunkBuffer struct {
	chunks [][]byte
	size   int
	sealed bool
	mu     sync.RWMutex
}

// NewChunkBuffer creates an empty, unsealed buffer
func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{}
}

// Append copies data onto the end of the buffer.
// Returns false when the buffer is sealed and nothing was stored.
func (b *ChunkBuffer) Append(data []byte) bool {
	if len(data) == 0 {
		return true
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return false
	}
	b.chunks = append(b.chunks, chunk)
	b.size += len(chunk)
	return true
}

// Seal stops further appends. Assemble may still be called.
func (b *ChunkBuffer) Seal() {
	b.mu.Lock()
	b.sealed = true
	b.mu.Unlock()
}

// Assemble concatenates all chunks in capture order
func (b *ChunkBuffer) Assemble() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]byte, 0, b.size)
	for _, chunk := range b.chunks {
		out = append(out, chunk...)
	}
	return out
}

// Len returns the number of chunks stored
func (b *ChunkBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chunks)
}

// Size returns the total number of bytes stored
func (b *ChunkBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Clear drops every chunk and reopens the buffer for appends
func (b *ChunkBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = nil
	b.size = 0
	b.sealed = false
}

// IsEmpty returns true if no audio has been captured
func (b *ChunkBuffer) IsEmpty() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size == 0
}
