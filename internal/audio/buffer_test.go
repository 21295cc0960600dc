package audio

import (
	"bytes"
	"sync"
	"testing"
)

func TestChunkBuffer_AppendKeepsOrder(t *testing.T) {
	b := NewChunkBuffer()

	b.Append([]byte{1, 2, 3})
	b.Append([]byte{4, 5})
	b.Append([]byte{6})

	if b.Len() != 3 {
		t.Errorf("Expected 3 chunks, got %d", b.Len())
	}
	if b.Size() != 6 {
		t.Errorf("Expected 6 bytes, got %d", b.Size())
	}
	if got := b.Assemble(); !bytes.Equal(got, []byte{1, 2, 3, 4, 5, 6}) {
		t.Errorf("Unexpected assembled payload %v", got)
	}
}

func TestChunkBuffer_AppendCopies(t *testing.T) {
	b := NewChunkBuffer()
	data := []byte{1, 2, 3}
	b.Append(data)
	data[0] = 9

	if got := b.Assemble(); got[0] != 1 {
		t.Errorf("Expected buffer to own its copy, got %v", got)
	}
}

func TestChunkBuffer_EmptyAppendIgnored(t *testing.T) {
	b := NewChunkBuffer()
	b.Append(nil)
	if !b.IsEmpty() || b.Len() != 0 {
		t.Error("Expected empty append to store nothing")
	}
}

func TestChunkBuffer_SealRejectsAppends(t *testing.T) {
	b := NewChunkBuffer()
	b.Append([]byte{1})
	b.Seal()

	if b.Append([]byte{2}) {
		t.Error("Expected append after seal to be rejected")
	}
	if b.Size() != 1 {
		t.Errorf("Expected 1 byte after sealed append, got %d", b.Size())
	}
}

func TestChunkBuffer_Clear(t *testing.T) {
	b := NewChunkBuffer()
	b.Append([]byte{1, 2})
	b.Seal()
	b.Clear()

	if !b.IsEmpty() {
		t.Error("Expected buffer to be empty after clear")
	}
	if !b.Append([]byte{3}) {
		t.Error("Expected clear to reopen the buffer")
	}
}

func TestChunkBuffer_ConcurrentAppend(t *testing.T) {
	b := NewChunkBuffer()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Append([]byte{0, 0})
		}()
	}
	wg.Wait()

	if b.Size() != 100 {
		t.Errorf("Expected 100 bytes, got %d", b.Size())
	}
}
