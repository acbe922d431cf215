package ptrmap

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertRemove(t *testing.T) {
	m := New(4)

	m.Insert(0x1000, 5)
	tag, ok := m.Remove(0x1000)
	require.True(t, ok)
	assert.Equal(t, uint32(5), tag)

	_, ok = m.Remove(0x1000)
	assert.False(t, ok, "removing twice must report not-found the second time")
}

func TestLenTracksBalance(t *testing.T) {
	m := New(8)
	assert.Equal(t, 0, m.Len())

	m.Insert(1, 1)
	m.Insert(2, 2)
	m.Insert(3, 3)
	assert.Equal(t, 3, m.Len())

	m.Remove(2)
	assert.Equal(t, 2, m.Len())

	m.Remove(1)
	m.Remove(3)
	assert.Equal(t, 0, m.Len())
}

func TestConcurrentInsertRemove(t *testing.T) {
	m := New(16)
	const n = 2000

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ptr := uintptr(i + 1)
			m.Insert(ptr, uint32(i))
			tag, ok := m.Remove(ptr)
			assert.True(t, ok)
			assert.Equal(t, uint32(i), tag)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, m.Len())
}

func TestOverwriteOnDuplicateInsert(t *testing.T) {
	m := New(1)
	m.Insert(10, 1)
	m.Insert(10, 2)
	tag, ok := m.Remove(10)
	require.True(t, ok)
	assert.Equal(t, uint32(2), tag)
}
