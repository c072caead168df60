package registry

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable_InsertRemove(t *testing.T) {
	tbl := NewTable[string]()

	a := tbl.Insert("a")
	b := tbl.Insert("b")
	require.NotEqual(t, a, b)
	assert.NotZero(t, a)
	assert.Equal(t, 2, tbl.Len())

	v, ok := tbl.Remove(a)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	_, ok = tbl.Remove(a)
	assert.False(t, ok)

	_, ok = tbl.Get(a)
	assert.False(t, ok)

	v, ok = tbl.Get(b)
	require.True(t, ok)
	assert.Equal(t, "b", v)
}

func TestTable_TokensAreNotReused(t *testing.T) {
	tbl := NewTable[int]()
	first := tbl.Insert(1)
	tbl.Remove(first)
	second := tbl.Insert(2)
	assert.Greater(t, second, first)
}

func TestTable_SnapshotOrderAndFilter(t *testing.T) {
	tbl := NewTable[int]()
	for i := 1; i <= 10; i++ {
		tbl.Insert(i)
	}

	snap := tbl.Snapshot()
	require.Len(t, snap, 10)
	for i, e := range snap {
		assert.Equal(t, i+1, e.Value)
	}

	even := tbl.Filter(func(v int) bool { return v%2 == 0 })
	require.Len(t, even, 5)
	assert.Equal(t, 2, even[0].Value)
	assert.Equal(t, 10, even[4].Value)
}

func TestTable_ConcurrentInsert(t *testing.T) {
	tbl := NewTable[int]()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tbl.Insert(i)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, tbl.Len())
}
