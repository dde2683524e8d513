package attrs

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetRemove(t *testing.T) {
	tbl := &Table{}
	key := NewKey[string]("greeting")

	_, ok := Get(tbl, key)
	require.False(t, ok)

	Set(tbl, key, "hello")
	v, ok := Get(tbl, key)
	require.True(t, ok)
	require.Equal(t, "hello", v)

	Remove(tbl, key)
	_, ok = Get(tbl, key)
	require.False(t, ok)
}

func TestDistinctKeysSameName(t *testing.T) {
	tbl := &Table{}
	a := NewKey[int]("count")
	b := NewKey[int]("count")

	Set(tbl, a, 1)
	Set(tbl, b, 2)

	va, _ := Get(tbl, a)
	vb, _ := Get(tbl, b)
	require.Equal(t, 1, va)
	require.Equal(t, 2, vb)
}

func TestClear(t *testing.T) {
	tbl := &Table{}
	key := NewKey[int]("n")
	Set(tbl, key, 42)

	tbl.Clear()

	_, ok := Get(tbl, key)
	require.False(t, ok)
}

func TestConcurrentAccess(t *testing.T) {
	tbl := &Table{}
	key := NewKey[int]("counter")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			Set(tbl, key, n)
			Get(tbl, key)
		}(i)
	}
	wg.Wait()
}
