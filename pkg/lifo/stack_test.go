package lifo

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushPopOrder(t *testing.T) {
	s := New[int]()
	s.Push(1)
	s.Push(2)
	s.Push(3)

	v, ok := s.Pop()
	require.True(t, ok)
	require.Equal(t, 3, v)
	require.Equal(t, 2, s.Len())
}

func TestPopEmpty(t *testing.T) {
	s := New[string]()
	_, ok := s.Pop()
	require.False(t, ok)
}

func TestRemoveMatch(t *testing.T) {
	s := New[int]()
	s.Push(1)
	s.Push(2)
	s.Push(3)

	removed := s.Remove(func(v int) bool { return v == 2 })
	require.True(t, removed)
	require.Equal(t, 2, s.Len())

	var remaining []int
	for {
		v, ok := s.Pop()
		if !ok {
			break
		}
		remaining = append(remaining, v)
	}
	require.ElementsMatch(t, []int{1, 3}, remaining)
}

func TestRemoveNoMatch(t *testing.T) {
	s := New[int]()
	s.Push(1)
	require.False(t, s.Remove(func(v int) bool { return v == 99 }))
	require.Equal(t, 1, s.Len())
}

func TestDrain(t *testing.T) {
	s := New[int]()
	s.Push(1)
	s.Push(2)
	s.Push(3)

	out := s.Drain()
	require.Equal(t, []int{3, 2, 1}, out)
	require.Equal(t, 0, s.Len())
	_, ok := s.Pop()
	require.False(t, ok)
}

func TestConcurrentPushPop(t *testing.T) {
	s := New[int]()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s.Push(n)
		}(i)
	}
	wg.Wait()
	require.Equal(t, 100, s.Len())

	count := 0
	for {
		if _, ok := s.Pop(); !ok {
			break
		}
		count++
	}
	require.Equal(t, 100, count)
}
