package passport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_AssignsUniqueID(t *testing.T) {
	a := New()
	b := New()
	require.NotEmpty(t, a.ID)
	require.NotEqual(t, a.ID, b.ID)
}

func TestAppendAndFirst(t *testing.T) {
	tr := New()
	tr.Append("ORIGIN_CH_CONNECTING")
	tr.Append("ORIGIN_CH_CONNECTED")
	tr.Append("ORIGIN_CH_CONNECTED") // duplicate state appended again

	_, ok := tr.First("ORIGIN_CH_MISSING")
	require.False(t, ok)

	first, ok := tr.First("ORIGIN_CH_CONNECTED")
	require.True(t, ok)

	events := tr.Events()
	require.Len(t, events, 3)
	require.Equal(t, first, events[1].At)
	require.True(t, tr.Has("ORIGIN_CH_CONNECTING"))
}

func TestConcurrentAppend(t *testing.T) {
	tr := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Append("EVENT")
		}()
	}
	wg.Wait()
	require.Len(t, tr.Events(), 20)
}
