package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/cellrules/internal/cell"
)

func TestEventQueue_FIFO(t *testing.T) {
	q := newEventQueue()

	for _, name := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(Event{Type: EventTypeCellValue, Ref: cell.NewRef("dev", name)}))
	}

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.Ref.Cell)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestEventQueue_Close(t *testing.T) {
	q := newEventQueue()
	q.Close()
	q.Close()

	assert.True(t, q.Closed())
	assert.False(t, q.Enqueue(Event{Type: EventTypeRunRules}), "closed queue rejects events")

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("wait channel should be closed")
	}
}

func TestEventQueue_ConcurrentEnqueue(t *testing.T) {
	q := newEventQueue()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Enqueue(Event{Type: EventTypeRunRules})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1000, q.Len())
}

func TestEventType_String(t *testing.T) {
	assert.Equal(t, "cell_change", EventTypeCellChange.String())
	assert.Equal(t, "timer", EventTypeTimer.String())
	assert.Equal(t, "unknown", EventType(99).String())
}
