package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[string]()
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Drain())

	q.Push("power")
	q.Push("subsystem", "capability")
	assert.Equal(t, 3, q.Len())

	assert.Equal(t, []string{"power", "subsystem", "capability"}, q.Drain())
	assert.Zero(t, q.Len())
}

func TestQueue_RequeueGoesFirst(t *testing.T) {
	q := New[int]()
	q.Push(1, 2)
	batch := q.Drain()
	q.Push(3)

	q.Requeue(batch)
	assert.Equal(t, []int{1, 2, 3}, q.Drain())

	q.Requeue(nil)
	assert.Zero(t, q.Len())
}

func TestQueue_Bounded(t *testing.T) {
	tests := []struct {
		name        string
		limit       int
		push        []int
		requeue     []int
		want        []int
		wantDropped uint64
	}{
		{"under limit", 3, []int{1, 2}, nil, []int{1, 2}, 0},
		{"drops oldest", 3, []int{1, 2, 3, 4, 5}, nil, []int{3, 4, 5}, 2},
		{"requeue over limit drops requeued head", 3, []int{4, 5}, []int{1, 2, 3}, []int{3, 4, 5}, 2},
		{"zero limit is unbounded", 0, []int{1, 2, 3, 4}, nil, []int{1, 2, 3, 4}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewBounded[int](tt.limit)
			q.Push(tt.push...)
			q.Requeue(tt.requeue)
			assert.Equal(t, tt.want, q.Drain())
			assert.Equal(t, tt.wantDropped, q.Dropped())
		})
	}
}

func TestQueue_ClearIsNotADrop(t *testing.T) {
	q := NewBounded[int](2)
	q.Push(1, 2)
	q.Clear()
	assert.Zero(t, q.Len())
	assert.Zero(t, q.Dropped())
}

func TestQueue_ConcurrentPushDrain(t *testing.T) {
	q := New[int]()
	const writers, perWriter = 8, 500

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				q.Push(i)
			}
		}()
	}

	got := 0
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		got += len(q.Drain())
		select {
		case <-done:
			got += len(q.Drain())
			require.Equal(t, writers*perWriter, got)
			return
		default:
		}
	}
}
