package queue

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPopFIFO(t *testing.T) {
	q := New(4)
	for i := 0; i < 4; i++ {
		require.NoError(t, q.Push(i))
	}
	for i := 0; i < 4; i++ {
		v, state := q.Pop()
		require.Equal(t, Item, state)
		assert.Equal(t, i, v)
	}
}

func TestPushBlocksWhenFull(t *testing.T) {
	q := New(1)
	require.NoError(t, q.Push("a"))

	pushed := make(chan error, 1)
	go func() {
		pushed <- q.Push("b")
	}()

	select {
	case <-pushed:
		t.Fatal("push on full queue returned before room was made")
	case <-time.After(50 * time.Millisecond):
	}

	v, state := q.Pop()
	require.Equal(t, Item, state)
	assert.Equal(t, "a", v)

	select {
	case err := <-pushed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("push never unblocked after room was made")
	}
	v, state = q.Pop()
	require.Equal(t, Item, state)
	assert.Equal(t, "b", v)
}

func TestPopUntilTimeout(t *testing.T) {
	q := New(4)
	_, state := q.PopUntil(time.Now().Add(20 * time.Millisecond))
	assert.Equal(t, Timeout, state)
}

func TestPopUntilReturnsItemBeforeDeadline(t *testing.T) {
	q := New(4)
	require.NoError(t, q.Push(42))
	v, state := q.PopUntil(time.Now().Add(time.Second))
	require.Equal(t, Item, state)
	assert.Equal(t, 42, v)
}

func TestTerminateWakesBlockedPop(t *testing.T) {
	q := New(4)
	done := make(chan State, 1)
	go func() {
		_, state := q.Pop()
		done <- state
	}()
	time.Sleep(20 * time.Millisecond)
	q.Terminate()
	select {
	case state := <-done:
		assert.Equal(t, Terminate, state)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after Terminate")
	}
}

func TestTerminateFailsFastPush(t *testing.T) {
	q := New(1)
	q.Terminate()
	err := q.Push("x")
	assert.Error(t, err)
	assert.IsType(t, ErrTerminated{}, err)
}

func TestTerminateIsIdempotent(t *testing.T) {
	q := New(1)
	q.Terminate()
	q.Terminate()
	_, state := q.Pop()
	assert.Equal(t, Terminate, state)
}

func TestTerminateDoesNotDiscardBufferedItems(t *testing.T) {
	q := New(2)
	require.NoError(t, q.Push("a"))
	q.Terminate()
	// Terminate leaves the buffer alone: the item is still present, and
	// Pop keeps returning buffered items until the buffer is empty.
	// Verify the item is still physically present via Len.
	assert.Equal(t, 1, q.Len())
}

func TestFIFOPerProducerUnderContention(t *testing.T) {
	q := New(8)
	const nProducers = 4
	const nPerProducer = 200
	var wg sync.WaitGroup
	for p := 0; p < nProducers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < nPerProducer; i++ {
				require.NoError(t, q.Push(fmt.Sprintf("p%d-%d", p, i)))
			}
		}(p)
	}
	received := make(map[int][]int)
	var mu sync.Mutex
	var consumeWG sync.WaitGroup
	for c := 0; c < 3; c++ {
		consumeWG.Add(1)
		go func() {
			defer consumeWG.Done()
			for {
				// Hold mu across the pop so the recorded order is the
				// queue's pop order, not the consumers' scheduling order.
				mu.Lock()
				v, state := q.PopUntil(time.Now().Add(200 * time.Millisecond))
				if state != Item {
					mu.Unlock()
					return
				}
				var p, i int
				fmt.Sscanf(v.(string), "p%d-%d", &p, &i)
				received[p] = append(received[p], i)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	consumeWG.Wait()
	for p := 0; p < nProducers; p++ {
		seq := received[p]
		require.Len(t, seq, nPerProducer)
		for i, v := range seq {
			assert.Equal(t, i, v)
		}
	}
}

func TestDebugChecksumAccumulates(t *testing.T) {
	q := New(4)
	q.EnableDebugChecksum(func(x interface{}) []byte {
		return []byte(x.(string))
	})
	require.NoError(t, q.Push("a"))
	require.NoError(t, q.Push("b"))
	before := q.DebugChecksum()
	_, _ = q.Pop()
	after1 := q.DebugChecksum()
	assert.NotEqual(t, before, after1)
	_, _ = q.Pop()
	after2 := q.DebugChecksum()
	assert.NotEqual(t, after1, after2)
}
