package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobQueueFIFO(t *testing.T) {
	q := newJobQueue()

	require.True(t, q.push(job{text: "one"}))
	require.True(t, q.push(job{text: "two"}))

	j, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "one", j.text)

	j, ok = q.pop()
	require.True(t, ok)
	assert.Equal(t, "two", j.text)
}

func TestJobQueuePopBlocksUntilPush(t *testing.T) {
	q := newJobQueue()

	got := make(chan job, 1)
	go func() {
		j, ok := q.pop()
		if ok {
			got <- j
		}
	}()

	time.Sleep(20 * time.Millisecond)
	require.True(t, q.push(job{text: "wake"}))

	select {
	case j := <-got:
		assert.Equal(t, "wake", j.text)
	case <-time.After(2 * time.Second):
		t.Fatal("pop not woken by push")
	}
}

func TestJobQueueCloseDrains(t *testing.T) {
	q := newJobQueue()

	require.True(t, q.push(job{text: "pending"}))
	q.close()

	// Pushes after close are discarded, but queued jobs still drain.
	assert.False(t, q.push(job{text: "late"}))

	j, ok := q.pop()
	require.True(t, ok)
	assert.Equal(t, "pending", j.text)

	_, ok = q.pop()
	assert.False(t, ok)
}
