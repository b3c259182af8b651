package configtree

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadRoundTrip(t *testing.T) {
	tree := New()
	defer tree.Close()

	ts := tree.Now()
	applied, err := tree.Write("/services/a/state", "RUNNING", ts)
	require.NoError(t, err)
	require.True(t, applied)

	val, ok := tree.Read("/services/a/state")
	require.True(t, ok)
	assert.Equal(t, "RUNNING", val)
}

func TestWriteLastWriterWins(t *testing.T) {
	tree := New()
	defer tree.Close()

	newer := tree.Now()
	older := Timestamp(int64(newer) - 1)

	_, err := tree.Write("/x", "new", newer)
	require.NoError(t, err)

	applied, err := tree.Write("/x", "old", older)
	require.NoError(t, err)
	assert.False(t, applied, "expected stale write to be rejected")

	val, _ := tree.Read("/x")
	assert.Equal(t, "new", val)
}

func TestWriteThroughLeafIsInvalid(t *testing.T) {
	tree := New()
	defer tree.Close()

	ts := tree.Now()
	_, err := tree.Write("/a/b", "leaf", ts)
	require.NoError(t, err)

	_, err = tree.Write("/a/b/c", "nope", tree.Now())
	assert.Error(t, err, "expected InvalidPathError traversing through a leaf")
}

func TestDeleteRemovesSubtree(t *testing.T) {
	tree := New()
	defer tree.Close()

	ts := tree.Now()
	mustWrite(t, tree, "/svc/a/state", "RUNNING", ts)

	applied, err := tree.Delete("/svc/a", tree.Now())
	require.NoError(t, err)
	require.True(t, applied)

	_, ok := tree.Read("/svc/a/state")
	assert.False(t, ok, "expected subtree to be gone")
}

func TestSubscribeReceivesInitializedThenChanged(t *testing.T) {
	tree := New()
	defer tree.Close()

	var mu sync.Mutex
	var kinds []EventKind
	done := make(chan struct{}, 2)

	sub := tree.Subscribe("/svc/a/state", func(n Notification) {
		mu.Lock()
		kinds = append(kinds, n.Kind)
		mu.Unlock()
		done <- struct{}{}
	})
	defer sub.Cancel()

	<-done // INITIALIZED
	mustWrite(t, tree, "/svc/a/state", "STARTING", tree.Now())
	<-done // CHANGED

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, kinds, 2)
	assert.Equal(t, EventInitialized, kinds[0])
	assert.Equal(t, EventChanged, kinds[1])
}

func TestHandlersNeverRunConcurrently(t *testing.T) {
	tree := New()
	defer tree.Close()

	var mu sync.Mutex
	active := 0
	maxActive := 0
	var wg sync.WaitGroup
	wg.Add(21) // one INITIALIZED delivery plus 20 CHANGED

	tree.Subscribe("/hot", func(n Notification) {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
		wg.Done()
	})

	for i := 0; i < 20; i++ {
		mustWrite(t, tree, "/hot", i, tree.Now())
	}
	wg.Wait()

	assert.LessOrEqual(t, maxActive, 1, "expected at most one handler active at a time")
}

func mustWrite(t *testing.T, tree *Tree, path string, value interface{}, ts Timestamp) {
	t.Helper()
	_, err := tree.Write(path, value, ts)
	require.NoError(t, err)
}
