package websocket

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openIDs(r *Registry) []string {
	var ids []string
	for conn := range r.AllOpen() {
		ids = append(ids, conn.ID())
	}
	sort.Strings(ids)
	return ids
}

func TestRegistryAllOpenTracksRegisteredSessions(t *testing.T) {
	registry := NewRegistry()
	rng := rand.New(rand.NewPCG(1, 2))
	expected := make(map[string]bool)

	for step := 0; step < 500; step++ {
		id := fmt.Sprintf("s%d", rng.IntN(20))
		if rng.IntN(2) == 0 {
			err := registry.Register(id, newMockConn(id))
			if expected[id] {
				require.ErrorIs(t, err, ErrDuplicateSession)
			} else {
				require.NoError(t, err)
				expected[id] = true
			}
		} else {
			registry.Unregister(id)
			delete(expected, id)
		}

		want := make([]string, 0, len(expected))
		for id := range expected {
			want = append(want, id)
		}
		sort.Strings(want)
		if len(want) == 0 {
			want = nil
		}
		require.Equal(t, want, openIDs(registry), "step %d", step)
		require.Equal(t, len(expected), registry.Count())
	}
}

func TestRegistryDuplicateKeepsOriginal(t *testing.T) {
	registry := NewRegistry()
	original := newMockConn("s1")
	require.NoError(t, registry.Register("s1", original))

	err := registry.Register("s1", newMockConn("s1"))
	require.ErrorIs(t, err, ErrDuplicateSession)

	got, err := registry.Get("s1")
	require.NoError(t, err)
	assert.Same(t, original, got)
}

func TestRegistryGetAndUnregister(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.False(t, registry.Unregister("missing"))

	require.NoError(t, registry.Register("s1", newMockConn("s1")))
	assert.True(t, registry.Unregister("s1"))
	assert.False(t, registry.Unregister("s1"))

	_, err = registry.Get("s1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryAllOpenIsRestartableSnapshot(t *testing.T) {
	registry := NewRegistry()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("s%d", i)
		require.NoError(t, registry.Register(id, newMockConn(id)))
	}

	snapshot := registry.AllOpen()

	// Mutating during enumeration must neither block nor change the snapshot.
	seen := 0
	for range snapshot {
		seen++
		require.NoError(t, registry.Register(fmt.Sprintf("late%d", seen), newMockConn("late")))
		registry.Unregister("s0")
	}
	assert.Equal(t, 3, seen)

	again := 0
	for range snapshot {
		again++
	}
	assert.Equal(t, 3, again)
	assert.Equal(t, 5, registry.Count())
}

func TestRegistryAllOpenSkipsClosedConnections(t *testing.T) {
	registry := NewRegistry()
	open, closed := newMockConn("open"), newMockConn("closed")
	closed.close()
	require.NoError(t, registry.Register("open", open))
	require.NoError(t, registry.Register("closed", closed))

	assert.Equal(t, []string{"open"}, openIDs(registry))
	assert.Equal(t, 2, registry.Count())
	assert.Equal(t, 1, registry.ActiveCount())
}

func TestRegistryConcurrentAccess(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				assert.NoError(t, registry.Register(id, newMockConn(id)))
				for range registry.AllOpen() {
				}
				if i%2 == 0 {
					registry.Unregister(id)
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 8*50, registry.Count())
}
