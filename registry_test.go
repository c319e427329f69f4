package main

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testActivity struct {
	id   string
	kind string
	n    int
}

func (a *testActivity) ActivityID() string   { return a.id }
func (a *testActivity) ActivityKind() string { return a.kind }

func newTestActivity(kind string) *testActivity {
	return &testActivity{id: NewActivityID(kind), kind: kind}
}

func TestNewActivityID(t *testing.T) {
	t.Run("carries kind prefix", func(t *testing.T) {
		id := NewActivityID("poll")
		assert.True(t, strings.HasPrefix(id, "poll_"))
	})

	t.Run("ids are unique", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 1000; i++ {
			id := NewActivityID("giveaway")
			require.False(t, seen[id], "duplicate id %s", id)
			seen[id] = true
		}
	})
}

func TestActivityRegistryLifecycle(t *testing.T) {
	t.Run("add and get", func(t *testing.T) {
		r := NewActivityRegistry()
		act := newTestActivity("poll")
		require.NoError(t, r.Add(act, time.Time{}, nil))

		got, ok := r.Get(act.id)
		require.True(t, ok)
		assert.Same(t, act, got)
	})

	t.Run("duplicate id rejected", func(t *testing.T) {
		r := NewActivityRegistry()
		act := newTestActivity("poll")
		require.NoError(t, r.Add(act, time.Time{}, nil))
		assert.Error(t, r.Add(act, time.Time{}, nil))
	})

	t.Run("finish removes and wins once", func(t *testing.T) {
		r := NewActivityRegistry()
		act := newTestActivity("giveaway")
		require.NoError(t, r.Add(act, time.Time{}, nil))

		got, won := r.Finish(act.id)
		require.True(t, won)
		assert.Same(t, act, got)

		_, won = r.Finish(act.id)
		assert.False(t, won)

		_, ok := r.Get(act.id)
		assert.False(t, ok)
	})

	t.Run("cancel is idempotent", func(t *testing.T) {
		r := NewActivityRegistry()
		act := newTestActivity("reminder")
		require.NoError(t, r.Add(act, time.Now().Add(time.Hour), func(Activity) {
			t.Error("expiry fired for cancelled activity")
		}))

		r.Cancel(act.id)
		r.Cancel(act.id)
		r.Cancel("never-existed")

		_, ok := r.Get(act.id)
		assert.False(t, ok)
	})

	t.Run("mutate applies under lock and rejects terminal", func(t *testing.T) {
		r := NewActivityRegistry()
		act := newTestActivity("poll")
		require.NoError(t, r.Add(act, time.Time{}, nil))

		ok := r.Mutate(act.id, func(a Activity) {
			a.(*testActivity).n++
		})
		require.True(t, ok)
		assert.Equal(t, 1, act.n)

		r.Cancel(act.id)
		ok = r.Mutate(act.id, func(a Activity) {
			t.Error("mutate ran on terminal activity")
		})
		assert.False(t, ok)
	})

	t.Run("count and foreach filter by kind", func(t *testing.T) {
		r := NewActivityRegistry()
		require.NoError(t, r.Add(newTestActivity("poll"), time.Time{}, nil))
		require.NoError(t, r.Add(newTestActivity("poll"), time.Time{}, nil))
		require.NoError(t, r.Add(newTestActivity("giveaway"), time.Time{}, nil))

		assert.Equal(t, 3, r.Count(""))
		assert.Equal(t, 2, r.Count("poll"))
		assert.Equal(t, 1, r.Count("giveaway"))

		visited := 0
		r.ForEach("poll", func(Activity) { visited++ })
		assert.Equal(t, 2, visited)
	})
}

func TestActivityRegistryExpiry(t *testing.T) {
	t.Run("expiry fires exactly once", func(t *testing.T) {
		r := NewActivityRegistry()
		act := newTestActivity("reminder")

		fired := make(chan Activity, 2)
		require.NoError(t, r.Add(act, time.Now().Add(10*time.Millisecond), func(a Activity) {
			fired <- a
		}))

		select {
		case got := <-fired:
			assert.Same(t, act, got)
		case <-time.After(2 * time.Second):
			t.Fatal("expiry never fired")
		}

		select {
		case <-fired:
			t.Fatal("expiry fired twice")
		case <-time.After(50 * time.Millisecond):
		}

		_, ok := r.Get(act.id)
		assert.False(t, ok)
	})

	t.Run("past deadline fires immediately", func(t *testing.T) {
		r := NewActivityRegistry()
		act := newTestActivity("reminder")

		fired := make(chan struct{}, 1)
		require.NoError(t, r.Add(act, time.Now().Add(-time.Minute), func(Activity) {
			fired <- struct{}{}
		}))

		select {
		case <-fired:
		case <-time.After(2 * time.Second):
			t.Fatal("expiry never fired")
		}
	})

	t.Run("finish beats expiry", func(t *testing.T) {
		r := NewActivityRegistry()
		act := newTestActivity("giveaway")

		require.NoError(t, r.Add(act, time.Now().Add(time.Hour), func(Activity) {
			t.Error("expiry fired after finish")
		}))

		_, won := r.Finish(act.id)
		require.True(t, won)
		time.Sleep(20 * time.Millisecond)
	})

	t.Run("concurrent finish has a single winner", func(t *testing.T) {
		r := NewActivityRegistry()
		act := newTestActivity("poll")
		require.NoError(t, r.Add(act, time.Time{}, nil))

		var wins int32
		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, won := r.Finish(act.id); won {
					mu.Lock()
					wins++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins)
	})
}

func TestActivityRegistryShutdown(t *testing.T) {
	r := NewActivityRegistry()
	for i := 0; i < 5; i++ {
		require.NoError(t, r.Add(newTestActivity("reminder"), time.Now().Add(time.Hour), func(Activity) {
			t.Error("expiry fired after shutdown")
		}))
	}

	r.Shutdown()
	assert.Equal(t, 0, r.Count(""))

	err := r.Add(newTestActivity("poll"), time.Time{}, nil)
	assert.Error(t, err)
	time.Sleep(20 * time.Millisecond)
}
