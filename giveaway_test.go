package main

import (
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDrawGiveawayWinners(t *testing.T) {
	entrants := func(n int) map[snowflake.ID]struct{} {
		m := make(map[snowflake.ID]struct{}, n)
		for i := 1; i <= n; i++ {
			m[snowflake.ID(i)] = struct{}{}
		}
		return m
	}

	t.Run("no entrants means no winners", func(t *testing.T) {
		assert.Empty(t, drawGiveawayWinners(entrants(0), 3))
	})

	t.Run("fewer entrants than winner slots", func(t *testing.T) {
		winners := drawGiveawayWinners(entrants(2), 5)
		assert.Len(t, winners, 2)
	})

	t.Run("winners are distinct entrants", func(t *testing.T) {
		pool := entrants(10)
		winners := drawGiveawayWinners(pool, 4)
		require.Len(t, winners, 4)

		seen := make(map[snowflake.ID]bool)
		for _, w := range winners {
			assert.False(t, seen[w], "winner %s drawn twice", w)
			seen[w] = true
			_, ok := pool[w]
			assert.True(t, ok, "winner %s was not an entrant", w)
		}
	})

	t.Run("every entrant can win", func(t *testing.T) {
		// With one winner from two entrants, both should show up
		// across repeated draws
		pool := entrants(2)
		seen := make(map[snowflake.ID]bool)
		for i := 0; i < 200; i++ {
			winners := drawGiveawayWinners(pool, 1)
			require.Len(t, winners, 1)
			seen[winners[0]] = true
		}
		assert.Len(t, seen, 2)
	})
}

func TestCloneGiveaway(t *testing.T) {
	g := &Giveaway{
		id:       NewActivityID("giveaway"),
		Prize:    "a rubber duck",
		Winners:  1,
		Entrants: map[snowflake.ID]struct{}{snowflake.ID(1): {}},
	}

	c := cloneGiveaway(g)
	require.Equal(t, g.Entrants, c.Entrants)

	c.Entrants[snowflake.ID(2)] = struct{}{}
	assert.Len(t, g.Entrants, 1)
}

func TestGiveawayEntryFlow(t *testing.T) {
	r := NewActivityRegistry()
	g := &Giveaway{
		id:       NewActivityID("giveaway"),
		Prize:    "test",
		Winners:  1,
		Entrants: make(map[snowflake.ID]struct{}),
	}
	require.NoError(t, r.Add(g, time.Time{}, nil))

	enter := func(userID snowflake.ID) (entered bool) {
		ok := r.Mutate(g.id, func(act Activity) {
			gw := act.(*Giveaway)
			if _, exists := gw.Entrants[userID]; exists {
				return
			}
			gw.Entrants[userID] = struct{}{}
			entered = true
		})
		return ok && entered
	}

	assert.True(t, enter(snowflake.ID(1)))
	assert.False(t, enter(snowflake.ID(1)), "duplicate entry must be rejected")
	assert.True(t, enter(snowflake.ID(2)))

	act, won := r.Finish(g.id)
	require.True(t, won)
	assert.Len(t, act.(*Giveaway).Entrants, 2)

	// Entries after the giveaway ended are rejected
	assert.False(t, enter(snowflake.ID(3)))
}
