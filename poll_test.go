package main

import (
	"strings"
	"testing"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollPercentage(t *testing.T) {
	cases := []struct {
		votes, total, want int
	}{
		{0, 0, 0},
		{0, 10, 0},
		{1, 3, 33},
		{2, 3, 67},
		{1, 2, 50},
		{3, 3, 100},
		{1, 8, 13},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, pollPercentage(tc.votes, tc.total), "%d/%d", tc.votes, tc.total)
	}
}

func TestPollBar(t *testing.T) {
	t.Run("always twenty cells", func(t *testing.T) {
		for pct := 0; pct <= 100; pct += 7 {
			bar := pollBar(pct)
			assert.Equal(t, pollBarCells, len([]rune(bar)), "pct=%d", pct)
		}
	})

	t.Run("empty and full", func(t *testing.T) {
		assert.Equal(t, strings.Repeat("░", 20), pollBar(0))
		assert.Equal(t, strings.Repeat("█", 20), pollBar(100))
	})

	t.Run("one cell per five percent", func(t *testing.T) {
		assert.Equal(t, strings.Repeat("█", 10)+strings.Repeat("░", 10), pollBar(50))
		assert.Equal(t, strings.Repeat("█", 7)+strings.Repeat("░", 13), pollBar(33))
	})
}

func TestRenderPollResults(t *testing.T) {
	newPoll := func() *Poll {
		return &Poll{
			id:       NewActivityID("poll"),
			Question: "Best editor?",
			Options:  []string{"vim", "emacs", "nano"},
			Votes:    make(map[snowflake.ID]int),
		}
	}

	t.Run("no votes", func(t *testing.T) {
		assert.Equal(t, pollMsgNoVotes, renderPollResults(newPoll()))
	})

	t.Run("percentages sum from vote sets", func(t *testing.T) {
		p := newPoll()
		p.Votes[snowflake.ID(1)] = 0
		p.Votes[snowflake.ID(2)] = 0
		p.Votes[snowflake.ID(3)] = 1

		out := renderPollResults(p)
		assert.Contains(t, out, "vim")
		assert.Contains(t, out, "67% (2)")
		assert.Contains(t, out, "33% (1)")
		assert.Contains(t, out, "0% (0)")
	})

	t.Run("revote is mutually exclusive", func(t *testing.T) {
		p := newPoll()
		p.Votes[snowflake.ID(1)] = 0
		// Same user changes their mind; the map models one vote per user
		p.Votes[snowflake.ID(1)] = 2

		out := renderPollResults(p)
		assert.Contains(t, out, "100% (1)")
		assert.NotContains(t, out, "50%")
	})
}

func TestClonePoll(t *testing.T) {
	p := &Poll{
		id:      NewActivityID("poll"),
		Options: []string{"a", "b"},
		Votes:   map[snowflake.ID]int{snowflake.ID(1): 0},
	}

	c := clonePoll(p)
	require.Equal(t, p.Votes, c.Votes)

	c.Votes[snowflake.ID(2)] = 1
	c.Options[0] = "mutated"

	assert.Len(t, p.Votes, 1)
	assert.Equal(t, "a", p.Options[0])
}
