package main

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
)

const (
	testGuild = snowflake.ID(100)
	testUser  = snowflake.ID(200)
)

// trackerAt returns a tracker with a controllable clock.
func trackerAt(start time.Time) (*SpamTracker, *time.Time) {
	clock := start
	tr := NewSpamTracker(spamWindow)
	tr.now = func() time.Time { return clock }
	return tr, &clock
}

func TestSpamTrackerFrequency(t *testing.T) {
	t.Run("five messages in window trigger", func(t *testing.T) {
		tr, clock := trackerAt(time.Unix(1000, 0))

		for i := 0; i < 4; i++ {
			offense, _ := tr.Observe(testGuild, testUser, fmt.Sprintf("msg %d", i), 0)
			assert.Equal(t, SpamNone, offense)
			*clock = clock.Add(500 * time.Millisecond)
		}

		offense, warnings := tr.Observe(testGuild, testUser, "msg final", 0)
		assert.Equal(t, SpamFrequency, offense)
		assert.Equal(t, 1, warnings)
	})

	t.Run("slow messages never trigger", func(t *testing.T) {
		tr, clock := trackerAt(time.Unix(1000, 0))

		for i := 0; i < 20; i++ {
			offense, _ := tr.Observe(testGuild, testUser, fmt.Sprintf("msg %d", i), 0)
			assert.Equal(t, SpamNone, offense)
			*clock = clock.Add(6 * time.Second)
		}
	})

	t.Run("window prunes old timestamps", func(t *testing.T) {
		tr, clock := trackerAt(time.Unix(1000, 0))

		for i := 0; i < 4; i++ {
			tr.Observe(testGuild, testUser, fmt.Sprintf("a %d", i), 0)
			*clock = clock.Add(time.Second)
		}
		// The first observations are now outside the 5s window
		*clock = clock.Add(5 * time.Second)
		offense, _ := tr.Observe(testGuild, testUser, "b", 0)
		assert.Equal(t, SpamNone, offense)
	})
}

func TestSpamTrackerDuplicates(t *testing.T) {
	t.Run("three identical messages in window trigger", func(t *testing.T) {
		tr, clock := trackerAt(time.Unix(1000, 0))

		for i := 0; i < 2; i++ {
			offense, _ := tr.Observe(testGuild, testUser, "same thing", 0)
			assert.Equal(t, SpamNone, offense)
			*clock = clock.Add(time.Second)
		}

		offense, warnings := tr.Observe(testGuild, testUser, "same thing", 0)
		assert.Equal(t, SpamDuplicate, offense)
		assert.Equal(t, 1, warnings)
	})

	t.Run("comparison ignores case", func(t *testing.T) {
		tr, clock := trackerAt(time.Unix(1000, 0))

		tr.Observe(testGuild, testUser, "Same Thing", 0)
		*clock = clock.Add(time.Second)
		tr.Observe(testGuild, testUser, "SAME THING", 0)
		*clock = clock.Add(time.Second)

		offense, _ := tr.Observe(testGuild, testUser, "same thing", 0)
		assert.Equal(t, SpamDuplicate, offense)
	})

	t.Run("duplicates need not be consecutive", func(t *testing.T) {
		tr, clock := trackerAt(time.Unix(1000, 0))

		tr.Observe(testGuild, testUser, "buy my stuff", 0)
		*clock = clock.Add(time.Second)
		tr.Observe(testGuild, testUser, "unrelated chatter", 0)
		*clock = clock.Add(time.Second)
		tr.Observe(testGuild, testUser, "buy my stuff", 0)
		*clock = clock.Add(time.Second)

		offense, _ := tr.Observe(testGuild, testUser, "buy my stuff", 0)
		assert.Equal(t, SpamDuplicate, offense)
	})

	t.Run("identical messages outside the window do not trigger", func(t *testing.T) {
		tr, clock := trackerAt(time.Unix(1000, 0))

		for i := 0; i < 5; i++ {
			offense, _ := tr.Observe(testGuild, testUser, "same thing", 0)
			assert.Equal(t, SpamNone, offense)
			*clock = clock.Add(time.Minute)
		}
	})

	t.Run("mixed content stays under threshold", func(t *testing.T) {
		tr, clock := trackerAt(time.Unix(1000, 0))

		tr.Observe(testGuild, testUser, "one", 0)
		*clock = clock.Add(time.Second)
		tr.Observe(testGuild, testUser, "one", 0)
		*clock = clock.Add(time.Second)
		tr.Observe(testGuild, testUser, "two", 0)
		*clock = clock.Add(time.Second)

		offense, _ := tr.Observe(testGuild, testUser, "two", 0)
		assert.Equal(t, SpamNone, offense)
	})
}

func TestSpamTrackerCapsAndMentions(t *testing.T) {
	t.Run("long mostly-uppercase content triggers", func(t *testing.T) {
		tr, _ := trackerAt(time.Unix(1000, 0))
		offense, _ := tr.Observe(testGuild, testUser, "THIS IS A VERY LOUD MESSAGE INDEED", 0)
		assert.Equal(t, SpamCaps, offense)
	})

	t.Run("short shouting is fine", func(t *testing.T) {
		tr, _ := trackerAt(time.Unix(1000, 0))
		offense, _ := tr.Observe(testGuild, testUser, "WOW NICE", 0)
		assert.Equal(t, SpamNone, offense)
	})

	t.Run("mass mentions trigger", func(t *testing.T) {
		tr, _ := trackerAt(time.Unix(1000, 0))
		offense, _ := tr.Observe(testGuild, testUser, "hello everyone", 5)
		assert.Equal(t, SpamMentions, offense)
	})
}

func TestSpamTrackerPriority(t *testing.T) {
	t.Run("frequency beats caps and mentions", func(t *testing.T) {
		tr, _ := trackerAt(time.Unix(1000, 0))

		for i := 0; i < spamFrequencyLimit-1; i++ {
			offense, _ := tr.Observe(testGuild, testUser, fmt.Sprintf("quiet %d", i), 0)
			assert.Equal(t, SpamNone, offense)
		}

		// The burst-completing message is also shouty and mention-heavy
		offense, _ := tr.Observe(testGuild, testUser, strings.Repeat("SPAM ", 10), 6)
		assert.Equal(t, SpamFrequency, offense)
	})

	t.Run("duplicate beats mentions", func(t *testing.T) {
		tr, clock := trackerAt(time.Unix(1000, 0))

		tr.Observe(testGuild, testUser, "buy my stuff", 0)
		*clock = clock.Add(time.Second)
		tr.Observe(testGuild, testUser, "buy my stuff", 0)
		*clock = clock.Add(time.Second)

		offense, _ := tr.Observe(testGuild, testUser, "buy my stuff", 6)
		assert.Equal(t, SpamDuplicate, offense)
	})
}

func TestSpamTrackerWarningsNeverDecay(t *testing.T) {
	tr, clock := trackerAt(time.Unix(1000, 0))

	// Two offenses hours apart still accumulate
	tr.Observe(testGuild, testUser, "x", 6)
	*clock = clock.Add(3 * time.Hour)
	_, warnings := tr.Observe(testGuild, testUser, "y", 6)

	assert.Equal(t, 2, warnings)
	assert.Equal(t, 2, tr.WarningCount(testGuild, testUser))
}

func TestIsExcessiveCaps(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    bool
	}{
		{"empty", "", false},
		{"short caps", "HELLO THERE", false},
		{"long caps", "AAAAAAAAAA BBBBBBBBBB CCCCCCCCCC", true},
		{"long lowercase", strings.Repeat("quiet words ", 5), false},
		{"mixed below ratio", "This Is A Fairly Long Normal Sentence Here", false},
		{"long with some lowercase", "AAAAAAAAAAAAAAAAAAAAAAAAAaaaaa", false},
		{"caps diluted by punctuation", "GO!!! GO!!! GO!!! GO!!!", false},
		{"digits only", strings.Repeat("1234567890", 3), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isExcessiveCaps(tc.content))
		})
	}
}

func TestTimeoutMinutesForWarnings(t *testing.T) {
	cases := []struct {
		warnings int
		want     int
	}{
		{0, 0},
		{1, 0},
		{2, 5},
		{3, 10},
		{4, 20},
		{5, 40},
		{6, 60},
		{10, 60},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, timeoutMinutesForWarnings(tc.warnings), "warnings=%d", tc.warnings)
	}
}

// The timeout schedule keys off warnings accumulated before the current
// violation: the first two violations are bare warnings, the third earns
// 5 minutes, then the duration doubles.
func TestSpamEscalationSchedule(t *testing.T) {
	tr, clock := trackerAt(time.Unix(1000, 0))

	wantMinutes := []int{0, 0, 5, 10, 20}
	for i, want := range wantMinutes {
		offense, warnings := tr.Observe(testGuild, testUser, fmt.Sprintf("ping storm %d", i), 6)
		assert.Equal(t, SpamMentions, offense)
		assert.Equal(t, i+1, warnings)
		assert.Equal(t, want, timeoutMinutesForWarnings(warnings-1), "violation %d", i+1)
		*clock = clock.Add(time.Minute)
	}
}
