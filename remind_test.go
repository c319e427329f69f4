package main

import (
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNaturalTime(t *testing.T) {
	t.Run("plain duration fallback", func(t *testing.T) {
		before := time.Now().UTC()
		got, err := parseNaturalTime("90m")
		require.NoError(t, err)
		assert.WithinDuration(t, before.Add(90*time.Minute), got, 5*time.Second)
	})

	t.Run("garbage is rejected", func(t *testing.T) {
		_, err := parseNaturalTime("not a time at all %%%")
		assert.Error(t, err)
	})
}

func TestFormatRelativeTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		name string
		in   time.Duration
		want string
	}{
		{"seconds", 30 * time.Second, "in less than a minute"},
		{"one minute", 90 * time.Second, "in 1 minute"},
		{"minutes", 45 * time.Minute, "in 45 minutes"},
		{"one hour", 90 * time.Minute, "in 1 hour"},
		{"hours", 7 * time.Hour, "in 7 hours"},
		{"one day", 30 * time.Hour, "in 1 day"},
		{"days", 4 * 24 * time.Hour, "in 4 days"},
		{"one week", 8 * 24 * time.Hour, "in 1 week"},
		{"weeks", 21 * 24 * time.Hour, "in 3 weeks"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, formatRelativeTime(base, base.Add(tc.in)))
		})
	}
}

func TestReminderActivity(t *testing.T) {
	r := &Reminder{id: NewActivityID("reminder"), Message: "water the plants"}
	assert.Equal(t, "reminder", r.ActivityKind())
	assert.NotEmpty(t, r.ActivityID())
}

// fakeReminderSender records sends and can fail the DM leg.
type fakeReminderSender struct {
	dmChannelID snowflake.ID
	dmOpenErr   error
	dmSendErr   error
	sent        map[snowflake.ID][]string
}

func (s *fakeReminderSender) OpenDMChannel(userID snowflake.ID) (snowflake.ID, error) {
	return s.dmChannelID, s.dmOpenErr
}

func (s *fakeReminderSender) SendText(channelID snowflake.ID, text string) error {
	if channelID == s.dmChannelID && s.dmSendErr != nil {
		return s.dmSendErr
	}
	if s.sent == nil {
		s.sent = make(map[snowflake.ID][]string)
	}
	s.sent[channelID] = append(s.sent[channelID], text)
	return nil
}

func TestDeliverReminder(t *testing.T) {
	base := &Reminder{
		id:        NewActivityID("reminder"),
		UserID:    200,
		TargetID:  200,
		ChannelID: 400,
		Message:   "water the plants",
	}

	t.Run("channel delivery goes to the origin channel", func(t *testing.T) {
		sender := &fakeReminderSender{dmChannelID: 900}
		r := *base
		r.SendTo = "channel"

		deliverReminderWith(sender, &r)

		require.Len(t, sender.sent[400], 1)
		assert.Empty(t, sender.sent[900])
	})

	t.Run("dm delivery stays in the dm channel", func(t *testing.T) {
		sender := &fakeReminderSender{dmChannelID: 900}
		r := *base
		r.SendTo = "dm"

		deliverReminderWith(sender, &r)

		require.Len(t, sender.sent[900], 1)
		assert.Empty(t, sender.sent[400])
	})

	t.Run("failed dm open falls back to the origin channel", func(t *testing.T) {
		sender := &fakeReminderSender{dmChannelID: 900, dmOpenErr: assert.AnError}
		r := *base
		r.SendTo = "dm"

		deliverReminderWith(sender, &r)

		require.Len(t, sender.sent[400], 1)
		assert.Contains(t, sender.sent[400][0], "couldn't send this as a private message")
		assert.Contains(t, sender.sent[400][0], "<@200>")
	})

	t.Run("failed dm send falls back to the origin channel", func(t *testing.T) {
		sender := &fakeReminderSender{dmChannelID: 900, dmSendErr: assert.AnError}
		r := *base
		r.SendTo = "dm"

		deliverReminderWith(sender, &r)

		require.Len(t, sender.sent[400], 1)
		assert.Contains(t, sender.sent[400][0], "water the plants")
		assert.Empty(t, sender.sent[900])
	})
}

func TestReminderText(t *testing.T) {
	t.Run("self reminder mentions only the target", func(t *testing.T) {
		r := &Reminder{UserID: 200, TargetID: 200, Message: "water the plants"}
		text := reminderText(r)
		assert.Contains(t, text, "<@200>")
		assert.Contains(t, text, "water the plants")
		assert.NotContains(t, text, "Set by")
	})

	t.Run("reminder for someone else credits the creator", func(t *testing.T) {
		r := &Reminder{UserID: 200, TargetID: 300, Message: "standup in 5"}
		text := reminderText(r)
		assert.Contains(t, text, "Reminder for <@300>")
		assert.Contains(t, text, "Set by <@200>")
	})
}
