package main

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
)

// ===========================
// Registration
// ===========================

func init() {
	RegisterMessageCreateHandler(handleSpamCheck)
}

// ===========================
// Spam Messages & Tuning
// ===========================

const (
	spamWindow            = 5000 * time.Millisecond
	spamFrequencyLimit    = 5
	spamDuplicateLimit    = 3
	spamCapsMinLength     = 20
	spamCapsRatio         = 0.7
	spamMentionLimit      = 5
	spamNoticeTTL         = 10 * time.Second
	spamTimeoutBaseMin    = 5
	spamTimeoutCapMin     = 60
	spamTimeoutAfterWarns = 2
)

const (
	spamMsgNotice     = "⚠️ <@%s>, slow down! Message removed (%s). Warning %d."
	spamMsgDM         = "⚠️ Your message in **%s** was removed for spam (%s). Repeated offenses lead to a timeout."
	spamMsgTimeoutDM  = "⏳ You have been timed out for %d minutes for repeated spam."
	spamReasonFreq    = "sending messages too quickly"
	spamReasonDupe    = "repeating the same message"
	spamReasonCaps    = "excessive caps"
	spamReasonMention = "mass mentions"
)

// ===========================
// Spam Tracker (pure state)
// ===========================

type SpamOffense int

const (
	SpamNone SpamOffense = iota
	SpamFrequency
	SpamDuplicate
	SpamCaps
	SpamMentions
)

func (o SpamOffense) Reason() string {
	switch o {
	case SpamFrequency:
		return spamReasonFreq
	case SpamDuplicate:
		return spamReasonDupe
	case SpamCaps:
		return spamReasonCaps
	case SpamMentions:
		return spamReasonMention
	}
	return ""
}

// spamFingerprint is one observed message: lowercased content plus when
// it arrived. Duplicate counting works over fingerprints still inside
// the window.
type spamFingerprint struct {
	content string
	ts      time.Time
}

type spamRecord struct {
	window       []spamFingerprint
	warningCount int
}

// SpamTracker accumulates per-user message observations and classifies
// offenses. Warning counts never decay; only the message window is
// pruned. All methods are safe for concurrent use.
type SpamTracker struct {
	mu      sync.Mutex
	window  time.Duration
	records map[string]*spamRecord
	now     func() time.Time
}

var spam = NewSpamTracker(spamWindow)

func NewSpamTracker(window time.Duration) *SpamTracker {
	return &SpamTracker{
		window:  window,
		records: make(map[string]*spamRecord),
		now:     time.Now,
	}
}

// Observe records a message and returns the offense it triggers, if any,
// with the user's updated warning count. Offense checks run in priority
// order; only the first match counts.
func (t *SpamTracker) Observe(guildID, userID snowflake.ID, content string, mentionCount int) (SpamOffense, int) {
	key := guildID.String() + "_" + userID.String()
	now := t.now()
	norm := strings.ToLower(content)

	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[key]
	if !ok {
		rec = &spamRecord{}
		t.records[key] = rec
	}

	// Record this message, then prune everything older than the window
	rec.window = append(rec.window, spamFingerprint{content: norm, ts: now})
	cutoff := now.Add(-t.window)
	kept := rec.window[:0]
	for _, fp := range rec.window {
		if fp.ts.After(cutoff) {
			kept = append(kept, fp)
		}
	}
	rec.window = kept

	duplicates := 0
	for _, fp := range rec.window {
		if fp.content == norm {
			duplicates++
		}
	}

	offense := SpamNone
	switch {
	case len(rec.window) >= spamFrequencyLimit:
		offense = SpamFrequency
	case duplicates >= spamDuplicateLimit:
		offense = SpamDuplicate
	case isExcessiveCaps(content):
		offense = SpamCaps
	case mentionCount >= spamMentionLimit:
		offense = SpamMentions
	}

	if offense == SpamNone {
		return SpamNone, rec.warningCount
	}

	rec.warningCount++
	return offense, rec.warningCount
}

// WarningCount reports a user's accumulated spam warnings.
func (t *SpamTracker) WarningCount(guildID, userID snowflake.ID) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.records[guildID.String()+"_"+userID.String()]; ok {
		return rec.warningCount
	}
	return 0
}

// isExcessiveCaps reports whether content is long, contains no lowercase
// letters, and is made up mostly of capital letters.
func isExcessiveCaps(content string) bool {
	runes := []rune(content)
	if len(runes) <= spamCapsMinLength {
		return false
	}
	if content != strings.ToUpper(content) {
		return false
	}
	caps := 0
	for _, r := range runes {
		if r >= 'A' && r <= 'Z' {
			caps++
		}
	}
	return float64(caps) > float64(len(runes))*spamCapsRatio
}

// timeoutMinutesForWarnings doubles the timeout per extra warning,
// capped at an hour. Below the threshold there is no timeout.
func timeoutMinutesForWarnings(warnings int) int {
	if warnings < spamTimeoutAfterWarns {
		return 0
	}
	minutes := spamTimeoutBaseMin
	for i := spamTimeoutAfterWarns; i < warnings; i++ {
		minutes *= 2
		if minutes >= spamTimeoutCapMin {
			return spamTimeoutCapMin
		}
	}
	return minutes
}

// ===========================
// Discord Glue
// ===========================

func handleSpamCheck(event *events.MessageCreate) {
	msg := event.Message
	if msg.Author.Bot || msg.Author.System {
		return
	}
	if event.GuildID == nil {
		return
	}
	guildID := *event.GuildID

	client := event.Client()
	if selfUser, ok := client.Caches.SelfUser(); ok && msg.Author.ID == selfUser.ID {
		return
	}

	// Moderators are exempt
	member, hasMember := client.Caches.Member(guildID, msg.Author.ID)
	if hasMember {
		perms := memberGuildPermissions(client, guildID, member)
		if perms.Has(discord.PermissionAdministrator) || perms.Has(discord.PermissionManageMessages) {
			return
		}
	}

	// User and role mentions count together
	offense, warnings := spam.Observe(guildID, msg.Author.ID, msg.Content, len(msg.Mentions)+len(msg.MentionRoles))
	if offense == SpamNone {
		return
	}

	LogAntiSpam("Offense by %s in guild %s: %s (warning %d)", msg.Author.ID, guildID, offense.Reason(), warnings)

	// 1. Remove the offending message
	if err := client.Rest.DeleteMessage(event.ChannelID, msg.ID, rest.WithCtx(AppContext), rest.WithReason("Spam: "+offense.Reason())); err != nil {
		LogAntiSpam("Failed to delete spam message %s: %v", msg.ID, err)
	}

	// 2. Escalate to a timeout once warnings accumulate. The schedule
	// keys off the count of earlier warnings, so the first two
	// violations stay bare warnings and the third brings the first
	// timeout.
	if minutes := timeoutMinutesForWarnings(warnings - 1); minutes > 0 {
		if hasMember && !isKickable(client, guildID, member.RoleIDs) {
			LogAntiSpam("Cannot timeout %s: role hierarchy", msg.Author.ID)
		} else if err := timeoutMember(client, guildID, msg.Author.ID, time.Duration(minutes)*time.Minute, "Repeated spam"); err != nil {
			LogAntiSpam("Failed to timeout %s: %v", msg.Author.ID, err)
		} else {
			LogAntiSpam("Timed out %s for %d minute(s)", msg.Author.ID, minutes)
			sendUserDM(client, msg.Author.ID, fmt.Sprintf(spamMsgTimeoutDM, minutes))
		}
	}

	// 3. Short-lived channel notice
	notice := discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(fmt.Sprintf(spamMsgNotice, msg.Author.ID, offense.Reason(), warnings)),
			),
		)
	if sent, err := client.Rest.CreateMessage(event.ChannelID, notice.Build(), rest.WithCtx(AppContext)); err == nil && sent != nil {
		channelID := event.ChannelID
		noticeID := sent.ID
		safeGo(func() {
			time.Sleep(spamNoticeTTL)
			_ = client.Rest.DeleteMessage(channelID, noticeID, rest.WithCtx(AppContext))
		})
	}

	// 4. Best-effort DM
	guildName := guildID.String()
	if guild, ok := client.Caches.Guild(guildID); ok {
		guildName = guild.Name
	}
	sendUserDM(client, msg.Author.ID, fmt.Sprintf(spamMsgDM, guildName, offense.Reason()))
}

// timeoutMember disables communication for the member until now+d.
func timeoutMember(client *bot.Client, guildID, userID snowflake.ID, d time.Duration, reason string) error {
	until := time.Now().Add(d)
	_, err := client.Rest.UpdateMember(guildID, userID, discord.MemberUpdate{
		CommunicationDisabledUntil: omit.New(&until),
	}, rest.WithCtx(AppContext), rest.WithReason(reason))
	return err
}
