package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// ===========================
// Registration
// ===========================

func init() {
	RegisterMemberJoinHandler(handleVerifyJoin)
	RegisterMemberUpdateHandler(handleVerifyUpdate)
	RegisterMemberLeaveHandler(handleVerifyLeave)
}

// ===========================
// Verify Messages
// ===========================

const (
	verifyMsgKickDM = "You were removed from **%s**: failed to verify within %d minutes."
)

// ===========================
// Activity State
// ===========================

type VerificationTimer struct {
	GuildID        snowflake.ID
	UserID         snowflake.ID
	RoleID         snowflake.ID
	TimeoutMinutes int
	Deadline       time.Time
}

func (v *VerificationTimer) ActivityID() string {
	return verifyActivityID(v.GuildID, v.UserID)
}
func (v *VerificationTimer) ActivityKind() string { return "verify" }

// verifyActivityID is deterministic so the cancel paths can address the
// timer without holding a reference.
func verifyActivityID(guildID, userID snowflake.ID) string {
	return fmt.Sprintf("verify_%s_%s", guildID, userID)
}

// ===========================
// Event Handlers
// ===========================

func handleVerifyJoin(event *events.GuildMemberJoin) {
	if event.Member.User.Bot {
		return
	}

	cfg, err := GetGuildConfig(AppContext, event.GuildID)
	if err != nil {
		LogVerify("Failed to load config for guild %s: %v", event.GuildID, err)
		return
	}
	if cfg.VerifyRoleID == 0 {
		return
	}

	client := event.Client()
	v := &VerificationTimer{
		GuildID:        event.GuildID,
		UserID:         event.Member.User.ID,
		RoleID:         cfg.VerifyRoleID,
		TimeoutMinutes: cfg.VerifyTimeoutMinutes,
		Deadline:       time.Now().Add(time.Duration(cfg.VerifyTimeoutMinutes) * time.Minute),
	}

	if err := Activities.Add(v, v.Deadline, func(act Activity) {
		enforceVerification(client, act.(*VerificationTimer))
	}); err != nil {
		// A rejoin within the window restarts the clock
		Activities.Cancel(v.ActivityID())
		if err := Activities.Add(v, v.Deadline, func(act Activity) {
			enforceVerification(client, act.(*VerificationTimer))
		}); err != nil {
			LogVerify("Failed to track verification for %s: %v", v.UserID, err)
			return
		}
	}

	LogVerify("Started verification timer for %s in guild %s (%d minutes)", v.UserID, v.GuildID, v.TimeoutMinutes)
}

func handleVerifyUpdate(event *events.GuildMemberUpdate) {
	id := verifyActivityID(event.GuildID, event.Member.User.ID)

	act, ok := Activities.Get(id)
	if !ok {
		return
	}
	v := act.(*VerificationTimer)

	if slices.Contains(event.Member.RoleIDs, v.RoleID) {
		Activities.Cancel(id)
		LogVerify("User %s verified in guild %s, timer cancelled", v.UserID, v.GuildID)
	}
}

func handleVerifyLeave(event *events.GuildMemberLeave) {
	id := verifyActivityID(event.GuildID, event.User.ID)
	Activities.Cancel(id)
}

// ===========================
// Enforcement
// ===========================

// enforceVerification runs when the timer expires. The member is
// refetched so a stale cache cannot kick someone who verified.
func enforceVerification(client *bot.Client, v *VerificationTimer) {
	member, err := client.Rest.GetMember(v.GuildID, v.UserID, rest.WithCtx(AppContext))
	if err != nil || member == nil {
		// Already gone
		return
	}

	if slices.Contains(member.RoleIDs, v.RoleID) {
		return
	}

	if !isKickable(client, v.GuildID, member.RoleIDs) {
		LogVerify("Cannot kick %s in guild %s: role hierarchy", v.UserID, v.GuildID)
		return
	}

	// DM before the kick; afterwards there is no mutual guild
	guildName := v.GuildID.String()
	if guild, ok := client.Caches.Guild(v.GuildID); ok {
		guildName = guild.Name
	}
	sendUserDM(client, v.UserID, fmt.Sprintf(verifyMsgKickDM, guildName, v.TimeoutMinutes))

	reason := fmt.Sprintf("Failed to verify within %d minutes", v.TimeoutMinutes)
	if err := client.Rest.RemoveMember(v.GuildID, v.UserID, rest.WithCtx(AppContext), rest.WithReason(reason)); err != nil {
		LogVerify("Failed to kick %s from guild %s: %v", v.UserID, v.GuildID, err)
		return
	}

	LogVerify("Kicked unverified user %s from guild %s", v.UserID, v.GuildID)
}

// isKickable compares the target's highest role against the bot's.
func isKickable(client *bot.Client, guildID snowflake.ID, targetRoleIDs []snowflake.ID) bool {
	selfUser, ok := client.Caches.SelfUser()
	if !ok {
		return false
	}
	selfMember, ok := client.Caches.Member(guildID, selfUser.ID)
	if !ok {
		return false
	}

	botHighest := highestRolePosition(client, guildID, selfMember.RoleIDs)
	targetHighest := highestRolePosition(client, guildID, targetRoleIDs)
	return botHighest > targetHighest
}
