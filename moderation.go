package main

import (
	"fmt"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
)

// ===========================
// Command Registration
// ===========================

func init() {
	kickPerm := discord.PermissionKickMembers
	banPerm := discord.PermissionBanMembers
	moderatePerm := discord.PermissionModerateMembers

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "kick",
		Description:              "Kick a member from the server",
		DefaultMemberPermissions: omit.New(&kickPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionUser{
				Name:        "user",
				Description: "The member to kick",
				Required:    true,
			},
			discord.ApplicationCommandOptionString{
				Name:        "reason",
				Description: "Why the member is being kicked",
				Required:    false,
			},
		},
	}, handleKick)

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "ban",
		Description:              "Ban a user from the server",
		DefaultMemberPermissions: omit.New(&banPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionUser{
				Name:        "user",
				Description: "The user to ban",
				Required:    true,
			},
			discord.ApplicationCommandOptionString{
				Name:        "reason",
				Description: "Why the user is being banned",
				Required:    false,
			},
			discord.ApplicationCommandOptionInt{
				Name:        "delete_days",
				Description: "Days of messages to delete (0-7)",
				Required:    false,
				MinValue:    intPtr(0),
				MaxValue:    intPtr(7),
			},
		},
	}, handleBan)

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "timeout",
		Description:              "Time out a member",
		DefaultMemberPermissions: omit.New(&moderatePerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionUser{
				Name:        "user",
				Description: "The member to time out",
				Required:    true,
			},
			discord.ApplicationCommandOptionInt{
				Name:        "minutes",
				Description: "Timeout length in minutes (max 7 days)",
				Required:    true,
				MinValue:    intPtr(1),
				MaxValue:    intPtr(10080),
			},
			discord.ApplicationCommandOptionString{
				Name:        "reason",
				Description: "Why the member is being timed out",
				Required:    false,
			},
		},
	}, handleTimeout)

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "unban",
		Description:              "Remove a user's ban",
		DefaultMemberPermissions: omit.New(&banPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "user_id",
				Description: "The ID of the user to unban",
				Required:    true,
			},
			discord.ApplicationCommandOptionString{
				Name:        "reason",
				Description: "Why the ban is being lifted",
				Required:    false,
			},
		},
	}, handleUnban)

	manageChannelsPerm := discord.PermissionManageChannels
	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "slowmode",
		Description:              "Set a channel's slowmode delay",
		DefaultMemberPermissions: omit.New(&manageChannelsPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "seconds",
				Description: "Delay between messages (0 to disable, max 21600)",
				Required:    true,
				MinValue:    intPtr(0),
				MaxValue:    intPtr(21600),
			},
			discord.ApplicationCommandOptionChannel{
				Name:        "channel",
				Description: "The channel to change (defaults to this one)",
				Required:    false,
			},
			discord.ApplicationCommandOptionString{
				Name:        "reason",
				Description: "Why slowmode is changing",
				Required:    false,
			},
		},
	}, handleSlowmode)
}

const (
	modMsgKicked      = "👢 <@%s> has been kicked.\n**Reason:** %s"
	modMsgBanned      = "🔨 <@%s> has been banned.\n**Reason:** %s"
	modMsgTimedOut    = "⏳ <@%s> has been timed out for %d minute(s).\n**Reason:** %s"
	modMsgKickDM      = "👢 You were kicked from **%s**.\n**Reason:** %s"
	modMsgBanDM       = "🔨 You were banned from **%s**.\n**Reason:** %s"
	modMsgTimeoutDM   = "⏳ You were timed out in **%s** for %d minute(s).\n**Reason:** %s"
	modMsgUnbanned    = "🔓 <@%s> has been unbanned.\n**Reason:** %s"
	modMsgSlowmode    = "🐌 Slowmode in <#%s> set to %d second(s)."
	modMsgSlowmodeOff = "💨 Slowmode in <#%s> disabled."
	modErrHierarchy   = "I can't act on that member: their highest role is above mine."
	modErrSelf        = "You can't moderate yourself."
	modErrUserID      = "That doesn't look like a user ID."
	modErrNotBanned   = "That user is not banned."
	modErrAction      = "Action failed: %v"
	modDefaultReason  = "No reason provided"
)

// ===========================
// Interaction Handlers
// ===========================

func handleKick(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	target := data.User("user")
	reason := modDefaultReason
	if r, ok := data.OptString("reason"); ok {
		reason = r
	}

	guildID, ok := requireModerationTarget(event, target.ID)
	if !ok {
		return
	}

	client := event.Client()

	// DM before the kick; afterwards there is no mutual guild
	sendUserDM(client, target.ID, fmt.Sprintf(modMsgKickDM, guildDisplayName(client, guildID), reason))

	if err := client.Rest.RemoveMember(guildID, target.ID, rest.WithCtx(AppContext), rest.WithReason(reason)); err != nil {
		respondEphemeral(event, fmt.Sprintf(modErrAction, err))
		return
	}

	respondEphemeral(event, fmt.Sprintf(modMsgKicked, target.ID, reason))
	logModAction(client, guildID, fmt.Sprintf(modMsgKicked, target.ID, reason))
	LogInfo("Kicked %s from guild %s by %s", target.ID, guildID, event.User().ID)
}

func handleBan(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	target := data.User("user")
	reason := modDefaultReason
	if r, ok := data.OptString("reason"); ok {
		reason = r
	}
	deleteDays := 0
	if d, ok := data.OptInt("delete_days"); ok {
		deleteDays = d
	}

	guildID, ok := requireModerationTarget(event, target.ID)
	if !ok {
		return
	}

	client := event.Client()
	sendUserDM(client, target.ID, fmt.Sprintf(modMsgBanDM, guildDisplayName(client, guildID), reason))

	if err := client.Rest.AddBan(guildID, target.ID, time.Duration(deleteDays)*24*time.Hour,
		rest.WithCtx(AppContext), rest.WithReason(reason)); err != nil {
		respondEphemeral(event, fmt.Sprintf(modErrAction, err))
		return
	}

	respondEphemeral(event, fmt.Sprintf(modMsgBanned, target.ID, reason))
	logModAction(client, guildID, fmt.Sprintf(modMsgBanned, target.ID, reason))
	LogInfo("Banned %s from guild %s by %s", target.ID, guildID, event.User().ID)
}

func handleTimeout(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	target := data.User("user")
	minutes := data.Int("minutes")
	reason := modDefaultReason
	if r, ok := data.OptString("reason"); ok {
		reason = r
	}

	guildID, ok := requireModerationTarget(event, target.ID)
	if !ok {
		return
	}

	client := event.Client()
	if err := timeoutMember(client, guildID, target.ID, time.Duration(minutes)*time.Minute, reason); err != nil {
		respondEphemeral(event, fmt.Sprintf(modErrAction, err))
		return
	}

	respondEphemeral(event, fmt.Sprintf(modMsgTimedOut, target.ID, minutes, reason))
	logModAction(client, guildID, fmt.Sprintf(modMsgTimedOut, target.ID, minutes, reason))
	sendUserDM(client, target.ID, fmt.Sprintf(modMsgTimeoutDM, guildDisplayName(client, guildID), minutes, reason))
	LogInfo("Timed out %s in guild %s for %d minute(s) by %s", target.ID, guildID, minutes, event.User().ID)
}

func handleUnban(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	reason := modDefaultReason
	if r, ok := data.OptString("reason"); ok {
		reason = r
	}

	if event.GuildID() == nil {
		respondEphemeral(event, ErrGuildOnly)
		return
	}
	guildID := *event.GuildID()

	userID, err := snowflake.Parse(data.String("user_id"))
	if err != nil {
		respondEphemeral(event, modErrUserID)
		return
	}

	client := event.Client()

	// Confirm the ban exists so a typo'd ID gets a clear answer
	if _, err := client.Rest.GetBan(guildID, userID, rest.WithCtx(AppContext)); err != nil {
		respondEphemeral(event, modErrNotBanned)
		return
	}

	if err := client.Rest.DeleteBan(guildID, userID, rest.WithCtx(AppContext), rest.WithReason(reason)); err != nil {
		respondEphemeral(event, fmt.Sprintf(modErrAction, err))
		return
	}

	respondEphemeral(event, fmt.Sprintf(modMsgUnbanned, userID, reason))
	logModAction(client, guildID, fmt.Sprintf(modMsgUnbanned, userID, reason))
	LogInfo("Unbanned %s in guild %s by %s", userID, guildID, event.User().ID)
}

func handleSlowmode(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	seconds := data.Int("seconds")
	reason := modDefaultReason
	if r, ok := data.OptString("reason"); ok {
		reason = r
	}

	if event.GuildID() == nil {
		respondEphemeral(event, ErrGuildOnly)
		return
	}
	guildID := *event.GuildID()

	channelID := event.Channel().ID()
	if ch, ok := data.OptChannel("channel"); ok {
		channelID = ch.ID
	}

	client := event.Client()
	if _, err := client.Rest.UpdateChannel(channelID, discord.GuildTextChannelUpdate{
		RateLimitPerUser: intPtr(seconds),
	}, rest.WithCtx(AppContext), rest.WithReason(reason)); err != nil {
		respondEphemeral(event, fmt.Sprintf(modErrAction, err))
		return
	}

	notice := fmt.Sprintf(modMsgSlowmode, channelID, seconds)
	if seconds == 0 {
		notice = fmt.Sprintf(modMsgSlowmodeOff, channelID)
	}
	respondEphemeral(event, notice)
	logModAction(client, guildID, notice)
	LogInfo("Slowmode in channel %s set to %ds by %s", channelID, seconds, event.User().ID)
}

// ===========================
// Helpers
// ===========================

// requireModerationTarget runs the shared pre-checks: guild-only,
// no self-moderation, role hierarchy.
func requireModerationTarget(event *events.ApplicationCommandInteractionCreate, targetID snowflake.ID) (snowflake.ID, bool) {
	if event.GuildID() == nil {
		respondEphemeral(event, ErrGuildOnly)
		return 0, false
	}
	guildID := *event.GuildID()

	if targetID == event.User().ID {
		respondEphemeral(event, modErrSelf)
		return 0, false
	}

	// Hierarchy only applies to current members; banning a non-member
	// is always allowed
	if member, ok := event.Client().Caches.Member(guildID, targetID); ok {
		if !isKickable(event.Client(), guildID, member.RoleIDs) {
			respondEphemeral(event, modErrHierarchy)
			return 0, false
		}
	}

	return guildID, true
}

func guildDisplayName(client *bot.Client, guildID snowflake.ID) string {
	if guild, ok := client.Caches.Guild(guildID); ok {
		return guild.Name
	}
	return guildID.String()
}

// logModAction mirrors a moderation notice to the configured logging
// channel, if any.
func logModAction(client *bot.Client, guildID snowflake.ID, content string) {
	cfg, err := GetGuildConfig(AppContext, guildID)
	if err != nil || cfg.LoggingChannelID == 0 {
		return
	}

	builder := discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(content),
			),
		)
	if _, err := client.Rest.CreateMessage(cfg.LoggingChannelID, builder.Build(), rest.WithCtx(AppContext)); err != nil {
		LogError("Failed to mirror moderation action to log channel: %v", err)
	}
}
