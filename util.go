package main

import (
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// ============================================================================
// Interaction Response Helpers
// ============================================================================

// respondEphemeral sends an ephemeral container response to a slash command.
func respondEphemeral(event *events.ApplicationCommandInteractionCreate, content string) {
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(content),
			),
		).
		SetEphemeral(true).
		Build())
	if err != nil {
		LogError(ErrRespondFail, err)
	}
}

// respondComponentEphemeral sends an ephemeral container response to a
// component interaction without touching the original message.
func respondComponentEphemeral(event *events.ComponentInteractionCreate, content string) {
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(content),
			),
		).
		SetEphemeral(true).
		Build())
	if err != nil {
		LogError(ErrRespondFail, err)
	}
}

// sendUserDM delivers a best-effort direct message. Failures are
// swallowed; users can disable DMs.
func sendUserDM(client *bot.Client, userID snowflake.ID, content string) {
	dmChannel, err := client.Rest.CreateDMChannel(userID, rest.WithCtx(AppContext))
	if err != nil {
		return
	}
	builder := discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(content),
			),
		)
	_, _ = client.Rest.CreateMessage(dmChannel.ID(), builder.Build(), rest.WithCtx(AppContext))
}

// ============================================================================
// Permissions
// ============================================================================

// memberGuildPermissions computes a member's guild-wide permissions from
// the role cache. Channel overwrites are not applied.
func memberGuildPermissions(client *bot.Client, guildID snowflake.ID, member discord.Member) discord.Permissions {
	guild, ok := client.Caches.Guild(guildID)
	if !ok {
		return 0
	}

	// Owner bypass
	if guild.OwnerID == member.User.ID {
		return discord.PermissionsAll
	}

	var perms discord.Permissions
	if everyoneRole, ok := client.Caches.Role(guildID, snowflake.ID(guildID)); ok {
		perms |= everyoneRole.Permissions
	}
	for _, roleID := range member.RoleIDs {
		if role, ok := client.Caches.Role(guildID, roleID); ok {
			perms |= role.Permissions
		}
	}

	if perms.Has(discord.PermissionAdministrator) {
		return discord.PermissionsAll
	}
	return perms
}

// highestRolePosition returns the position of the member's highest role.
// The @everyone role sits at position 0.
func highestRolePosition(client *bot.Client, guildID snowflake.ID, roleIDs []snowflake.ID) int {
	highest := 0
	for _, roleID := range roleIDs {
		if role, ok := client.Caches.Role(guildID, roleID); ok && role.Position > highest {
			highest = role.Position
		}
	}
	return highest
}

// ============================================================================
// Misc
// ============================================================================

// Truncate truncates a string to the specified length with ellipsis at the end.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

func intPtr(i int) *int {
	return &i
}
