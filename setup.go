package main

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"
)

// ===========================
// Command Registration
// ===========================

func init() {
	adminPerm := discord.PermissionAdministrator

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "setup",
		Description:              "Configure bot features for this server (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "autorole",
				Description: "Set the role assigned to new members",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionRole{
						Name:        "role",
						Description: "The role to assign on join",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "verify",
				Description: "Require new members to gain a role or be kicked",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionRole{
						Name:        "role",
						Description: "The role that marks a member as verified",
						Required:    true,
					},
					discord.ApplicationCommandOptionInt{
						Name:        "timeout",
						Description: "Minutes before an unverified member is kicked (default 10)",
						Required:    false,
						MinValue:    intPtr(1),
						MaxValue:    intPtr(1440),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "welcome",
				Description: "Set the welcome and goodbye channels",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionChannel{
						Name:        "channel",
						Description: "Channel for welcome messages",
						Required:    true,
					},
					discord.ApplicationCommandOptionChannel{
						Name:        "goodbye",
						Description: "Channel for goodbye messages (defaults to the welcome channel)",
						Required:    false,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "logging",
				Description: "Set the moderation log channel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionChannel{
						Name:        "channel",
						Description: "Channel for moderation log messages",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "show",
				Description: "Show the current configuration",
			},
		},
	}, handleSetup)
}

const (
	setupMsgAutoRole = "✅ New members will now receive <@&%s>."
	setupMsgVerify   = "✅ Members must gain <@&%s> within %d minute(s) or be kicked."
	setupMsgWelcome  = "✅ Welcome messages go to <#%s>, goodbyes to <#%s>."
	setupMsgLogging  = "✅ Moderation actions will be mirrored to <#%s>."
	setupErrSave     = "Failed to save the configuration."
	setupErrLoad     = "Failed to load the configuration."
)

// ===========================
// Interaction Handlers
// ===========================

func handleSetup(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	subCmd := data.SubCommandName
	if subCmd == nil {
		return
	}
	if event.GuildID() == nil {
		respondEphemeral(event, ErrGuildOnly)
		return
	}
	guildID := *event.GuildID()

	switch *subCmd {
	case "autorole":
		role := data.Role("role")
		if err := SetGuildAutoRole(AppContext, guildID, role.ID); err != nil {
			LogDatabase("Failed to save auto role for guild %s: %v", guildID, err)
			respondEphemeral(event, setupErrSave)
			return
		}
		respondEphemeral(event, fmt.Sprintf(setupMsgAutoRole, role.ID))

	case "verify":
		role := data.Role("role")
		timeout := 10
		if t, ok := data.OptInt("timeout"); ok {
			timeout = t
		}
		if err := SetGuildVerification(AppContext, guildID, role.ID, timeout); err != nil {
			LogDatabase("Failed to save verification config for guild %s: %v", guildID, err)
			respondEphemeral(event, setupErrSave)
			return
		}
		respondEphemeral(event, fmt.Sprintf(setupMsgVerify, role.ID, timeout))

	case "welcome":
		channel := data.Channel("channel")
		goodbyeID := channel.ID
		if goodbye, ok := data.OptChannel("goodbye"); ok {
			goodbyeID = goodbye.ID
		}
		if err := SetGuildWelcomeChannels(AppContext, guildID, channel.ID, goodbyeID); err != nil {
			LogDatabase("Failed to save welcome config for guild %s: %v", guildID, err)
			respondEphemeral(event, setupErrSave)
			return
		}
		respondEphemeral(event, fmt.Sprintf(setupMsgWelcome, channel.ID, goodbyeID))

	case "logging":
		channel := data.Channel("channel")
		if err := SetGuildLoggingChannel(AppContext, guildID, channel.ID); err != nil {
			LogDatabase("Failed to save logging config for guild %s: %v", guildID, err)
			respondEphemeral(event, setupErrSave)
			return
		}
		respondEphemeral(event, fmt.Sprintf(setupMsgLogging, channel.ID))

	case "show":
		cfg, err := GetGuildConfig(AppContext, guildID)
		if err != nil {
			LogDatabase("Failed to load config for guild %s: %v", guildID, err)
			respondEphemeral(event, setupErrLoad)
			return
		}
		respondEphemeral(event, renderGuildConfig(cfg))
	}
}

func renderGuildConfig(cfg *GuildConfig) string {
	var sb strings.Builder
	sb.WriteString("⚙️ **Server Configuration**\n\n")
	sb.WriteString("**Auto role:** " + mentionRoleOrUnset(cfg.AutoRoleID) + "\n")
	if cfg.VerifyRoleID != 0 {
		sb.WriteString(fmt.Sprintf("**Verification:** <@&%s> within %d minute(s)\n", cfg.VerifyRoleID, cfg.VerifyTimeoutMinutes))
	} else {
		sb.WriteString("**Verification:** not set\n")
	}
	sb.WriteString("**Welcome channel:** " + mentionChannelOrUnset(cfg.WelcomeChannelID) + "\n")
	sb.WriteString("**Goodbye channel:** " + mentionChannelOrUnset(cfg.GoodbyeChannelID) + "\n")
	sb.WriteString("**Logging channel:** " + mentionChannelOrUnset(cfg.LoggingChannelID) + "\n")
	return sb.String()
}

func mentionRoleOrUnset(id snowflake.ID) string {
	if id == 0 {
		return "not set"
	}
	return fmt.Sprintf("<@&%s>", id)
}

func mentionChannelOrUnset(id snowflake.ID) string {
	if id == 0 {
		return "not set"
	}
	return fmt.Sprintf("<#%s>", id)
}
