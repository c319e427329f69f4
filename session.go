package main

import (
	"os"
	"slices"
	"syscall"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
)

// ===========================
// Command Registration
// ===========================

func init() {
	adminPerm := discord.PermissionAdministrator

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "session",
		Description:              "Session management utilities (Owner Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "restart",
				Description: "Restart the bot process",
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "shutdown",
				Description: "Shut down the bot process",
			},
		},
	}, handleSession)
}

// ===========================
// Session Messages
// ===========================

const (
	sessionMsgRestarting   = "🔄 Restarting..."
	sessionMsgShuttingDown = "🛑 Shutting down..."
	sessionErrOwnerOnly    = "Only the bot owner can do that."
	sessionMsgRestartCmd   = "Restart commanded by %s (%s)"
	sessionMsgShutdownCmd  = "Shutdown commanded by %s (%s)"
)

// ===========================
// Command Handlers
// ===========================

// isBotOwner reports whether the user is listed in OWNER_IDS.
func isBotOwner(userID string) bool {
	return GlobalConfig != nil && slices.Contains(GlobalConfig.OwnerIDs, userID)
}

func handleSession(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	if !isBotOwner(event.User().ID.String()) {
		respondEphemeral(event, sessionErrOwnerOnly)
		return
	}

	switch *data.SubCommandName {
	case "restart":
		handleSessionRestart(event)
	case "shutdown":
		handleSessionShutdown(event)
	}
}

// handleSessionRestart marks the process for re-exec and then raises
// SIGTERM against itself so the normal graceful shutdown path runs.
func handleSessionRestart(event *events.ApplicationCommandInteractionCreate) {
	LogWarn(sessionMsgRestartCmd, event.User().Username, event.User().ID)
	respondEphemeral(event, sessionMsgRestarting)

	RestartRequested = true
	safeGo(func() {
		time.Sleep(1500 * time.Millisecond)
		_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
	})
}

func handleSessionShutdown(event *events.ApplicationCommandInteractionCreate) {
	LogWarn(sessionMsgShutdownCmd, event.User().Username, event.User().ID)
	respondEphemeral(event, sessionMsgShuttingDown)

	safeGo(func() {
		time.Sleep(time.Second)
		_ = syscall.Kill(os.Getpid(), syscall.SIGTERM)
	})
}
