package main

import (
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
)

func init() {
	RegisterMemberJoinHandler(handleAutoRoleJoin)
}

// handleAutoRoleJoin assigns the configured role to every new member.
func handleAutoRoleJoin(event *events.GuildMemberJoin) {
	cfg, err := GetGuildConfig(AppContext, event.GuildID)
	if err != nil {
		LogAutoRole("Failed to load config for guild %s: %v", event.GuildID, err)
		return
	}
	if cfg.AutoRoleID == 0 {
		return
	}

	userID := event.Member.User.ID
	err = event.Client().Rest.AddMemberRole(event.GuildID, userID, cfg.AutoRoleID,
		rest.WithCtx(AppContext), rest.WithReason("Auto role on join"))
	if err != nil {
		LogAutoRole("Failed to assign role %s to %s: %v", cfg.AutoRoleID, userID, err)
		return
	}

	LogAutoRole("Assigned role %s to new member %s in guild %s", cfg.AutoRoleID, userID, event.GuildID)
}
