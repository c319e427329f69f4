package main

import (
	"fmt"

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
	manageMessagesPerm := discord.PermissionManageMessages

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "purge",
		Description:              "Bulk delete messages in this channel",
		DefaultMemberPermissions: omit.New(&manageMessagesPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "amount",
				Description: "How many messages to delete (max 1000)",
				Required:    true,
				MinValue:    intPtr(1),
				MaxValue:    intPtr(1000),
			},
			discord.ApplicationCommandOptionUser{
				Name:        "user",
				Description: "Only delete messages from this user",
				Required:    false,
			},
		},
	}, handlePurge)
}

const (
	purgeMsgWorking   = "🧹 Deleting up to %d message(s)..."
	purgeMsgDone      = "🧹 Purge complete: deleted %d message(s), %d failed."
	purgeErrFetch     = "Failed to fetch messages: %v"
	purgeFetchPageLen = 100
)

// ===========================
// Interaction Handlers
// ===========================

func handlePurge(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	amount := data.Int("amount")

	var filterUser snowflake.ID
	if user, ok := data.OptUser("user"); ok {
		filterUser = user.ID
	}

	client := event.Client()
	channelID := event.Channel().ID()

	respondEphemeral(event, fmt.Sprintf(purgeMsgWorking, amount))

	ids, err := collectPurgeTargets(client, channelID, amount, filterUser)
	if err != nil {
		LogCleaner("Failed to fetch messages in %s: %v", channelID, err)
		updateInteractionText(event, fmt.Sprintf(purgeErrFetch, err))
		return
	}

	executor := NewBulkExecutor(&restMessageDeleter{client: client, reason: fmt.Sprintf("Purge by %s", event.User().Username)})
	result := executor.DeleteMessages(AppContext, channelID, ids)

	LogCleaner("Purge in %s: %d deleted, %d failed", channelID, result.Deleted, result.Failed)
	updateInteractionText(event, fmt.Sprintf(purgeMsgDone, result.Deleted, result.Failed))
}

// collectPurgeTargets pages backwards through channel history until it
// has amount matching messages or history runs out.
func collectPurgeTargets(client *bot.Client, channelID snowflake.ID, amount int, filterUser snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	var before snowflake.ID

	for len(ids) < amount {
		messages, err := client.Rest.GetMessages(channelID, 0, before, 0, purgeFetchPageLen, rest.WithCtx(AppContext))
		if err != nil {
			return nil, err
		}
		if len(messages) == 0 {
			break
		}

		for _, msg := range messages {
			before = msg.ID
			if filterUser != 0 && msg.Author.ID != filterUser {
				continue
			}
			ids = append(ids, msg.ID)
			if len(ids) >= amount {
				break
			}
		}

		if len(messages) < purgeFetchPageLen {
			break
		}
	}

	return ids, nil
}

// updateInteractionText replaces the ephemeral progress response.
func updateInteractionText(event *events.ApplicationCommandInteractionCreate, content string) {
	update := discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(
			discord.NewContainer(
				discord.NewTextDisplay(content),
			),
		).
		Build()
	if _, err := event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(), update, rest.WithCtx(AppContext)); err != nil {
		LogCleaner("Failed to update purge response: %v", err)
	}
}
