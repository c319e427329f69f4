package main

import (
	"context"
	"fmt"
	"sync/atomic"
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
	manageMessagesPerm := discord.PermissionManageMessages

	OnClientReady(func(ctx context.Context, client *bot.Client) {
		RegisterDaemon(LogCleaner, func(ctx context.Context) (bool, func(), func()) { return StartActivityMonitor(ctx, client) })
	})

	RegisterCommand(discord.SlashCommandCreate{
		Name:                     "clean",
		Description:              "Delete this bot's own messages in the channel",
		DefaultMemberPermissions: omit.New(&manageMessagesPerm),
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "count",
				Description: "Delete my most recent messages",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionInt{
						Name:        "amount",
						Description: "How many of my messages to delete (default 50)",
						Required:    false,
						MinValue:    intPtr(1),
						MaxValue:    intPtr(500),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "age",
				Description: "Delete my messages newer than a given age",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "duration",
						Description: "Maximum age (e.g., '30m', '2h')",
						Required:    true,
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "between",
				Description: "Delete my messages between two message IDs",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "first",
						Description: "Oldest message ID of the range",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "last",
						Description: "Newest message ID of the range",
						Required:    true,
					},
				},
			},
		},
	}, handleClean)
}

const (
	cleanMsgDone        = "🧹 Removed %d of my message(s), %d failed."
	cleanErrDuration    = "Could not understand that duration. Try '30m' or '2h'."
	cleanErrMessageID   = "That does not look like a message ID."
	cleanDefaultAmount  = 50
	cleanScanCap        = 1000
	activityMonitorTick = 5 * time.Minute
)

var activityMonitorRunning int32

// ===========================
// Interaction Handlers
// ===========================

func handleClean(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	client := event.Client()
	channelID := event.Channel().ID()

	selfUser, ok := client.Caches.SelfUser()
	if !ok {
		respondEphemeral(event, ErrInternal)
		return
	}

	var ids []snowflake.ID
	var err error

	switch *data.SubCommandName {
	case "count":
		amount := cleanDefaultAmount
		if a, ok := data.OptInt("amount"); ok {
			amount = a
		}
		respondEphemeral(event, fmt.Sprintf(purgeMsgWorking, amount))
		ids, err = collectPurgeTargets(client, channelID, amount, selfUser.ID)

	case "age":
		d, perr := time.ParseDuration(data.String("duration"))
		if perr != nil || d <= 0 {
			respondEphemeral(event, cleanErrDuration)
			return
		}
		respondEphemeral(event, fmt.Sprintf(purgeMsgWorking, cleanScanCap))
		ids, err = collectCleanByAge(client, channelID, selfUser.ID, time.Now().Add(-d))

	case "between":
		first, ferr := snowflake.Parse(data.String("first"))
		last, lerr := snowflake.Parse(data.String("last"))
		if ferr != nil || lerr != nil {
			respondEphemeral(event, cleanErrMessageID)
			return
		}
		if first > last {
			first, last = last, first
		}
		respondEphemeral(event, fmt.Sprintf(purgeMsgWorking, cleanScanCap))
		ids, err = collectCleanRange(client, channelID, selfUser.ID, first, last)

	default:
		return
	}

	if err != nil {
		LogCleaner("Failed to fetch messages in %s: %v", channelID, err)
		updateInteractionText(event, fmt.Sprintf(purgeErrFetch, err))
		return
	}

	executor := NewBulkExecutor(&restMessageDeleter{client: client, reason: fmt.Sprintf("Clean by %s", event.User().Username)})
	result := executor.DeleteMessages(AppContext, channelID, ids)

	LogCleaner("Clean in %s: %d deleted, %d failed", channelID, result.Deleted, result.Failed)
	updateInteractionText(event, fmt.Sprintf(cleanMsgDone, result.Deleted, result.Failed))
}

// collectCleanByAge pages backwards and stops at the first message older
// than cutoff. History is newest-first, so everything past that point is
// out of range too.
func collectCleanByAge(client *bot.Client, channelID, selfID snowflake.ID, cutoff time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	var before snowflake.ID

	for len(ids) < cleanScanCap {
		messages, err := client.Rest.GetMessages(channelID, 0, before, 0, purgeFetchPageLen, rest.WithCtx(AppContext))
		if err != nil {
			return nil, err
		}
		if len(messages) == 0 {
			break
		}

		for _, msg := range messages {
			before = msg.ID
			if msg.ID.Time().Before(cutoff) {
				return ids, nil
			}
			if msg.Author.ID != selfID {
				continue
			}
			ids = append(ids, msg.ID)
			if len(ids) >= cleanScanCap {
				break
			}
		}

		if len(messages) < purgeFetchPageLen {
			break
		}
	}

	return ids, nil
}

// collectCleanRange pages backwards from just above last and stops below
// first. Both endpoints are included.
func collectCleanRange(client *bot.Client, channelID, selfID, first, last snowflake.ID) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	before := last + 1

	for len(ids) < cleanScanCap {
		messages, err := client.Rest.GetMessages(channelID, 0, before, 0, purgeFetchPageLen, rest.WithCtx(AppContext))
		if err != nil {
			return nil, err
		}
		if len(messages) == 0 {
			break
		}

		for _, msg := range messages {
			before = msg.ID
			if msg.ID < first {
				return ids, nil
			}
			if msg.Author.ID != selfID {
				continue
			}
			ids = append(ids, msg.ID)
			if len(ids) >= cleanScanCap {
				break
			}
		}

		if len(messages) < purgeFetchPageLen {
			break
		}
	}

	return ids, nil
}

// ===========================
// Activity Monitor Daemon
// ===========================

// StartActivityMonitor periodically reports live activity counts so a
// slow leak of never-expiring activities shows up in the logs.
func StartActivityMonitor(ctx context.Context, client *bot.Client) (bool, func(), func()) {
	if !atomic.CompareAndSwapInt32(&activityMonitorRunning, 0, 1) {
		return false, nil, nil
	}

	return true, func() {
			ticker := time.NewTicker(activityMonitorTick)
			defer ticker.Stop()

			for {
				select {
				case <-ticker.C:
					reportActivityCounts()
				case <-ctx.Done():
					return
				}
			}
		}, func() {
			LogCleaner("Shutting down activity monitor...")
		}
}

func reportActivityCounts() {
	total := Activities.Count("")
	if total == 0 {
		return
	}

	counts := make(map[string]int)
	Activities.ForEach("", func(act Activity) {
		counts[act.ActivityKind()]++
	})

	LogCleaner("Live activities: %d total (giveaways: %d, polls: %d, reminders: %d, verifications: %d)",
		total, counts["giveaway"], counts["poll"], counts["reminder"], counts["verify"])
}
