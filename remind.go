package main

import (
	"fmt"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/sho0pi/naturaltime"
)

// ===========================
// Command Registration
// ===========================

func init() {
	initReminderParser()

	RegisterCommand(discord.SlashCommandCreate{
		Name:        "remind",
		Description: "Set a reminder",
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "message",
				Description: "What to remind you about",
				Required:    true,
			},
			discord.ApplicationCommandOptionString{
				Name:        "when",
				Description: "When to remind (e.g., 'in 10 minutes', 'tomorrow at 3pm', '2h')",
				Required:    true,
			},
			discord.ApplicationCommandOptionString{
				Name:        "sendto",
				Description: "Where to send the reminder",
				Required:    false,
				Choices: []discord.ApplicationCommandOptionChoiceString{
					{Name: "This Channel (Default)", Value: "channel"},
					{Name: "Direct Message", Value: "dm"},
				},
			},
			discord.ApplicationCommandOptionUser{
				Name:        "user",
				Description: "Who to remind (defaults to you)",
				Required:    false,
			},
		},
	}, handleRemindSet)
}

// ===========================
// Reminder Messages
// ===========================

const (
	remindMsgSet          = "⏰ Got it! I'll remind you %s:\n> %s"
	remindMsgSetOther     = "⏰ Got it! I'll remind <@%s> %s:\n> %s"
	remindMsgFire         = "🔔 **Reminder for <@%s>**\n\n%s"
	remindMsgSetBy        = "\n\n*Set by <@%s>*"
	remindMsgDMFallback   = "⚠️ I couldn't send this as a private message:\n\n"
	remindErrParse        = "I couldn't understand that time. Try 'in 10 minutes', 'tomorrow at 3pm' or '2h'."
	remindErrPast         = "That time is in the past."
	remindErrTooFar       = "Reminders can be at most 30 days out."
	remindErrCreate       = "Failed to set the reminder: %v"
	remindMaxDuration     = 30 * 24 * time.Hour
	remindNaturalInitFail = "Failed to initialize natural time parser: %v"
)

// ===========================
// Activity State
// ===========================

type Reminder struct {
	id        string
	UserID    snowflake.ID // who set the reminder
	TargetID  snowflake.ID // who receives it
	ChannelID snowflake.ID
	GuildID   snowflake.ID
	Message   string
	RemindAt  time.Time
	SendTo    string // "channel" or "dm"
}

func (r *Reminder) ActivityID() string   { return r.id }
func (r *Reminder) ActivityKind() string { return "reminder" }

var reminderParser *naturaltime.Parser

// initReminderParser initializes the natural language time parser
func initReminderParser() {
	var err error
	reminderParser, err = naturaltime.New()
	if err != nil {
		LogFatal(remindNaturalInitFail, err)
	}
}

// parseNaturalTime parses natural language time expressions into a time.Time
func parseNaturalTime(input string) (time.Time, error) {
	now := time.Now().UTC()

	result, err := reminderParser.ParseDate(input, now)
	if err == nil && result != nil {
		return *result, nil
	}

	if d, err := time.ParseDuration(input); err == nil {
		return now.Add(d), nil
	}

	return time.Time{}, fmt.Errorf("could not parse time: %s", input)
}

// ===========================
// Interaction Handlers
// ===========================

func handleRemindSet(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	message := data.String("message")
	whenStr := data.String("when")
	sendTo := "channel"
	if st, ok := data.OptString("sendto"); ok {
		sendTo = st
	}
	targetID := event.User().ID
	if target, ok := data.OptUser("user"); ok {
		targetID = target.ID
	}

	remindAt, err := parseNaturalTime(whenStr)
	if err != nil {
		respondEphemeral(event, remindErrParse)
		return
	}
	if remindAt.Before(time.Now().UTC()) {
		respondEphemeral(event, remindErrPast)
		return
	}
	if time.Until(remindAt) > remindMaxDuration {
		respondEphemeral(event, remindErrTooFar)
		return
	}

	var guildID snowflake.ID
	if event.GuildID() != nil {
		guildID = *event.GuildID()
	}

	r := &Reminder{
		id:        NewActivityID("reminder"),
		UserID:    event.User().ID,
		TargetID:  targetID,
		ChannelID: event.Channel().ID(),
		GuildID:   guildID,
		Message:   message,
		RemindAt:  remindAt,
		SendTo:    sendTo,
	}

	client := event.Client()
	if err := Activities.Add(r, remindAt, func(act Activity) {
		deliverReminder(client, act.(*Reminder))
	}); err != nil {
		respondEphemeral(event, fmt.Sprintf(remindErrCreate, err))
		return
	}

	relativeTime := formatRelativeTime(time.Now().UTC(), remindAt)
	if targetID == r.UserID {
		respondEphemeral(event, fmt.Sprintf(remindMsgSet, relativeTime, Truncate(message, 100)))
	} else {
		respondEphemeral(event, fmt.Sprintf(remindMsgSetOther, targetID, relativeTime, Truncate(message, 100)))
	}

	LogReminder("Set reminder %s by %s for %s (fires %s, via %s)", r.id, r.UserID, targetID, remindAt.Format(time.RFC3339), sendTo)
}

// ===========================
// Delivery
// ===========================

// reminderText renders the delivery text: the target mention, the
// message, and credit for the creator when someone else set it.
func reminderText(r *Reminder) string {
	text := fmt.Sprintf(remindMsgFire, r.TargetID, r.Message)
	if r.TargetID != r.UserID {
		text += fmt.Sprintf(remindMsgSetBy, r.UserID)
	}
	return text
}

func reminderMessage(text string) discord.MessageCreate {
	return discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(text),
			),
		).
		Build()
}

// reminderSender is the surface delivery needs from the REST client,
// narrowed so the fallback path is testable.
type reminderSender interface {
	OpenDMChannel(userID snowflake.ID) (snowflake.ID, error)
	SendText(channelID snowflake.ID, text string) error
}

type restReminderSender struct {
	client *bot.Client
}

func (s restReminderSender) OpenDMChannel(userID snowflake.ID) (snowflake.ID, error) {
	ch, err := s.client.Rest.CreateDMChannel(userID, rest.WithCtx(AppContext))
	if err != nil {
		return 0, err
	}
	return ch.ID(), nil
}

func (s restReminderSender) SendText(channelID snowflake.ID, text string) error {
	_, err := s.client.Rest.CreateMessage(channelID, reminderMessage(text), rest.WithCtx(AppContext))
	return err
}

func deliverReminder(client *bot.Client, r *Reminder) {
	deliverReminderWith(restReminderSender{client: client}, r)
}

// deliverReminderWith sends the reminder via DM or channel. Any DM
// failure, whether opening the channel or sending into it, falls back
// to the channel the reminder was set in.
func deliverReminderWith(sender reminderSender, r *Reminder) {
	text := reminderText(r)

	if r.SendTo == "dm" {
		if dmChannelID, err := sender.OpenDMChannel(r.TargetID); err != nil {
			LogReminder("Failed to create DM channel for %s, falling back to channel: %v", r.TargetID, err)
		} else if err := sender.SendText(dmChannelID, text); err != nil {
			LogReminder("Failed to DM reminder %s, falling back to channel: %v", r.id, err)
		} else {
			LogReminder("Delivered reminder %s to user %s via DM", r.id, r.TargetID)
			return
		}
		text = remindMsgDMFallback + text
	}

	if err := sender.SendText(r.ChannelID, text); err != nil {
		LogReminder("Failed to deliver reminder %s: %v", r.id, err)
		return
	}

	LogReminder("Delivered reminder %s to user %s", r.id, r.TargetID)
}

// formatRelativeTime formats a duration as a human-readable relative time string
func formatRelativeTime(from, to time.Time) string {
	duration := to.Sub(from)

	if duration < time.Minute {
		return "in less than a minute"
	}

	if duration < time.Hour {
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "in 1 minute"
		}
		return fmt.Sprintf("in %d minutes", minutes)
	}

	if duration < 24*time.Hour {
		hours := int(duration.Hours())
		if hours == 1 {
			return "in 1 hour"
		}
		return fmt.Sprintf("in %d hours", hours)
	}

	days := int(duration.Hours() / 24)
	if days == 1 {
		return "in 1 day"
	}
	if days < 7 {
		return fmt.Sprintf("in %d days", days)
	}

	weeks := days / 7
	if weeks == 1 {
		return "in 1 week"
	}
	return fmt.Sprintf("in %d weeks", weeks)
}
