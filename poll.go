package main

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
)

// ===========================
// Command Registration
// ===========================

func init() {
	RegisterCommand(discord.SlashCommandCreate{
		Name:        "poll",
		Description: "Create a poll with up to 5 options",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "question",
				Description: "The poll question",
				Required:    true,
			},
			discord.ApplicationCommandOptionString{
				Name:        "option1",
				Description: "First option",
				Required:    true,
			},
			discord.ApplicationCommandOptionString{
				Name:        "option2",
				Description: "Second option",
				Required:    true,
			},
			discord.ApplicationCommandOptionString{
				Name:        "option3",
				Description: "Third option",
				Required:    false,
			},
			discord.ApplicationCommandOptionString{
				Name:        "option4",
				Description: "Fourth option",
				Required:    false,
			},
			discord.ApplicationCommandOptionString{
				Name:        "option5",
				Description: "Fifth option",
				Required:    false,
			},
			discord.ApplicationCommandOptionString{
				Name:        "duration",
				Description: "How long the poll stays open (e.g., '30m', '1h'). Open until ended if omitted.",
				Required:    false,
			},
		},
	}, handlePollCreate)

	RegisterComponentHandler("poll:", handlePollComponent)
}

// ===========================
// Poll Messages
// ===========================

const (
	pollMsgEnded       = "This poll has already ended."
	pollMsgNotOwner    = "Only the poll creator can end it."
	pollMsgNoVotes     = "No votes were cast."
	pollMsgResultsFor  = "📊 **Poll results:** %s\n\n%s"
	pollErrDuration    = "Could not understand that duration. Try '30m' or '2h'."
	pollErrTooLong     = "Polls can stay open for at most 30 days."
	pollErrCreate      = "Failed to create the poll: %v"
	pollBarCells       = 20
	pollMaxDurationStr = "720h"
)

// ===========================
// Activity State
// ===========================

type Poll struct {
	id        string
	Question  string
	Options   []string
	OwnerID   snowflake.ID
	ChannelID snowflake.ID
	MessageID snowflake.ID
	EndsAt    time.Time // zero when the poll has no deadline

	// Votes maps user -> option index. One vote per user; a new vote
	// replaces the old one.
	Votes map[snowflake.ID]int
}

func (p *Poll) ActivityID() string   { return p.id }
func (p *Poll) ActivityKind() string { return "poll" }

// ===========================
// Interaction Handlers
// ===========================

func handlePollCreate(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	question := data.String("question")

	var options []string
	for i := 1; i <= 5; i++ {
		if opt, ok := data.OptString("option" + strconv.Itoa(i)); ok && strings.TrimSpace(opt) != "" {
			options = append(options, opt)
		}
	}

	var endsAt time.Time
	if durationStr, ok := data.OptString("duration"); ok {
		var err error
		endsAt, err = parseNaturalTime(durationStr)
		if err != nil {
			respondEphemeral(event, pollErrDuration)
			return
		}
		maxDur, _ := time.ParseDuration(pollMaxDurationStr)
		if time.Until(endsAt) > maxDur {
			respondEphemeral(event, pollErrTooLong)
			return
		}
	}

	p := &Poll{
		id:        NewActivityID("poll"),
		Question:  question,
		Options:   options,
		OwnerID:   event.User().ID,
		ChannelID: event.Channel().ID(),
		EndsAt:    endsAt,
		Votes:     make(map[snowflake.ID]int),
	}

	client := event.Client()
	if err := Activities.Add(p, endsAt, func(act Activity) {
		concludePoll(client, act.(*Poll))
	}); err != nil {
		respondEphemeral(event, fmt.Sprintf(pollErrCreate, err))
		return
	}

	if err := event.CreateMessage(buildPollMessage(p)); err != nil {
		LogPoll("Failed to post poll %s: %v", p.id, err)
		Activities.Cancel(p.id)
		return
	}

	if msg, err := client.Rest.GetInteractionResponse(event.ApplicationID(), event.Token()); err == nil && msg != nil {
		Activities.Mutate(p.id, func(act Activity) {
			act.(*Poll).MessageID = msg.ID
		})
	}

	LogPoll("Created poll %s: '%s' (%d options)", p.id, Truncate(question, 50), len(options))
}

func handlePollComponent(event *events.ComponentInteractionCreate) {
	parts := strings.Split(event.Data.CustomID(), ":")
	if len(parts) < 3 {
		event.DeferUpdateMessage()
		return
	}
	pollID := parts[1]
	action := parts[2]

	switch action {
	case "vote":
		if len(parts) < 4 {
			event.DeferUpdateMessage()
			return
		}
		optionIdx, err := strconv.Atoi(parts[3])
		if err != nil {
			event.DeferUpdateMessage()
			return
		}
		handlePollVote(event, pollID, optionIdx)
	case "end":
		handlePollEnd(event, pollID)
	default:
		event.DeferUpdateMessage()
	}
}

func handlePollVote(event *events.ComponentInteractionCreate, pollID string, optionIdx int) {
	userID := event.User().ID

	var snapshot *Poll
	var invalid bool
	ok := Activities.Mutate(pollID, func(act Activity) {
		p := act.(*Poll)
		if optionIdx < 0 || optionIdx >= len(p.Options) {
			invalid = true
			return
		}
		p.Votes[userID] = optionIdx
		snapshot = clonePoll(p)
	})

	if !ok {
		respondComponentEphemeral(event, pollMsgEnded)
		return
	}
	if invalid {
		event.DeferUpdateMessage()
		return
	}

	create := buildPollMessage(snapshot)
	if err := event.UpdateMessage(discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(create.Components...).
		Build()); err != nil {
		LogPoll("Failed to update poll %s message: %v", pollID, err)
	}
}

func handlePollEnd(event *events.ComponentInteractionCreate, pollID string) {
	p, ok := Activities.Get(pollID)
	if !ok {
		respondComponentEphemeral(event, pollMsgEnded)
		return
	}

	if p.(*Poll).OwnerID != event.User().ID {
		respondComponentEphemeral(event, pollMsgNotOwner)
		return
	}

	event.DeferUpdateMessage()
	if act, won := Activities.Finish(pollID); won {
		concludePoll(event.Client(), act.(*Poll))
	}
}

// ===========================
// Conclusion & Rendering
// ===========================

func concludePoll(client *bot.Client, p *Poll) {
	results := renderPollResults(p)

	if p.MessageID != 0 {
		closed := discord.NewMessageUpdateBuilder().
			SetIsComponentsV2(true).
			SetComponents(
				discord.NewContainer(
					discord.NewTextDisplay(fmt.Sprintf(pollMsgResultsFor, p.Question, results)),
				),
			).
			Build()
		if _, err := client.Rest.UpdateMessage(p.ChannelID, p.MessageID, closed, rest.WithCtx(AppContext)); err != nil {
			LogPoll("Failed to close poll %s message: %v", p.id, err)
		}
	}

	LogPoll("Concluded poll %s: %d vote(s)", p.id, len(p.Votes))
}

// renderPollResults renders one bar line per option, or a no-votes notice.
func renderPollResults(p *Poll) string {
	if len(p.Votes) == 0 {
		return pollMsgNoVotes
	}

	counts := make([]int, len(p.Options))
	for _, idx := range p.Votes {
		if idx >= 0 && idx < len(counts) {
			counts[idx]++
		}
	}
	total := len(p.Votes)

	var sb strings.Builder
	for i, opt := range p.Options {
		pct := pollPercentage(counts[i], total)
		sb.WriteString(fmt.Sprintf("**%s**\n%s %d%% (%d)\n", opt, pollBar(pct), pct, counts[i]))
	}
	return sb.String()
}

// pollPercentage rounds to the nearest whole percent; zero votes is 0%.
func pollPercentage(votes, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(votes) / float64(total) * 100))
}

// pollBar builds a fixed-width bar, one cell per 5%.
func pollBar(pct int) string {
	filled := int(math.Round(float64(pct) / 5))
	if filled > pollBarCells {
		filled = pollBarCells
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", pollBarCells-filled)
}

func buildPollMessage(p *Poll) discord.MessageCreate {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("📊 **%s**\n", p.Question))
	if !p.EndsAt.IsZero() {
		sb.WriteString(fmt.Sprintf("Closes <t:%d:R>\n", p.EndsAt.Unix()))
	}
	sb.WriteString(fmt.Sprintf("\n%s\n**Votes:** %d", renderPollLive(p), len(p.Votes)))

	var rows []discord.ContainerSubComponent
	rows = append(rows,
		discord.NewTextDisplay(sb.String()),
		discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true),
	)

	// Option buttons, max 5 per row
	var buttons []discord.InteractiveComponent
	for i := range p.Options {
		buttons = append(buttons, discord.NewButton(
			discord.ButtonStylePrimary,
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("poll:%s:vote:%d", p.id, i),
			"", 0,
		))
	}
	rows = append(rows, discord.NewActionRow(buttons...))
	rows = append(rows, discord.NewActionRow(
		discord.NewButton(discord.ButtonStyleDanger, "End Poll", fmt.Sprintf("poll:%s:end", p.id), "", 0),
	))

	return discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(discord.NewContainer(rows...)).
		Build()
}

// renderPollLive lists options with their current counts.
func renderPollLive(p *Poll) string {
	counts := make([]int, len(p.Options))
	for _, idx := range p.Votes {
		if idx >= 0 && idx < len(counts) {
			counts[idx]++
		}
	}

	var sb strings.Builder
	for i, opt := range p.Options {
		sb.WriteString(fmt.Sprintf("**%d.** %s — %d\n", i+1, opt, counts[i]))
	}
	return sb.String()
}

func clonePoll(p *Poll) *Poll {
	c := *p
	c.Options = append([]string(nil), p.Options...)
	c.Votes = make(map[snowflake.ID]int, len(p.Votes))
	for id, idx := range p.Votes {
		c.Votes[id] = idx
	}
	return &c
}
