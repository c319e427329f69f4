package main

import (
	"fmt"
	"math/rand"
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
		Name:        "giveaway",
		Description: "Run giveaways in this channel",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionSubCommand{
				Name:        "start",
				Description: "Start a giveaway in this channel",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:        "prize",
						Description: "What is being given away",
						Required:    true,
					},
					discord.ApplicationCommandOptionString{
						Name:        "duration",
						Description: "How long the giveaway runs (e.g., '10m', '1h', 'tomorrow at noon')",
						Required:    true,
					},
					discord.ApplicationCommandOptionInt{
						Name:        "winners",
						Description: "Number of winners (default 1)",
						Required:    false,
						MinValue:    intPtr(1),
						MaxValue:    intPtr(20),
					},
				},
			},
			discord.ApplicationCommandOptionSubCommand{
				Name:        "end",
				Description: "End one of your giveaways early and draw winners",
				Options: []discord.ApplicationCommandOption{
					discord.ApplicationCommandOptionString{
						Name:         "id",
						Description:  "The giveaway to end",
						Required:     true,
						Autocomplete: true,
					},
				},
			},
		},
	}, handleGiveaway)

	RegisterAutocompleteHandler("giveaway", handleGiveawayAutocomplete)
	RegisterComponentHandler("giveaway:", handleGiveawayComponent)
}

// ===========================
// Giveaway Messages
// ===========================

const (
	giveawayMsgHeader       = "🎉 **GIVEAWAY** 🎉\n\n**Prize:** %s\n**Winners:** %d\n**Ends:** <t:%d:R>\n**Hosted by:** <@%s>"
	giveawayMsgEntries      = "\n\n**Entries:** %d"
	giveawayMsgEntered      = "🎉 You have entered the giveaway!"
	giveawayMsgAlready      = "You have already entered this giveaway."
	giveawayMsgEnded        = "This giveaway has already ended."
	giveawayMsgEndedNow     = "🎉 Giveaway ended. Drawing winners..."
	giveawayMsgNotOwner     = "Only the giveaway host can end it early."
	giveawayMsgNoWinners    = "🎉 The giveaway for **%s** has ended, but nobody entered. No winners this time."
	giveawayMsgWinners      = "🎉 The giveaway for **%s** has ended!\n\n**Winners:** %s\n\nCongratulations!"
	giveawayMsgClosedHeader = "🎉 **GIVEAWAY ENDED** 🎉\n\n**Prize:** %s\n**Entries:** %d"
	giveawayErrDuration     = "Could not understand that duration. Try '10m', '2h' or 'tomorrow at noon'."
	giveawayErrTooLong      = "Giveaways can run for at most 30 days."
	giveawayErrCreate       = "Failed to start the giveaway: %v"
)

const giveawayMaxDuration = 30 * 24 * time.Hour

// ===========================
// Activity State
// ===========================

type Giveaway struct {
	id        string
	Prize     string
	Winners   int
	OwnerID   snowflake.ID
	ChannelID snowflake.ID
	MessageID snowflake.ID
	EndsAt    time.Time
	Entrants  map[snowflake.ID]struct{}
}

func (g *Giveaway) ActivityID() string   { return g.id }
func (g *Giveaway) ActivityKind() string { return "giveaway" }

// ===========================
// Interaction Handlers
// ===========================

func handleGiveaway(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	if data.SubCommandName == nil {
		return
	}

	switch *data.SubCommandName {
	case "start":
		handleGiveawayStart(event)
	case "end":
		handleGiveawayEndCommand(event, data.String("id"))
	}
}

func handleGiveawayStart(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	prize := data.String("prize")
	durationStr := data.String("duration")

	winners := 1
	if w, ok := data.OptInt("winners"); ok {
		winners = w
	}

	endsAt, err := parseNaturalTime(durationStr)
	if err != nil {
		respondEphemeral(event, giveawayErrDuration)
		return
	}
	if time.Until(endsAt) > giveawayMaxDuration {
		respondEphemeral(event, giveawayErrTooLong)
		return
	}

	g := &Giveaway{
		id:        NewActivityID("giveaway"),
		Prize:     prize,
		Winners:   winners,
		OwnerID:   event.User().ID,
		ChannelID: event.Channel().ID(),
		EndsAt:    endsAt,
		Entrants:  make(map[snowflake.ID]struct{}),
	}

	client := event.Client()
	if err := Activities.Add(g, endsAt, func(act Activity) {
		concludeGiveaway(client, act.(*Giveaway))
	}); err != nil {
		respondEphemeral(event, fmt.Sprintf(giveawayErrCreate, err))
		return
	}

	if err := event.CreateMessage(buildGiveawayMessage(g)); err != nil {
		LogGiveaway("Failed to post giveaway %s: %v", g.id, err)
		Activities.Cancel(g.id)
		return
	}

	// Track the interaction response so the expiry path can edit it
	if msg, err := client.Rest.GetInteractionResponse(event.ApplicationID(), event.Token()); err == nil && msg != nil {
		Activities.Mutate(g.id, func(act Activity) {
			act.(*Giveaway).MessageID = msg.ID
		})
	}

	LogGiveaway("Started giveaway %s for '%s' (%d winner(s), ends %s)", g.id, prize, winners, endsAt.Format(time.RFC3339))
}

func handleGiveawayEndCommand(event *events.ApplicationCommandInteractionCreate, giveawayID string) {
	g, ok := Activities.Get(giveawayID)
	if !ok {
		respondEphemeral(event, giveawayMsgEnded)
		return
	}
	if g.(*Giveaway).OwnerID != event.User().ID {
		respondEphemeral(event, giveawayMsgNotOwner)
		return
	}

	act, won := Activities.Finish(giveawayID)
	if !won {
		respondEphemeral(event, giveawayMsgEnded)
		return
	}

	respondEphemeral(event, giveawayMsgEndedNow)
	concludeGiveaway(event.Client(), act.(*Giveaway))
}

func handleGiveawayAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "id" {
		return
	}
	query := strings.ToLower(focused.String())
	userID := event.User().ID

	var choices []discord.AutocompleteChoice
	Activities.ForEach("giveaway", func(act Activity) {
		if len(choices) >= 25 {
			return
		}
		g := act.(*Giveaway)
		if g.OwnerID != userID {
			return
		}
		if query != "" && !strings.Contains(strings.ToLower(g.Prize), query) {
			return
		}
		choices = append(choices, discord.AutocompleteChoiceString{
			Name:  Truncate(g.Prize, 100),
			Value: g.id,
		})
	})
	_ = event.AutocompleteResult(choices)
}

func handleGiveawayComponent(event *events.ComponentInteractionCreate) {
	parts := strings.Split(event.Data.CustomID(), ":")
	if len(parts) < 3 {
		event.DeferUpdateMessage()
		return
	}
	giveawayID := parts[1]
	action := parts[2]

	switch action {
	case "enter":
		handleGiveawayEnter(event, giveawayID)
	case "end":
		handleGiveawayEnd(event, giveawayID)
	default:
		event.DeferUpdateMessage()
	}
}

func handleGiveawayEnter(event *events.ComponentInteractionCreate, giveawayID string) {
	userID := event.User().ID

	var duplicate bool
	var snapshot *Giveaway
	ok := Activities.Mutate(giveawayID, func(act Activity) {
		g := act.(*Giveaway)
		if _, exists := g.Entrants[userID]; exists {
			duplicate = true
			return
		}
		g.Entrants[userID] = struct{}{}
		snapshot = cloneGiveaway(g)
	})

	if !ok {
		respondComponentEphemeral(event, giveawayMsgEnded)
		return
	}
	if duplicate {
		respondComponentEphemeral(event, giveawayMsgAlready)
		return
	}

	// Re-render the entry count on the original message
	create := buildGiveawayMessage(snapshot)
	if err := event.UpdateMessage(discord.NewMessageUpdateBuilder().
		SetIsComponentsV2(true).
		SetComponents(create.Components...).
		Build()); err != nil {
		LogGiveaway("Failed to update giveaway %s message: %v", giveawayID, err)
	}
}

func handleGiveawayEnd(event *events.ComponentInteractionCreate, giveawayID string) {
	g, ok := Activities.Get(giveawayID)
	if !ok {
		respondComponentEphemeral(event, giveawayMsgEnded)
		return
	}

	if g.(*Giveaway).OwnerID != event.User().ID {
		respondComponentEphemeral(event, giveawayMsgNotOwner)
		return
	}

	event.DeferUpdateMessage()
	if act, won := Activities.Finish(giveawayID); won {
		concludeGiveaway(event.Client(), act.(*Giveaway))
	}
}

// ===========================
// Conclusion & Rendering
// ===========================

// concludeGiveaway draws winners and replaces the giveaway message. The
// activity is already terminal when this runs; g is exclusively ours.
func concludeGiveaway(client *bot.Client, g *Giveaway) {
	winners := drawGiveawayWinners(g.Entrants, g.Winners)

	var announce string
	if len(winners) == 0 {
		announce = fmt.Sprintf(giveawayMsgNoWinners, g.Prize)
	} else {
		announce = fmt.Sprintf(giveawayMsgWinners, g.Prize, formatMentions(winners))
	}

	// Close out the original message
	if g.MessageID != 0 {
		closed := discord.NewMessageUpdateBuilder().
			SetIsComponentsV2(true).
			SetComponents(
				discord.NewContainer(
					discord.NewTextDisplay(fmt.Sprintf(giveawayMsgClosedHeader, g.Prize, len(g.Entrants))),
				),
			).
			Build()
		if _, err := client.Rest.UpdateMessage(g.ChannelID, g.MessageID, closed, rest.WithCtx(AppContext)); err != nil {
			LogGiveaway("Failed to close giveaway %s message: %v", g.id, err)
		}
	}

	builder := discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(announce),
			),
		)
	if _, err := client.Rest.CreateMessage(g.ChannelID, builder.Build(), rest.WithCtx(AppContext)); err != nil {
		LogGiveaway("Failed to announce giveaway %s result: %v", g.id, err)
		return
	}

	LogGiveaway("Concluded giveaway %s: %d entrant(s), %d winner(s)", g.id, len(g.Entrants), len(winners))
}

// drawGiveawayWinners picks up to n distinct entrants uniformly at random.
func drawGiveawayWinners(entrants map[snowflake.ID]struct{}, n int) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(entrants))
	for id := range entrants {
		ids = append(ids, id)
	}
	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	if n > len(ids) {
		n = len(ids)
	}
	return ids[:n]
}

func formatMentions(ids []snowflake.ID) string {
	mentions := make([]string, len(ids))
	for i, id := range ids {
		mentions[i] = fmt.Sprintf("<@%s>", id)
	}
	return strings.Join(mentions, ", ")
}

func buildGiveawayMessage(g *Giveaway) discord.MessageCreate {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(giveawayMsgHeader, g.Prize, g.Winners, g.EndsAt.Unix(), g.OwnerID))
	sb.WriteString(fmt.Sprintf(giveawayMsgEntries, len(g.Entrants)))

	return discord.NewMessageCreateBuilder().
		SetIsComponentsV2(true).
		AddComponents(
			discord.NewContainer(
				discord.NewTextDisplay(sb.String()),
				discord.NewSeparator(discord.SeparatorSpacingSizeSmall).WithDivider(true),
				discord.NewActionRow(
					discord.NewButton(discord.ButtonStyleSuccess, "🎉 Enter", fmt.Sprintf("giveaway:%s:enter", g.id), "", 0),
					discord.NewButton(discord.ButtonStyleDanger, "End", fmt.Sprintf("giveaway:%s:end", g.id), "", 0),
				),
			),
		).
		Build()
}

// cloneGiveaway snapshots giveaway state under the registry lock so
// rendering can happen outside it.
func cloneGiveaway(g *Giveaway) *Giveaway {
	c := *g
	c.Entrants = make(map[snowflake.ID]struct{}, len(g.Entrants))
	for id := range g.Entrants {
		c.Entrants[id] = struct{}{}
	}
	return &c
}
