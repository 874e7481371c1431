package bot

import (
	"context"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/gatebot/internal/gate"
)

const helpCommand = "!help"

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Printf("%s is connected to %d guilds", event.User.Username, len(event.Guilds))
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	ctx := context.Background()

	if m.GuildID == "" {
		if m.Author.Bot {
			return
		}
		ev := gate.PrivateEvent{User: toMember(m.Author, nil), Text: m.Content}
		if err := b.machine.Private(ctx, ev); err != nil {
			log.Printf("bot: private message from %s: %v", m.Author.ID, err)
		}
		return
	}

	if m.Type == discordgo.MessageTypeGuildMemberJoin {
		b.transport.noteChannel(parseID(m.GuildID), m.ChannelID)
		if err := b.machine.Join(ctx, joinEvent(m.Message, guildName(s, m.GuildID))); err != nil {
			log.Printf("bot: join in guild %s: %v", m.GuildID, err)
		}
		return
	}

	if strings.TrimSpace(m.Content) == helpCommand {
		to := gate.Destination{Chat: parseID(m.GuildID)}
		if err := b.machine.Help(ctx, to); err != nil {
			log.Printf("bot: help in guild %s: %v", m.GuildID, err)
		}
		return
	}

	if err := b.machine.Message(ctx, messageEvent(m.Message)); err != nil {
		log.Printf("bot: message in guild %s: %v", m.GuildID, err)
	}
}

func (b *Bot) onGuildMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	if m.Member == nil || m.User == nil {
		return
	}
	chat := parseID(m.GuildID)
	ev := gate.LeaveEvent{
		Chat:  chat,
		User:  toMember(m.User, m.Member),
		ByBot: b.transport.takeExpelled(chat, parseID(m.User.ID)),
	}
	if err := b.machine.Leave(context.Background(), ev); err != nil {
		log.Printf("bot: leave in guild %s: %v", m.GuildID, err)
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent || i.Message == nil {
		return
	}
	ctx := context.Background()
	data := i.MessageComponentData()
	user := interactionUser(i)

	if choice, ok := strings.CutPrefix(data.CustomID, menuPrefix); ok {
		if err := b.machine.Private(ctx, gate.PrivateEvent{User: user, Text: choice}); err != nil {
			log.Printf("bot: menu choice from %d: %v", user.ID, err)
		}
		respond(s, i, "")
		return
	}

	alert, err := b.machine.Answer(ctx, answerEvent(i, user))
	if err != nil {
		log.Printf("bot: answer from %d: %v", user.ID, err)
	}
	respond(s, i, alert)
}

// respond acknowledges a button press, showing alert only to the presser.
func respond(s *discordgo.Session, i *discordgo.InteractionCreate, alert string) {
	resp := &discordgo.InteractionResponse{Type: discordgo.InteractionResponseDeferredMessageUpdate}
	if alert != "" {
		resp = &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: alert,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		}
	}
	if err := s.InteractionRespond(i.Interaction, resp); err != nil {
		log.Printf("bot: interaction response: %v", err)
	}
}

func guildName(s *discordgo.Session, guildID string) string {
	if g, err := s.State.Guild(guildID); err == nil {
		return g.Name
	}
	return ""
}

func joinEvent(m *discordgo.Message, title string) gate.JoinEvent {
	return gate.JoinEvent{
		Chat:      parseID(m.GuildID),
		ChatTitle: title,
		Message:   messageRef(m.ChannelID, m.ID),
		Members:   []gate.Member{toMember(m.Author, m.Member)},
	}
}

func messageEvent(m *discordgo.Message) gate.MessageEvent {
	ev := gate.MessageEvent{
		Chat:    parseID(m.GuildID),
		User:    toMember(m.Author, m.Member),
		Message: messageRef(m.ChannelID, m.ID),
		Text:    m.Content,
		Media:   len(m.Attachments) > 0 || len(m.StickerItems) > 0,
	}
	for _, e := range m.Embeds {
		if e == nil {
			continue
		}
		ev.Quoted = append(ev.Quoted, e.Title, e.Description)
	}
	return ev
}

func interactionUser(i *discordgo.InteractionCreate) gate.Member {
	if i.Member != nil {
		return toMember(i.Member.User, i.Member)
	}
	return toMember(i.User, nil)
}

func answerEvent(i *discordgo.InteractionCreate, user gate.Member) gate.AnswerEvent {
	return gate.AnswerEvent{
		Chat:    parseID(i.GuildID),
		Private: i.GuildID == "",
		User:    user,
		Message: messageRef(i.Message.ChannelID, i.Message.ID),
		Data:    i.MessageComponentData().CustomID,
	}
}
