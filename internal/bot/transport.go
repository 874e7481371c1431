package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/gatebot/internal/admission"
	"github.com/susu3304/gatebot/internal/gate"
	"github.com/susu3304/gatebot/internal/timer"
)

// menuPrefix marks private menu buttons; the rest of the custom ID is the
// choice text.
const menuPrefix = "menu:"

// Minimal session interface for the calls the gate needs.
type session interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageEditComplex(m *discordgo.MessageEdit, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageDelete(channelID, messageID string, options ...discordgo.RequestOption) error
	GuildMemberTimeout(guildID string, userID string, until *time.Time, options ...discordgo.RequestOption) error
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildBanCreateWithReason(guildID, userID, reason string, days int, options ...discordgo.RequestOption) error
	GuildBanDelete(guildID, userID string, options ...discordgo.RequestOption) error
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	UserChannelCreate(recipientID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	Guild(guildID string, options ...discordgo.RequestOption) (*discordgo.Guild, error)
}

type TransportOptions struct {
	// WelcomeChannel overrides where group messages go in every guild.
	WelcomeChannel string
	// RestrictedRole is held during the text-only window.
	RestrictedRole string
}

type unban struct {
	guild, user string
}

// Transport carries gate commands to Discord. Guilds are chats; a user's DM
// channel is their private chat.
type Transport struct {
	s    session
	opts TransportOptions

	mu       sync.Mutex
	channels map[int64]string
	dms      map[int64]string
	expelled map[admission.Key]struct{}

	unbans *timer.Scheduler[unban]
}

func NewTransport(s session, opts TransportOptions) *Transport {
	t := &Transport{
		s:        s,
		opts:     opts,
		channels: make(map[int64]string),
		dms:      make(map[int64]string),
		expelled: make(map[admission.Key]struct{}),
	}
	t.unbans = timer.New(t.unban)
	return t
}

// Close drops the pending unbans. Discord keeps those users banned.
func (t *Transport) Close() {
	t.unbans.Shutdown()
}

// noteChannel remembers where a guild's join messages appear.
func (t *Transport) noteChannel(guild int64, channel string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels[guild] = channel
}

// takeExpelled reports and forgets whether the bot removed user from chat.
func (t *Transport) takeExpelled(chat, user int64) bool {
	k := admission.Key{Chat: chat, User: user}
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.expelled[k]
	delete(t.expelled, k)
	return ok
}

func (t *Transport) channelFor(ctx context.Context, to gate.Destination) (string, error) {
	if to.Private {
		return t.dmChannel(ctx, to.Chat)
	}
	if t.opts.WelcomeChannel != "" {
		return t.opts.WelcomeChannel, nil
	}
	t.mu.Lock()
	ch, ok := t.channels[to.Chat]
	t.mu.Unlock()
	if ok {
		return ch, nil
	}
	g, err := t.s.Guild(formatID(to.Chat), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("guild %d: %w", to.Chat, err)
	}
	if g.SystemChannelID == "" {
		return "", fmt.Errorf("guild %d has no system channel", to.Chat)
	}
	t.noteChannel(to.Chat, g.SystemChannelID)
	return g.SystemChannelID, nil
}

func (t *Transport) dmChannel(ctx context.Context, user int64) (string, error) {
	t.mu.Lock()
	ch, ok := t.dms[user]
	t.mu.Unlock()
	if ok {
		return ch, nil
	}
	c, err := t.s.UserChannelCreate(formatID(user), discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("dm channel for %d: %w", user, err)
	}
	t.mu.Lock()
	t.dms[user] = c.ID
	t.mu.Unlock()
	return c.ID, nil
}

func (t *Transport) SendMessage(ctx context.Context, to gate.Destination, text string, kb *gate.Keyboard) (admission.MessageRef, error) {
	channel, err := t.channelFor(ctx, to)
	if err != nil {
		return admission.MessageRef{}, err
	}
	msg, err := t.s.ChannelMessageSendComplex(channel, &discordgo.MessageSend{
		Content:    text,
		Components: components(kb),
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return admission.MessageRef{}, err
	}
	return messageRef(msg.ChannelID, msg.ID), nil
}

func (t *Transport) EditMessage(ctx context.Context, ref admission.MessageRef, text string, kb *gate.Keyboard) error {
	edit := discordgo.NewMessageEdit(formatID(ref.Channel), formatID(ref.ID)).SetContent(text)
	edit.Components = components(kb)
	_, err := t.s.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return ignoreNotFound(err)
}

func (t *Transport) DeleteMessage(ctx context.Context, ref admission.MessageRef) error {
	err := t.s.ChannelMessageDelete(formatID(ref.Channel), formatID(ref.ID), discordgo.WithContext(ctx))
	return ignoreNotFound(err)
}

// RestrictMember maps capabilities onto a member timeout and the optional
// restricted role.
func (t *Transport) RestrictMember(ctx context.Context, chat, user int64, caps gate.Capabilities, until time.Time) error {
	guild, uid := formatID(chat), formatID(user)
	switch caps {
	case gate.CapNone:
		return t.s.GuildMemberTimeout(guild, uid, &until, discordgo.WithContext(ctx))
	case gate.CapTextOnly:
		if err := t.s.GuildMemberTimeout(guild, uid, nil, discordgo.WithContext(ctx)); err != nil {
			return err
		}
		if t.opts.RestrictedRole == "" {
			return nil
		}
		return t.s.GuildMemberRoleAdd(guild, uid, t.opts.RestrictedRole, discordgo.WithContext(ctx))
	default:
		if err := t.s.GuildMemberTimeout(guild, uid, nil, discordgo.WithContext(ctx)); err != nil {
			return ignoreNotFound(err)
		}
		if t.opts.RestrictedRole == "" {
			return nil
		}
		return ignoreNotFound(t.s.GuildMemberRoleRemove(guild, uid, t.opts.RestrictedRole, discordgo.WithContext(ctx)))
	}
}

// ExpelMember bans the user and lifts the ban at until.
func (t *Transport) ExpelMember(ctx context.Context, chat, user int64, reason string, until time.Time) error {
	t.mu.Lock()
	t.expelled[admission.Key{Chat: chat, User: user}] = struct{}{}
	t.mu.Unlock()

	guild, uid := formatID(chat), formatID(user)
	if err := t.s.GuildBanCreateWithReason(guild, uid, reason, 0, discordgo.WithContext(ctx)); err != nil {
		return err
	}
	t.unbans.ScheduleOnce(time.Until(until), unban{guild: guild, user: uid})
	return nil
}

func (t *Transport) unban(u unban) {
	if err := ignoreNotFound(t.s.GuildBanDelete(u.guild, u.user)); err != nil {
		log.Printf("bot: unban user=%s in guild=%s: %v", u.user, u.guild, err)
	}
}

func (t *Transport) Member(ctx context.Context, chat, user int64) (gate.Member, bool, error) {
	m, err := t.s.GuildMember(formatID(chat), formatID(user), discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return gate.Member{}, false, nil
		}
		return gate.Member{}, false, err
	}
	return toMember(m.User, m), true, nil
}

// components renders a keyboard as action rows. Reply keyboards become menu
// buttons.
func components(kb *gate.Keyboard) []discordgo.MessageComponent {
	out := []discordgo.MessageComponent{}
	if kb == nil {
		return out
	}
	for _, row := range kb.Rows {
		var buttons []discordgo.MessageComponent
		for _, b := range row {
			btn := discordgo.Button{Label: b.Text, Style: discordgo.PrimaryButton, CustomID: b.Data}
			switch {
			case b.URL != "":
				btn = discordgo.Button{Label: b.Text, Style: discordgo.LinkButton, URL: b.URL}
			case kb.Reply:
				btn.Style = discordgo.SecondaryButton
				btn.CustomID = menuPrefix + b.Data
			}
			buttons = append(buttons, btn)
		}
		out = append(out, discordgo.ActionsRow{Components: buttons})
	}
	return out
}

func isNotFound(err error) bool {
	var rest *discordgo.RESTError
	return errors.As(err, &rest) && rest.Response != nil && rest.Response.StatusCode == http.StatusNotFound
}

func ignoreNotFound(err error) error {
	if isNotFound(err) {
		return nil
	}
	return err
}

func toMember(u *discordgo.User, m *discordgo.Member) gate.Member {
	if u == nil {
		return gate.Member{}
	}
	out := gate.Member{
		ID:       parseID(u.ID),
		Name:     u.Username,
		Username: u.Username,
		Mention:  u.Mention(),
		Bot:      u.Bot,
	}
	if m != nil && m.Nick != "" {
		out.Name = m.Nick
	}
	return out
}

func messageRef(channel, id string) admission.MessageRef {
	return admission.MessageRef{Channel: parseID(channel), ID: parseID(id)}
}

func parseID(s string) int64 {
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
