// Package bot connects the gate to Discord.
package bot

import (
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/susu3304/gatebot/internal/gate"
)

type Bot struct {
	session   *discordgo.Session
	machine   *gate.Machine
	transport *Transport
}

// NewSession creates the Discord session with the intents the gate relies on.
func NewSession(token string) (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent
	return session, nil
}

func New(session *discordgo.Session, machine *gate.Machine, transport *Transport) *Bot {
	bot := &Bot{
		session:   session,
		machine:   machine,
		transport: transport,
	}

	// Register event handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onMessageCreate)
	session.AddHandler(bot.onGuildMemberRemove)
	session.AddHandler(bot.onInteractionCreate)

	return bot
}

func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	log.Println("Discord bot is running")
	return nil
}

func (b *Bot) Stop() error {
	b.transport.Close()
	return b.session.Close()
}

// UserIDFromToken reads the bot user ID encoded in the first part of a
// Discord bot token.
func UserIDFromToken(token string) (int64, error) {
	first, _, _ := strings.Cut(strings.TrimPrefix(token, "Bot "), ".")
	raw, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(first, "="))
	if err != nil {
		return 0, fmt.Errorf("malformed token: %w", err)
	}
	id := parseID(string(raw))
	if id == 0 {
		return 0, fmt.Errorf("malformed token: no user id")
	}
	return id, nil
}
