package gate

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/susu3304/gatebot/internal/admission"
)

// PrivateEvent is a text message, or a menu choice, sent to the bot in a
// private chat.
type PrivateEvent struct {
	User Member
	Text string
}

const (
	cmdStart  = "!start"
	cmdCancel = "!cancel"
	cmdHelp   = "!help"
)

type menuInput int

const (
	inputOther menuInput = iota
	inputYes
	inputNo
	inputChoice
)

var choiceLabelRE = regexp.MustCompile(`^\d+• .+$`)

// classify reads text the way the given step expects it. A label is only a
// choice while choices are on offer, so "No" at the chat step is not a
// refusal.
func classify(step admission.MenuStep, text string) menuInput {
	switch step {
	case admission.MenuInit:
		switch strings.ToLower(text) {
		case "yes", "y":
			return inputYes
		case "no", "n":
			return inputNo
		}
	case admission.MenuChat:
		if choiceLabelRE.MatchString(text) {
			return inputChoice
		}
	}
	return inputOther
}

type menuContext struct {
	tx   *admission.Tx
	p    *plan
	user Member
	menu *admission.Menu
	text string
}

type menuAction func(m *Machine, c *menuContext) error

var menuTransitions = map[admission.MenuStep]map[menuInput]menuAction{
	admission.MenuInit: {
		inputYes:   (*Machine).menuAccept,
		inputNo:    (*Machine).menuCancel,
		inputOther: (*Machine).menuIncorrect,
	},
	admission.MenuChat: {
		inputChoice: (*Machine).menuChoose,
		inputOther:  (*Machine).menuIncorrect,
	},
}

// Private drives the retry conversation. Text outside a conversation is
// ignored.
func (m *Machine) Private(ctx context.Context, ev PrivateEvent) error {
	text := strings.TrimSpace(ev.Text)
	if text == cmdHelp {
		return m.Help(ctx, Destination{Chat: ev.User.ID, Private: true})
	}
	return m.request(ctx, admission.Key{User: ev.User.ID}, func(tx *admission.Tx, p *plan) error {
		c := &menuContext{tx: tx, p: p, user: ev.User, text: text}
		switch text {
		case cmdStart:
			return m.menuStart(ctx, c)
		case cmdCancel:
			return m.menuCancel(c)
		}

		menu, ok := tx.Menu(ev.User.ID)
		if !ok {
			return nil
		}
		c.menu = menu
		action, ok := menuTransitions[menu.Step][classify(menu.Step, text)]
		if !ok {
			return m.menuIncorrect(c)
		}
		return action(m, c)
	})
}

func (m *Machine) dm(c *menuContext, text string, kb *Keyboard) {
	m.notify(c.p, Destination{Chat: c.user.ID, Private: true}, text, kb)
}

// retryable lists the chats where the user failed the group captcha and the
// captcha window is still open.
func (m *Machine) retryable(tx *admission.Tx, user int64) []admission.Choice {
	now := m.now()
	var choices []admission.Choice
	for _, chat := range slices.Sorted(tx.ChatIDs()) {
		rec, ok := tx.Get(admission.Key{Chat: chat, User: user})
		if !ok || rec.Group == nil || rec.Group.Status != admission.Wrong || rec.Private != nil {
			continue
		}
		if now.Sub(rec.JoinedAt) >= m.cfg.CaptchaTimer {
			continue
		}
		choices = append(choices, admission.Choice{
			Label: fmt.Sprintf(choiceLabel, len(choices)+1, rec.ChatTitle),
			Chat:  chat,
		})
	}
	return choices
}

func (m *Machine) menuStart(ctx context.Context, c *menuContext) error {
	choices := m.retryable(c.tx, c.user.ID)
	if len(choices) > 0 {
		c.tx.SetMenu(c.user.ID, &admission.Menu{Step: admission.MenuInit, Choices: choices})
		m.dm(c, startMenuText, &Keyboard{Reply: true, Rows: [][]Button{{
			{Text: yesLabel, Data: yesLabel},
			{Text: noLabel, Data: noLabel},
		}}})
		return nil
	}

	c.tx.ClearMenu(c.user.ID)
	expelled, err := c.tx.Journal().ActiveExpulsions(ctx, c.user.ID, m.now())
	if err != nil {
		return err
	}
	if len(expelled) == 0 {
		m.dm(c, startNothing, nil)
		return nil
	}
	lines := make([]string, 0, len(expelled))
	for _, e := range expelled {
		lines = append(lines, fmt.Sprintf(expelledLine, e.ChatTitle, e.Until.UTC().Format("15:04 MST"), e.Reason))
	}
	m.dm(c, fmt.Sprintf(startExpelled, strings.Join(lines, "\n")), nil)
	return nil
}

func (m *Machine) menuAccept(c *menuContext) error {
	if len(c.menu.Choices) == 1 {
		label := c.menu.Choices[0].Label
		m.dm(c, fmt.Sprintf(processingText, label), nil)
		c.text = label
		return m.menuChoose(c)
	}
	rows := make([][]Button, 0, len(c.menu.Choices))
	for _, ch := range c.menu.Choices {
		rows = append(rows, []Button{{Text: ch.Label, Data: ch.Label}})
	}
	c.menu.Step = admission.MenuChat
	m.dm(c, initMenuText, &Keyboard{Reply: true, Rows: rows})
	return nil
}

func (m *Machine) menuChoose(c *menuContext) error {
	chat, ok := c.menu.Lookup(c.text)
	if !ok {
		return m.menuIncorrect(c)
	}
	c.tx.ClearMenu(c.user.ID)

	key := admission.Key{Chat: chat, User: c.user.ID}
	rec, ok := c.tx.Get(key)
	if !ok || rec.Group == nil || rec.Group.Status != admission.Wrong || rec.Private != nil {
		m.dm(c, unavailableText, nil)
		return nil
	}

	ch, err := m.newChallenge(mention(c.user))
	if err != nil {
		return err
	}
	slot := &admission.Slot{Status: admission.Waiting, Token: ch.token}
	rec.Private = slot
	c.p.sends = append(c.p.sends, send{
		scope: admission.Key{User: c.user.ID},
		to:    Destination{Chat: c.user.ID, Private: true},
		text:  ch.text,
		kb:    ch.kb,
		bind:  bindSlot(key, admission.Private, slot),
	})
	return nil
}

func (m *Machine) menuCancel(c *menuContext) error {
	c.tx.ClearMenu(c.user.ID)
	m.dm(c, cancelText, nil)
	return nil
}

func (m *Machine) menuIncorrect(c *menuContext) error {
	m.dm(c, incorrectText, nil)
	return nil
}
