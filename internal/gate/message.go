package gate

import (
	"context"
	"fmt"
	"log"

	"github.com/susu3304/gatebot/internal/admission"
	"github.com/susu3304/gatebot/internal/spam"
)

// MessageEvent is a regular message posted in a group. Quoted holds the text
// of forwarded or embedded content.
type MessageEvent struct {
	Chat    int64
	User    Member
	Message admission.MessageRef
	Text    string
	Quoted  []string
	Media   bool
}

// Message enforces admission state on a group message.
func (m *Machine) Message(ctx context.Context, ev MessageEvent) error {
	if ev.User.Bot || ev.User.ID == m.cfg.BotID {
		return nil
	}
	key := admission.Key{Chat: ev.Chat, User: ev.User.ID}
	return m.request(ctx, key, func(tx *admission.Tx, p *plan) error {
		if spam.IsSpam(append([]string{ev.Text}, ev.Quoted...)...) {
			return m.strike(ctx, tx, p, ev)
		}

		rec, ok := tx.Get(key)
		if ok && rec.Group != nil && rec.Group.Status != admission.Solved {
			m.deleteMessage(p, ev.Message, "delete message of unverified member")
			return nil
		}
		if ok && !rec.RestrictedUntil.IsZero() {
			if rec.Restricted(m.now()) {
				if ev.Text == "" || ev.Media || spam.HasURL(ev.Text) {
					m.deleteMessage(p, ev.Message, "delete restricted message")
					return nil
				}
			} else {
				rec.ClearRestriction()
				tx.PruneIfEmpty(key)
				log.Printf("gate: user=%d in chat=%d restriction over", key.User, key.Chat)
			}
		}

		agg := tx.Aggregate(ev.Chat)
		if len(agg.PreviousGreetNames) > 0 {
			agg.Reset()
		}
		tx.PruneIfEmpty(admission.Key{Chat: ev.Chat})

		if spam.IsGreeting(ev.Text) {
			for u := range tx.UserIDs(ev.Chat) {
				if r, ok := tx.Get(admission.Key{Chat: ev.Chat, User: u}); ok {
					r.ToGreet = false
				}
			}
		}
		return nil
	})
}

// strike deletes a spam message and counts it; past the limit the sender is
// expelled and the count starts over.
func (m *Machine) strike(ctx context.Context, tx *admission.Tx, p *plan, ev MessageEvent) error {
	m.deleteMessage(p, ev.Message, "delete spam")
	j := tx.Journal()
	n, err := j.AddStrike(ctx, ev.User.ID)
	if err != nil {
		return err
	}
	log.Printf("gate: user=%d in chat=%d spam strike %d", ev.User.ID, ev.Chat, n)
	if n <= m.cfg.StrikesLimit {
		m.notify(p, Destination{Chat: ev.Chat}, fmt.Sprintf(spamWarning, mention(ev.User), n, m.cfg.StrikesLimit), nil)
		return nil
	}
	if err := j.ResetStrikes(ctx, ev.User.ID); err != nil {
		return err
	}
	return m.expel(ctx, tx, p, ev.Chat, "", ev.User.ID, reasonSpammer)
}

// Help answers the help command in to.
func (m *Machine) Help(ctx context.Context, to Destination) error {
	text := fmt.Sprintf(helpText, durationText(m.cfg.CaptchaTimer), durationText(m.cfg.TemporaryRestriction))
	_, err := m.transport.SendMessage(ctx, to, text, nil)
	return err
}
