package gate

import (
	"context"
	"fmt"
	"log"

	"github.com/susu3304/gatebot/internal/admission"
)

// JoinEvent is one join service message, which may carry several members.
type JoinEvent struct {
	Chat      int64
	ChatTitle string
	Message   admission.MessageRef
	Members   []Member
}

// LeaveEvent reports a member leaving or being removed. ByBot is set when the
// removal was done by this bot.
type LeaveEvent struct {
	Chat    int64
	User    Member
	ByBot   bool
	Message admission.MessageRef
}

// Join screens and challenges every new member and schedules the greeting.
func (m *Machine) Join(ctx context.Context, ev JoinEvent) error {
	now := m.now()
	return m.request(ctx, admission.Key{Chat: ev.Chat}, func(tx *admission.Tx, p *plan) error {
		var banned, challenged bool
		for _, u := range ev.Members {
			if u.ID == m.cfg.BotID {
				continue
			}
			if bad, reason := m.screen.IsBannedName(fullName(u)); bad {
				log.Printf("gate: user=%d in chat=%d banned name: %s", u.ID, ev.Chat, reason)
				if err := m.expel(ctx, tx, p, ev.Chat, ev.ChatTitle, u.ID, reason); err != nil {
					return err
				}
				banned = true
				continue
			}
			if u.Bot {
				continue
			}

			c, err := m.newChallenge(mention(u))
			if err != nil {
				return err
			}

			key := admission.Key{Chat: ev.Chat, User: u.ID}
			rec := tx.Ensure(key)
			m.stopTimer(p, rec)
			if rec.Group != nil {
				m.deleteMessage(p, rec.Group.Message, "delete replaced captcha")
			}
			slot := &admission.Slot{Status: admission.Waiting, Token: c.token}
			rec.ChatTitle = ev.ChatTitle
			rec.JoinMessage = ev.Message
			rec.JoinedAt = now
			rec.ToGreet = true
			rec.Admitted = false
			rec.Group = slot
			rec.Private = nil
			m.armExpiry(rec, key, m.cfg.CaptchaTimer)

			m.restrict(p, ev.Chat, u.ID, CapNone, now.Add(m.cfg.CaptchaTimer))
			p.sends = append(p.sends, send{
				scope: key,
				to:    Destination{Chat: ev.Chat},
				text:  c.text,
				kb:    c.kb,
				bind:  bindSlot(key, admission.Group, slot),
			})
			challenged = true
		}
		if banned {
			m.deleteMessage(p, ev.Message, "delete join message")
		}
		if challenged {
			m.sched.ScheduleOnce(m.cfg.GreetingTimer, Timer{Kind: Greeting, Chat: ev.Chat})
		}
		return nil
	})
}

// Leave clears whatever the gate holds for the departing member.
func (m *Machine) Leave(ctx context.Context, ev LeaveEvent) error {
	key := admission.Key{Chat: ev.Chat, User: ev.User.ID}
	return m.request(ctx, key, func(tx *admission.Tx, p *plan) error {
		if ev.ByBot {
			m.deleteMessage(p, ev.Message, "delete leave message")
		}
		tx.Expect(key)
		rec, ok := tx.Get(key)
		if !ok {
			return nil
		}
		m.stopTimer(p, rec)
		if rec.Group != nil {
			m.deleteMessage(p, rec.Group.Message, "delete captcha")
		}
		if rec.Private != nil && rec.Private.Status == admission.Waiting {
			unban := durationText(m.cfg.BannedRestriction)
			m.edit(p, rec.Private.Message, fmt.Sprintf(leaveText, unban), nil)
		}
		rec.Clear()
		tx.PruneIfEmpty(key)
		return nil
	})
}

func fullName(u Member) string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
