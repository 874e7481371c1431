package gate

import (
	"context"
	"fmt"
	"log"
	"slices"

	"github.com/susu3304/gatebot/internal/admission"
	"github.com/susu3304/gatebot/internal/token"
)

// AnswerEvent is a press on a captcha button. Chat is ignored for private
// answers.
type AnswerEvent struct {
	Chat    int64
	Private bool
	User    Member
	Message admission.MessageRef
	Data    string
}

// Answer evaluates a button press and returns the alert to show the user,
// empty when the press does not belong to a live challenge.
func (m *Machine) Answer(ctx context.Context, ev AnswerEvent) (string, error) {
	scope := admission.Key{Chat: ev.Chat, User: ev.User.ID}
	loc := admission.Group
	if ev.Private {
		scope.Chat = 0
		loc = admission.Private
	}

	var alert string
	err := m.request(ctx, scope, func(tx *admission.Tx, p *plan) error {
		key, rec, ok := m.findSlot(tx, ev, loc)
		if !ok {
			return nil
		}
		slot := rec.Slot(loc)
		who := mention(ev.User)

		switch {
		case token.IsCorrect(ev.Data, m.renewToken):
			c, err := m.newChallenge(who)
			if err != nil {
				return err
			}
			slot.Token = c.token
			m.edit(p, slot.Message, c.text, c.kb)

		case token.IsCorrect(ev.Data, slot.Token):
			now := m.now()
			until := now.Add(m.cfg.TemporaryRestriction)
			slot.Status = admission.Solved
			rec.Admitted = true
			rec.RestrictedUntil = until

			solved := fmt.Sprintf(solvedGroupText, who, durationText(m.cfg.TemporaryRestriction))
			if loc == admission.Private {
				m.edit(p, slot.Message, solvedPrivateText, nil)
				if rec.Group != nil {
					rec.Group.Status = admission.Solved
				}
			}
			if rec.Group != nil {
				m.edit(p, rec.Group.Message, solved, nil)
			}
			m.restrict(p, key.Chat, key.User, CapTextOnly, until)
			m.sched.ScheduleOnce(m.cfg.TemporaryRestriction, Timer{Kind: RestrictionExpiry, Chat: key.Chat, User: key.User})
			log.Printf("gate: user=%d in chat=%d solved the %s captcha", key.User, key.Chat, loc)
			alert = solvedAlert

		default:
			slot.Status = admission.Wrong
			if loc == admission.Private {
				m.edit(p, slot.Message, fmt.Sprintf(wrongPrivateText, durationText(m.cfg.BannedRestriction)), nil)
			} else {
				m.edit(p, slot.Message, fmt.Sprintf(wrongGroupText, who), m.retryKeyboard())
			}
			log.Printf("gate: user=%d in chat=%d failed the %s captcha", key.User, key.Chat, loc)
			alert = wrongAlert
		}
		return nil
	})
	return alert, err
}

// findSlot locates the waiting challenge the pressed message belongs to.
// Private answers are matched against every chat the user is admitted to.
func (m *Machine) findSlot(tx *admission.Tx, ev AnswerEvent, loc admission.Location) (admission.Key, *admission.Record, bool) {
	match := func(k admission.Key) (*admission.Record, bool) {
		rec, ok := tx.Get(k)
		if !ok {
			return nil, false
		}
		s := rec.Slot(loc)
		if s == nil || s.Status != admission.Waiting || s.Message != ev.Message {
			return nil, false
		}
		return rec, true
	}

	if loc == admission.Group {
		k := admission.Key{Chat: ev.Chat, User: ev.User.ID}
		tx.Expect(k)
		rec, ok := match(k)
		return k, rec, ok
	}
	for _, chat := range slices.Sorted(tx.ChatIDs()) {
		k := admission.Key{Chat: chat, User: ev.User.ID}
		if rec, ok := match(k); ok {
			return k, rec, true
		}
	}
	return admission.Key{}, nil, false
}
