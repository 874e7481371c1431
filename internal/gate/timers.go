package gate

import (
	"context"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/susu3304/gatebot/internal/admission"
)

type TimerKind int

const (
	CaptchaExpiry TimerKind = iota
	Greeting
	RestrictionExpiry
)

func (k TimerKind) String() string {
	switch k {
	case CaptchaExpiry:
		return "captcha"
	case Greeting:
		return "greeting"
	}
	return "restriction"
}

// Timer is the payload of a scheduled timer. User is zero for greetings.
// Seq ties a captcha expiry to the challenge it was armed for.
type Timer struct {
	Kind TimerKind
	Chat int64
	User int64
	Seq  uint64
}

// Fire handles a timer. Timers for state that no longer exists are no-ops.
func (m *Machine) Fire(ctx context.Context, t Timer) error {
	switch t.Kind {
	case CaptchaExpiry:
		return m.expire(ctx, t)
	case Greeting:
		return m.greet(ctx, t.Chat)
	case RestrictionExpiry:
		return m.liftRestriction(ctx, t)
	}
	return fmt.Errorf("unknown timer kind %d", t.Kind)
}

// expire closes the challenges of one member. An unsolved group captcha
// gets the member expelled.
func (m *Machine) expire(ctx context.Context, t Timer) error {
	key := admission.Key{Chat: t.Chat, User: t.User}
	return m.request(ctx, key, func(tx *admission.Tx, p *plan) error {
		tx.Expect(key)
		rec, ok := tx.Get(key)
		if !ok || rec.TimerSeq != t.Seq {
			return nil
		}
		rec.DetachTimer()

		unban := durationText(m.cfg.BannedRestriction)
		if rec.Private != nil && rec.Private.Status == admission.Waiting {
			m.edit(p, rec.Private.Message, fmt.Sprintf(timeoutText, unban), nil)
		}
		g := rec.Group
		if g == nil {
			rec.ClearCaptchas()
			tx.PruneIfEmpty(key)
			return nil
		}
		m.deleteMessage(p, g.Message, "delete expired captcha")
		if g.Status == admission.Solved {
			rec.ClearCaptchas()
			tx.PruneIfEmpty(key)
			return nil
		}

		log.Printf("gate: user=%d in chat=%d captcha %s on expiry", t.User, t.Chat, g.Status)
		m.deleteMessage(p, rec.JoinMessage, "delete join message")
		return m.expel(ctx, tx, p, t.Chat, rec.ChatTitle, t.User, fmt.Sprintf(reasonTimeout, g.Status))
	})
}

func (m *Machine) liftRestriction(ctx context.Context, t Timer) error {
	key := admission.Key{Chat: t.Chat, User: t.User}
	return m.request(ctx, key, func(tx *admission.Tx, p *plan) error {
		tx.Expect(key)
		rec, ok := tx.Get(key)
		if !ok || rec.RestrictedUntil.IsZero() || rec.Restricted(m.now()) {
			return nil
		}
		rec.ClearRestriction()
		tx.PruneIfEmpty(key)
		m.restrict(p, t.Chat, t.User, CapAll, time.Time{})
		return nil
	})
}

// greet welcomes the admitted members of the batch in one message. Whether
// they are still around is checked on the platform between two requests so
// the lookups never run under the store lock.
func (m *Machine) greet(ctx context.Context, chat int64) error {
	scope := admission.Key{Chat: chat}

	var admitted []int64
	err := m.store.Do(ctx, scope, func(tx *admission.Tx) error {
		for u := range tx.UserIDs(chat) {
			if r, ok := tx.Get(admission.Key{Chat: chat, User: u}); ok && r.Admitted {
				admitted = append(admitted, u)
			}
		}
		return nil
	})
	if err != nil || len(admitted) == 0 {
		return err
	}
	slices.Sort(admitted)

	members := make(map[int64]Member, len(admitted))
	for _, u := range admitted {
		mem, present, err := m.transport.Member(ctx, chat, u)
		if err != nil {
			log.Printf("gate: user=%d in chat=%d member lookup: %v", u, chat, err)
			continue
		}
		if present {
			members[u] = mem
		}
	}

	return m.request(ctx, scope, func(tx *admission.Tx, p *plan) error {
		var names []string
		for _, u := range admitted {
			key := admission.Key{Chat: chat, User: u}
			rec, ok := tx.Get(key)
			if !ok || !rec.Admitted {
				continue
			}
			mem, present := members[u]
			var (
				bad    bool
				reason string
			)
			if present {
				bad, reason = m.screen.IsBannedName(fullName(mem))
			}
			switch {
			case !present:
				rec.ClearRestriction()
			case bad:
				m.deleteMessage(p, rec.JoinMessage, "delete join message")
				if err := m.expel(ctx, tx, p, chat, rec.ChatTitle, u, fmt.Sprintf(reasonBadMember, reason)); err != nil {
					return err
				}
				continue
			default:
				if name := userName(mem); name != "" && rec.ToGreet {
					names = append(names, name)
				}
			}
			rec.ClearJoin()
			tx.PruneIfEmpty(key)
		}
		if len(names) == 0 {
			return nil
		}

		agg := tx.Aggregate(chat)
		batch := append(slices.Clone(agg.PreviousGreetNames), names...)
		previous := agg.PreviousGreetMessage
		agg.PreviousGreetNames = batch
		agg.PreviousGreetMessage = admission.MessageRef{}
		m.deleteMessage(p, previous, "delete previous greeting")

		p.sends = append(p.sends, send{
			scope: scope,
			to:    Destination{Chat: chat},
			text:  greetingText(batch),
			bind: func(tx *admission.Tx, _ *plan, ref admission.MessageRef) bool {
				agg := tx.Aggregate(chat)
				names := agg.PreviousGreetNames
				// A greeting sent meanwhile repeats this batch and replaces it.
				superseded := len(names) > len(batch) && slices.Equal(names[:len(batch)], batch)
				if slices.Equal(names, batch) {
					agg.PreviousGreetMessage = ref
				}
				tx.PruneIfEmpty(admission.Key{Chat: chat})
				return !superseded
			},
		})
		return nil
	})
}
