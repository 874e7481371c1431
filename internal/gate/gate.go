// Package gate drives the admission of new chat members: it challenges them,
// tracks their answers and timers in the admission store, and issues platform
// commands through a narrow transport.
package gate

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/susu3304/gatebot/internal/admission"
	"github.com/susu3304/gatebot/internal/captcha"
	"github.com/susu3304/gatebot/internal/token"
)

// Member is a platform user as seen by the gate.
type Member struct {
	ID       int64
	Name     string
	Username string
	Mention  string
	Bot      bool
}

// Destination is a group chat, or the private chat with a user when Private
// is set (Chat is then the user ID).
type Destination struct {
	Chat    int64
	Private bool
}

type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is attached below a message. Reply keyboards offer menu choices
// whose Data is sent back as private text.
type Keyboard struct {
	Rows  [][]Button
	Reply bool
}

// Capabilities is what a restricted member may still post.
type Capabilities int

const (
	CapNone Capabilities = iota
	CapTextOnly
	CapAll
)

func (c Capabilities) String() string {
	switch c {
	case CapNone:
		return "NONE"
	case CapTextOnly:
		return "TEXT_ONLY"
	}
	return "ALL"
}

// Transport is the chat platform. DeleteMessage treats an absent message as
// success. Member reports false when the user is no longer in the chat.
type Transport interface {
	SendMessage(ctx context.Context, to Destination, text string, kb *Keyboard) (admission.MessageRef, error)
	EditMessage(ctx context.Context, ref admission.MessageRef, text string, kb *Keyboard) error
	DeleteMessage(ctx context.Context, ref admission.MessageRef) error
	RestrictMember(ctx context.Context, chat, user int64, caps Capabilities, until time.Time) error
	ExpelMember(ctx context.Context, chat, user int64, reason string, until time.Time) error
	Member(ctx context.Context, chat, user int64) (Member, bool, error)
}

// Scheduler schedules cancellable one-shot timers delivered to Machine.Fire.
type Scheduler interface {
	ScheduleOnce(delay time.Duration, t Timer) admission.TimerHandle
}

// Dispatcher runs fire-and-forget work outside the store lock.
type Dispatcher interface {
	Go(name string, fn func(ctx context.Context) error)
}

// NameScreen is the display-name ban predicate.
type NameScreen interface {
	IsBannedName(name string) (bool, string)
}

type Settings struct {
	BotID                int64
	CaptchaTimer         time.Duration
	GreetingTimer        time.Duration
	TemporaryRestriction time.Duration
	BannedRestriction    time.Duration
	Answers              int
	StrikesLimit         int
	// RetryURL opens the private chat with the bot; empty disables the button.
	RetryURL string
}

func DefaultSettings() Settings {
	return Settings{
		CaptchaTimer:         5 * time.Minute,
		GreetingTimer:        10 * time.Minute,
		TemporaryRestriction: 15 * time.Minute,
		BannedRestriction:    2 * time.Hour,
		Answers:              6,
		StrikesLimit:         3,
	}
}

type Deps struct {
	Store      *admission.Store
	Transport  Transport
	Scheduler  Scheduler
	Dispatcher Dispatcher
	Screen     NameScreen
	Generator  *captcha.Generator
	Tokens     *token.Issuer
	Clock      func() time.Time
}

type Machine struct {
	store     *admission.Store
	transport Transport
	sched     Scheduler
	async     Dispatcher
	screen    NameScreen
	gen       *captcha.Generator
	tokens    *token.Issuer
	now       func() time.Time
	cfg       Settings

	// renewToken asks for a fresh challenge on the same message.
	renewToken string
	// timerSeq numbers expiry timers. Guarded by the store lock.
	timerSeq uint64
}

func New(cfg Settings, d Deps) *Machine {
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Generator == nil {
		d.Generator = captcha.New()
	}
	if d.Tokens == nil {
		d.Tokens = token.NewIssuer()
	}
	return &Machine{
		store:      d.Store,
		transport:  d.Transport,
		sched:      d.Scheduler,
		async:      d.Dispatcher,
		screen:     d.Screen,
		gen:        d.Generator,
		tokens:     d.Tokens,
		now:        d.Clock,
		cfg:        cfg,
		renewToken: d.Tokens.Issue(),
	}
}

// plan collects the platform work decided while the store lock is held.
// Nothing in it runs when the request fails.
type plan struct {
	stops []admission.TimerHandle
	tasks []task
	sends []send
}

type task struct {
	name string
	fn   func(ctx context.Context) error
}

// send needs the message reference back. bind runs under the lock once the
// message exists; returning false deletes the message again.
type send struct {
	scope admission.Key
	to    Destination
	text  string
	kb    *Keyboard
	bind  func(tx *admission.Tx, p *plan, ref admission.MessageRef) bool
}

func (p *plan) do(name string, fn func(ctx context.Context) error) {
	p.tasks = append(p.tasks, task{name: name, fn: fn})
}

// request runs fn under the store lock and then carries out its plan.
func (m *Machine) request(ctx context.Context, scope admission.Key, fn func(tx *admission.Tx, p *plan) error) error {
	p := &plan{}
	if err := m.store.Do(ctx, scope, func(tx *admission.Tx) error { return fn(tx, p) }); err != nil {
		log.Printf("gate: request %s aborted: %v", scope, err)
		return err
	}
	m.execute(ctx, p)
	return nil
}

func (m *Machine) execute(ctx context.Context, p *plan) {
	for _, h := range p.stops {
		h.Stop()
	}
	for _, t := range p.tasks {
		m.async.Go(t.name, t.fn)
	}
	for _, s := range p.sends {
		ref, err := m.transport.SendMessage(ctx, s.to, s.text, s.kb)
		if err != nil {
			log.Printf("gate: send to chat=%d failed: %v", s.to.Chat, err)
			continue
		}
		if s.bind == nil {
			continue
		}
		bind := s.bind
		_ = m.request(ctx, s.scope, func(tx *admission.Tx, p *plan) error {
			if !bind(tx, p, ref) {
				m.deleteMessage(p, ref, "delete orphaned message")
			}
			return nil
		})
	}
}

// armExpiry schedules the captcha timer of the record at key under a new
// sequence number.
func (m *Machine) armExpiry(rec *admission.Record, key admission.Key, delay time.Duration) {
	m.timerSeq++
	rec.TimerSeq = m.timerSeq
	rec.Timer = m.sched.ScheduleOnce(delay, Timer{Kind: CaptchaExpiry, Chat: key.Chat, User: key.User, Seq: m.timerSeq})
}

// stopTimer detaches the expiry timer of rec. It is cancelled once the
// request has committed.
func (m *Machine) stopTimer(p *plan, rec *admission.Record) {
	if h := rec.DetachTimer(); h != nil {
		p.stops = append(p.stops, h)
	}
}

// notify sends a message whose reference is not needed.
func (m *Machine) notify(p *plan, to Destination, text string, kb *Keyboard) {
	p.do("send message", func(ctx context.Context) error {
		_, err := m.transport.SendMessage(ctx, to, text, kb)
		return err
	})
}

func (m *Machine) edit(p *plan, ref admission.MessageRef, text string, kb *Keyboard) {
	if ref.IsZero() {
		return
	}
	p.do("edit message", func(ctx context.Context) error {
		return m.transport.EditMessage(ctx, ref, text, kb)
	})
}

func (m *Machine) deleteMessage(p *plan, ref admission.MessageRef, what string) {
	if ref.IsZero() {
		return
	}
	p.do(what, func(ctx context.Context) error {
		return m.transport.DeleteMessage(ctx, ref)
	})
}

func (m *Machine) restrict(p *plan, chat, user int64, caps Capabilities, until time.Time) {
	p.do("restrict member", func(ctx context.Context) error {
		err := m.transport.RestrictMember(ctx, chat, user, caps, until)
		log.Printf("gate: user=%d in chat=%d may post %s: %v", user, chat, caps, err)
		return err
	})
}

// expel journals the expulsion, then bans the user for the banned window and
// clears the record. A journal error leaves the record untouched.
func (m *Machine) expel(ctx context.Context, tx *admission.Tx, p *plan, chat int64, title string, user int64, reason string) error {
	until := m.now().Add(m.cfg.BannedRestriction)
	key := admission.Key{Chat: chat, User: user}
	r, ok := tx.Get(key)
	if ok && title == "" {
		title = r.ChatTitle
	}

	err := tx.Journal().RecordExpulsion(ctx, admission.Expulsion{
		Chat:      chat,
		User:      user,
		ChatTitle: title,
		Reason:    reason,
		Until:     until,
	})
	if err != nil {
		return fmt.Errorf("journal expulsion of user %d: %w", user, err)
	}

	p.do("expel member", func(ctx context.Context) error {
		err := m.transport.ExpelMember(ctx, chat, user, reason, until)
		log.Printf("gate: user=%d in chat=%d expel (%s): %v", user, chat, reason, err)
		return err
	})
	if ok {
		m.stopTimer(p, r)
		r.Clear()
	}
	tx.PruneIfEmpty(key)
	return nil
}
