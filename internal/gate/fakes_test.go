package gate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/susu3304/gatebot/internal/admission"
	"github.com/susu3304/gatebot/internal/captcha"
)

type sent struct {
	ref  admission.MessageRef
	to   Destination
	text string
	kb   *Keyboard
}

type edited struct {
	ref  admission.MessageRef
	text string
	kb   *Keyboard
}

type restriction struct {
	chat, user int64
	caps       Capabilities
	until      time.Time
}

type expulsion struct {
	chat, user int64
	reason     string
	until      time.Time
}

type fakeTransport struct {
	mu       sync.Mutex
	next     int64
	sent     []sent
	edited   []edited
	deleted  []admission.MessageRef
	restrict []restriction
	expelled []expulsion
	absent   map[int64]bool
	onSend   func(to Destination, text string)
}

func (f *fakeTransport) SendMessage(ctx context.Context, to Destination, text string, kb *Keyboard) (admission.MessageRef, error) {
	f.mu.Lock()
	f.next++
	ref := admission.MessageRef{Channel: to.Chat, ID: 1000 + f.next}
	f.sent = append(f.sent, sent{ref: ref, to: to, text: text, kb: kb})
	hook := f.onSend
	f.mu.Unlock()
	if hook != nil {
		hook(to, text)
	}
	return ref, nil
}

func (f *fakeTransport) EditMessage(ctx context.Context, ref admission.MessageRef, text string, kb *Keyboard) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, edited{ref: ref, text: text, kb: kb})
	return nil
}

func (f *fakeTransport) DeleteMessage(ctx context.Context, ref admission.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return nil
}

func (f *fakeTransport) RestrictMember(ctx context.Context, chat, user int64, caps Capabilities, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restrict = append(f.restrict, restriction{chat, user, caps, until})
	return nil
}

func (f *fakeTransport) ExpelMember(ctx context.Context, chat, user int64, reason string, until time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expelled = append(f.expelled, expulsion{chat, user, reason, until})
	return nil
}

func (f *fakeTransport) Member(ctx context.Context, chat, user int64) (Member, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.absent[user] {
		return Member{}, false, nil
	}
	m, ok := members[user]
	return m, ok, nil
}

func (f *fakeTransport) sentTo(to Destination) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sent
	for _, s := range f.sent {
		if s.to == to {
			out = append(out, s)
		}
	}
	return out
}

func (f *fakeTransport) wasDeleted(ref admission.MessageRef) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.deleted {
		if d == ref {
			return true
		}
	}
	return false
}

type fakeHandle struct {
	stopped bool
}

func (h *fakeHandle) Stop() bool {
	was := !h.stopped
	h.stopped = true
	return was
}

type scheduled struct {
	delay  time.Duration
	timer  Timer
	handle *fakeHandle
}

type fakeScheduler struct {
	mu  sync.Mutex
	all []scheduled
}

func (s *fakeScheduler) ScheduleOnce(delay time.Duration, t Timer) admission.TimerHandle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := &fakeHandle{}
	s.all = append(s.all, scheduled{delay: delay, timer: t, handle: h})
	return h
}

func (s *fakeScheduler) of(kind TimerKind) []scheduled {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []scheduled
	for _, sc := range s.all {
		if sc.timer.Kind == kind {
			out = append(out, sc)
		}
	}
	return out
}

type inline struct{}

func (inline) Go(name string, fn func(ctx context.Context) error) {
	_ = fn(context.Background())
}

// prefixScreen bans names starting with "spam".
type prefixScreen struct{}

func (prefixScreen) IsBannedName(name string) (bool, string) {
	if strings.HasPrefix(name, "spam") {
		return true, "fake name"
	}
	return false, ""
}

const (
	chatID    int64 = -100
	botID     int64 = 1
	aliceID   int64 = 10
	bobID     int64 = 11
	carolID   int64 = 12
	spammerID int64 = 13
)

var members = map[int64]Member{
	aliceID:   {ID: aliceID, Name: "Alice"},
	bobID:     {ID: bobID, Name: "Bobby"},
	carolID:   {ID: carolID, Name: "Carol"},
	spammerID: {ID: spammerID, Name: "spam bot"},
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

var errLedgerDown = errors.New("ledger down")

// flakyLedger fails every expulsion write while down is set.
type flakyLedger struct {
	*admission.MemoryLedger
	down bool
}

func (l *flakyLedger) Begin(ctx context.Context) (admission.Journal, error) {
	j, err := l.MemoryLedger.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyJournal{Journal: j, l: l}, nil
}

type flakyJournal struct {
	admission.Journal
	l *flakyLedger
}

func (j *flakyJournal) RecordExpulsion(ctx context.Context, e admission.Expulsion) error {
	if j.l.down {
		return errLedgerDown
	}
	return j.Journal.RecordExpulsion(ctx, e)
}

type harness struct {
	m      *Machine
	tr     *fakeTransport
	sched  *fakeScheduler
	ledger *admission.MemoryLedger
	flaky  *flakyLedger
	now    time.Time
	joins  int64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		tr:     &fakeTransport{absent: map[int64]bool{}},
		sched:  &fakeScheduler{},
		ledger: admission.NewMemoryLedger(),
		now:    t0,
	}
	h.flaky = &flakyLedger{MemoryLedger: h.ledger}
	cfg := DefaultSettings()
	cfg.BotID = botID
	cfg.RetryURL = "https://example.org/dm"
	h.m = New(cfg, Deps{
		Store:      admission.NewStore(h.flaky),
		Transport:  h.tr,
		Scheduler:  h.sched,
		Dispatcher: inline{},
		Screen:     prefixScreen{},
		Generator:  captcha.New(),
		Clock:      func() time.Time { return h.now },
	})
	return h
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) join(t *testing.T, ids ...int64) admission.MessageRef {
	t.Helper()
	h.joins++
	ref := admission.MessageRef{Channel: chatID, ID: h.joins}
	ev := JoinEvent{Chat: chatID, ChatTitle: "Gophers", Message: ref}
	for _, id := range ids {
		ev.Members = append(ev.Members, members[id])
	}
	require.NoError(t, h.m.Join(context.Background(), ev))
	return ref
}

// record returns a copy of the stored record that shares no slot with it.
func (h *harness) record(t *testing.T, chat, user int64) (admission.Record, bool) {
	t.Helper()
	var (
		out admission.Record
		ok  bool
	)
	k := admission.Key{Chat: chat, User: user}
	require.NoError(t, h.m.store.Do(context.Background(), k, func(tx *admission.Tx) error {
		var r *admission.Record
		r, ok = tx.Get(k)
		if ok {
			out = *r
			if r.Group != nil {
				g := *r.Group
				out.Group = &g
			}
			if r.Private != nil {
				p := *r.Private
				out.Private = &p
			}
		}
		return nil
	}))
	return out, ok
}

func (h *harness) aggregate(t *testing.T, chat int64) admission.ChatAggregate {
	t.Helper()
	var out admission.ChatAggregate
	k := admission.Key{Chat: chat}
	require.NoError(t, h.m.store.Do(context.Background(), k, func(tx *admission.Tx) error {
		out = *tx.Aggregate(chat)
		tx.PruneIfEmpty(k)
		return nil
	}))
	return out
}

func (h *harness) answer(t *testing.T, user int64, private bool, data string) string {
	t.Helper()
	rec, ok := h.record(t, chatID, user)
	require.True(t, ok)
	slot := rec.Group
	if private {
		slot = rec.Private
	}
	require.NotNil(t, slot)
	alert, err := h.m.Answer(context.Background(), AnswerEvent{
		Chat:    chatID,
		Private: private,
		User:    members[user],
		Message: slot.Message,
		Data:    data,
	})
	require.NoError(t, err)
	return alert
}

func (h *harness) solve(t *testing.T, user int64) {
	t.Helper()
	rec, ok := h.record(t, chatID, user)
	require.True(t, ok)
	require.Equal(t, solvedAlert, h.answer(t, user, false, rec.Group.Token))
}

// expiry returns the latest captcha expiry payload armed for user in chat.
func (h *harness) expiry(t *testing.T, chat, user int64) Timer {
	t.Helper()
	var last *Timer
	for _, sc := range h.sched.of(CaptchaExpiry) {
		if sc.timer.Chat == chat && sc.timer.User == user {
			tm := sc.timer
			last = &tm
		}
	}
	require.NotNil(t, last, "no captcha expiry armed for user %d", user)
	return *last
}

func (h *harness) fire(t *testing.T, tm Timer) {
	t.Helper()
	require.NoError(t, h.m.Fire(context.Background(), tm))
}
