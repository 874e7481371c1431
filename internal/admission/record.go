// Package admission holds the per (chat, user) admission records and the
// single-lock store that owns them.
package admission

import (
	"slices"
	"time"
)

type Status int

const (
	Waiting Status = iota
	Solved
	Wrong
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Solved:
		return "SOLVED"
	case Wrong:
		return "WRONG"
	}
	return "UNKNOWN"
}

type Location int

const (
	Group Location = iota
	Private
)

func (l Location) String() string {
	if l == Private {
		return "PRIVATE"
	}
	return "GROUP"
}

// MessageRef addresses one message on the platform.
type MessageRef struct {
	Channel int64 `json:"channel"`
	ID      int64 `json:"id"`
}

func (m MessageRef) IsZero() bool { return m == MessageRef{} }

// Slot is one challenge instance shown in a group or in a private chat.
type Slot struct {
	Message MessageRef
	Status  Status
	Token   string
}

// TimerHandle cancels a scheduled one-shot timer.
type TimerHandle interface {
	Stop() bool
}

// Record is the admission of one user into one chat.
type Record struct {
	ChatTitle       string
	JoinMessage     MessageRef
	JoinedAt        time.Time
	ToGreet         bool
	Admitted        bool
	RestrictedUntil time.Time
	Group           *Slot
	Private         *Slot
	Timer           TimerHandle
	// TimerSeq identifies the arming of Timer. A fired payload carrying a
	// different sequence belongs to an earlier challenge.
	TimerSeq uint64
}

// Empty reports whether nothing but metadata is left in the record.
func (r *Record) Empty() bool {
	return r.JoinMessage.IsZero() &&
		r.JoinedAt.IsZero() &&
		!r.ToGreet &&
		!r.Admitted &&
		r.RestrictedUntil.IsZero() &&
		r.Group == nil &&
		r.Private == nil &&
		r.Timer == nil
}

// recordState holds the values of a record and its slots, restored into the
// same objects so pointers handed out earlier stay valid.
type recordState struct {
	rec            *Record
	val            Record
	group, private Slot
}

func saveState(r *Record) *recordState {
	st := &recordState{rec: r, val: *r}
	if r.Group != nil {
		st.group = *r.Group
	}
	if r.Private != nil {
		st.private = *r.Private
	}
	return st
}

func (st *recordState) restore() *Record {
	*st.rec = st.val
	if st.val.Group != nil {
		*st.val.Group = st.group
	}
	if st.val.Private != nil {
		*st.val.Private = st.private
	}
	return st.rec
}

func (r *Record) Slot(loc Location) *Slot {
	if loc == Private {
		return r.Private
	}
	return r.Group
}

// Restricted reports whether the temporary restriction is active at now.
// It is evaluated on every call and never cached.
func (r *Record) Restricted(now time.Time) bool {
	return !r.RestrictedUntil.IsZero() && now.Before(r.RestrictedUntil)
}

// DetachTimer forgets the pending expiry timer and returns it without
// stopping it. Nil when none is pending.
func (r *Record) DetachTimer() TimerHandle {
	h := r.Timer
	r.Timer = nil
	r.TimerSeq = 0
	return h
}

func (r *Record) ClearCaptchas() {
	r.Group = nil
	r.Private = nil
}

func (r *Record) ClearJoin() {
	r.JoinMessage = MessageRef{}
	r.JoinedAt = time.Time{}
	r.ToGreet = false
	r.Admitted = false
}

func (r *Record) ClearRestriction() {
	r.RestrictedUntil = time.Time{}
}

// Clear drops every field, leaving the record ready to be pruned. A pending
// timer is detached, not stopped.
func (r *Record) Clear() {
	r.DetachTimer()
	r.ClearCaptchas()
	r.ClearJoin()
	r.ClearRestriction()
}

// ChatAggregate is chat-level greeting state.
type ChatAggregate struct {
	PreviousGreetNames   []string
	PreviousGreetMessage MessageRef
}

func (a *ChatAggregate) Empty() bool {
	return len(a.PreviousGreetNames) == 0 && a.PreviousGreetMessage.IsZero()
}

func (a *ChatAggregate) clone() ChatAggregate {
	return ChatAggregate{
		PreviousGreetNames:   slices.Clone(a.PreviousGreetNames),
		PreviousGreetMessage: a.PreviousGreetMessage,
	}
}

func (a *ChatAggregate) Reset() {
	a.PreviousGreetNames = nil
	a.PreviousGreetMessage = MessageRef{}
}

// MenuStep is a step of the private retry conversation.
type MenuStep int

const (
	MenuStop MenuStep = iota
	MenuInit
	MenuChat
)

func (s MenuStep) String() string {
	switch s {
	case MenuInit:
		return "INIT"
	case MenuChat:
		return "CHAT"
	}
	return "STOP"
}

// Choice is one chat offered in the private menu.
type Choice struct {
	Label string
	Chat  int64
}

// Menu is the private conversation state of one user.
type Menu struct {
	Step    MenuStep
	Choices []Choice
}

func (m *Menu) clone() *Menu {
	return &Menu{Step: m.Step, Choices: slices.Clone(m.Choices)}
}

// Lookup returns the chat offered under label.
func (m *Menu) Lookup(label string) (int64, bool) {
	for _, c := range m.Choices {
		if c.Label == label {
			return c.Chat, true
		}
	}
	return 0, false
}
