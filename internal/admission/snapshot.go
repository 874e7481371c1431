package admission

import (
	"context"
	"sort"
	"time"
)

// AdmissionView is a read-only copy of a record for operators.
type AdmissionView struct {
	User            int64      `json:"user"`
	ChatTitle       string     `json:"chat_title,omitempty"`
	JoinedAt        *time.Time `json:"joined_at,omitempty"`
	ToGreet         bool       `json:"to_greet"`
	Admitted        bool       `json:"admitted"`
	RestrictedUntil *time.Time `json:"restricted_until,omitempty"`
	GroupCaptcha    string     `json:"group_captcha,omitempty"`
	PrivateCaptcha  string     `json:"private_captcha,omitempty"`
	TimerPending    bool       `json:"timer_pending"`
}

// ChatView is a read-only copy of one chat.
type ChatView struct {
	Chat               int64           `json:"chat"`
	PreviousGreetNames []string        `json:"previous_greet_names,omitempty"`
	Admissions         []AdmissionView `json:"admissions"`
}

// Snapshot copies the whole store under the lock, ordered by chat and user.
func (s *Store) Snapshot(ctx context.Context) ([]ChatView, error) {
	var out []ChatView
	err := s.Do(ctx, Key{}, func(tx *Tx) error {
		for chat := range tx.ChatIDs() {
			out = append(out, tx.view(chat))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Chat < out[j].Chat })
	return out, err
}

// ChatSnapshot copies one chat. It reports false when the chat is unknown.
func (s *Store) ChatSnapshot(ctx context.Context, chat int64) (ChatView, bool, error) {
	var (
		view  ChatView
		found bool
	)
	err := s.Do(ctx, Key{Chat: chat}, func(tx *Tx) error {
		if _, ok := tx.s.chats[chat]; ok {
			view, found = tx.view(chat), true
		}
		return nil
	})
	return view, found, err
}

func (t *Tx) view(chat int64) ChatView {
	t.check()
	c := t.s.chats[chat]
	v := ChatView{
		Chat:               chat,
		PreviousGreetNames: append([]string(nil), c.aggregate.PreviousGreetNames...),
		Admissions:         []AdmissionView{},
	}
	for user, r := range c.users {
		a := AdmissionView{
			User:         user,
			ChatTitle:    r.ChatTitle,
			ToGreet:      r.ToGreet,
			Admitted:     r.Admitted,
			TimerPending: r.Timer != nil,
		}
		if !r.JoinedAt.IsZero() {
			at := r.JoinedAt
			a.JoinedAt = &at
		}
		if !r.RestrictedUntil.IsZero() {
			until := r.RestrictedUntil
			a.RestrictedUntil = &until
		}
		if r.Group != nil {
			a.GroupCaptcha = r.Group.Status.String()
		}
		if r.Private != nil {
			a.PrivateCaptcha = r.Private.Status.String()
		}
		v.Admissions = append(v.Admissions, a)
	}
	sort.Slice(v.Admissions, func(i, j int) bool { return v.Admissions[i].User < v.Admissions[j].User })
	return v
}
