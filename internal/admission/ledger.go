package admission

import (
	"context"
	"sync"
	"time"
)

// Expulsion is one journaled removal of a user from a chat.
type Expulsion struct {
	Chat      int64     `json:"chat"`
	User      int64     `json:"user"`
	ChatTitle string    `json:"chat_title"`
	Reason    string    `json:"reason"`
	Until     time.Time `json:"until"`
}

// Journal is the durable part of one request.
type Journal interface {
	RecordExpulsion(ctx context.Context, e Expulsion) error
	ActiveExpulsions(ctx context.Context, user int64, now time.Time) ([]Expulsion, error)
	AddStrike(ctx context.Context, user int64) (int, error)
	ResetStrikes(ctx context.Context, user int64) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Ledger opens one journal per request.
type Ledger interface {
	Begin(ctx context.Context) (Journal, error)
}

// MemoryLedger keeps the journal in process memory. Writes become visible to
// other requests on commit.
type MemoryLedger struct {
	mu         sync.Mutex
	expulsions []Expulsion
	strikes    map[int64]int
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{strikes: make(map[int64]int)}
}

func (l *MemoryLedger) Begin(ctx context.Context) (Journal, error) {
	return &memJournal{l: l, strikes: make(map[int64]int)}, nil
}

// Expulsions returns every committed expulsion.
func (l *MemoryLedger) Expulsions() []Expulsion {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Expulsion(nil), l.expulsions...)
}

// RecentExpulsions lists up to limit committed expulsions, newest first.
func (l *MemoryLedger) RecentExpulsions(ctx context.Context, limit int) ([]Expulsion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Expulsion, 0, min(limit, len(l.expulsions)))
	for i := len(l.expulsions) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.expulsions[i])
	}
	return out, nil
}

type memJournal struct {
	l          *MemoryLedger
	expulsions []Expulsion
	strikes    map[int64]int
}

func (j *memJournal) RecordExpulsion(ctx context.Context, e Expulsion) error {
	j.expulsions = append(j.expulsions, e)
	return nil
}

func (j *memJournal) ActiveExpulsions(ctx context.Context, user int64, now time.Time) ([]Expulsion, error) {
	j.l.mu.Lock()
	all := append(append([]Expulsion(nil), j.l.expulsions...), j.expulsions...)
	j.l.mu.Unlock()

	var out []Expulsion
	for _, e := range all {
		if e.User == user && e.Until.After(now) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (j *memJournal) AddStrike(ctx context.Context, user int64) (int, error) {
	n, ok := j.strikes[user]
	if !ok {
		j.l.mu.Lock()
		n = j.l.strikes[user]
		j.l.mu.Unlock()
	}
	n++
	j.strikes[user] = n
	return n, nil
}

func (j *memJournal) ResetStrikes(ctx context.Context, user int64) error {
	j.strikes[user] = 0
	return nil
}

func (j *memJournal) Commit(ctx context.Context) error {
	j.l.mu.Lock()
	defer j.l.mu.Unlock()
	j.l.expulsions = append(j.l.expulsions, j.expulsions...)
	for user, n := range j.strikes {
		if n == 0 {
			delete(j.l.strikes, user)
			continue
		}
		j.l.strikes[user] = n
	}
	j.expulsions = nil
	j.strikes = make(map[int64]int)
	return nil
}

func (j *memJournal) Rollback(ctx context.Context) error {
	j.expulsions = nil
	j.strikes = make(map[int64]int)
	return nil
}
