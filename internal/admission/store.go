package admission

import (
	"context"
	"fmt"
	"iter"
	"sync"
)

// Key addresses a record. A zero User addresses the chat level only.
type Key struct {
	Chat int64
	User int64
}

func (k Key) String() string {
	return fmt.Sprintf("chat=%d user=%d", k.Chat, k.User)
}

// ConcurrencyViolation reports a transaction used outside the request that
// holds the store lock, or against keys it was not opened for. It aborts the
// current request only.
type ConcurrencyViolation struct {
	Scope  Key
	Detail string
}

func (e *ConcurrencyViolation) Error() string {
	return fmt.Sprintf("admission: concurrency violation (%s): %s", e.Scope, e.Detail)
}

type chatState struct {
	aggregate ChatAggregate
	users     map[int64]*Record
}

func (c *chatState) empty() bool {
	return len(c.users) == 0 && c.aggregate.Empty()
}

// Store owns every admission record and chat aggregate of the process. It is
// created at start-up and lives until exit. All access goes through Do,
// which holds the single store lock for the whole request.
type Store struct {
	mu     sync.Mutex
	chats  map[int64]*chatState
	menus  map[int64]*Menu
	ledger Ledger
	active *Tx
}

// NewStore returns an empty store. A nil ledger keeps the journal in memory.
func NewStore(ledger Ledger) *Store {
	if ledger == nil {
		ledger = NewMemoryLedger()
	}
	return &Store{
		chats:  make(map[int64]*chatState),
		menus:  make(map[int64]*Menu),
		ledger: ledger,
	}
}

// Do runs fn as one logical request. The journal transaction begins on entry,
// commits when fn returns nil and rolls back otherwise. When fn fails or the
// commit does, every record, aggregate and menu the request touched is put
// back as it was.
func (s *Store) Do(ctx context.Context, scope Key, fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	journal, err := s.ledger.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin journal: %w", err)
	}

	tx := &Tx{
		s:       s,
		scope:   scope,
		journal: journal,
		records: make(map[Key]*recordState),
		chats:   make(map[int64]*ChatAggregate),
		menus:   make(map[int64]*Menu),
	}
	s.active = tx
	defer func() {
		s.active = nil
		tx.done = true
	}()

	if err := tx.run(fn); err != nil {
		tx.restore()
		if rerr := journal.Rollback(ctx); rerr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rerr)
		}
		return err
	}
	if err := journal.Commit(ctx); err != nil {
		tx.restore()
		return fmt.Errorf("commit journal: %w", err)
	}
	return nil
}

// Tx is the view of the store handed to one request. It is only valid
// inside the Do call that created it.
type Tx struct {
	s       *Store
	scope   Key
	journal Journal
	done    bool

	// State as it was before the request first touched it. A nil entry
	// means absent.
	records map[Key]*recordState
	chats   map[int64]*ChatAggregate
	menus   map[int64]*Menu
}

func (t *Tx) run(fn func(tx *Tx) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			cv, ok := r.(*ConcurrencyViolation)
			if !ok {
				panic(r)
			}
			err = cv
		}
	}()
	return fn(t)
}

func (t *Tx) check() {
	if t.done || t.s.active != t {
		panic(&ConcurrencyViolation{Scope: t.scope, Detail: "transaction used without the store lock"})
	}
}

func (t *Tx) saveRecord(k Key) {
	if _, ok := t.records[k]; ok {
		return
	}
	var prev *recordState
	if c, ok := t.s.chats[k.Chat]; ok {
		if r, ok := c.users[k.User]; ok {
			prev = saveState(r)
		}
	}
	t.records[k] = prev
}

func (t *Tx) saveChat(chat int64) {
	if _, ok := t.chats[chat]; ok {
		return
	}
	var prev *ChatAggregate
	if c, ok := t.s.chats[chat]; ok {
		agg := c.aggregate.clone()
		prev = &agg
	}
	t.chats[chat] = prev
}

func (t *Tx) saveMenu(user int64) {
	if _, ok := t.menus[user]; ok {
		return
	}
	var prev *Menu
	if m, ok := t.s.menus[user]; ok {
		prev = m.clone()
	}
	t.menus[user] = prev
}

// restore puts back the saved state. Chats go first so that records of a
// pruned chat have somewhere to return to.
func (t *Tx) restore() {
	for id, agg := range t.chats {
		if agg == nil {
			delete(t.s.chats, id)
			continue
		}
		t.chat(id).aggregate = *agg
	}
	for k, st := range t.records {
		c, ok := t.s.chats[k.Chat]
		switch {
		case st != nil:
			t.chat(k.Chat).users[k.User] = st.restore()
		case ok:
			delete(c.users, k.User)
		}
	}
	for user, m := range t.menus {
		if m == nil {
			delete(t.s.menus, user)
			continue
		}
		t.s.menus[user] = m
	}
}

// Scope is the key the request was opened for.
func (t *Tx) Scope() Key { return t.scope }

// Expect asserts the request is operating on k.
func (t *Tx) Expect(k Key) {
	t.check()
	if k != t.scope {
		panic(&ConcurrencyViolation{Scope: t.scope, Detail: "expected " + k.String()})
	}
}

// Journal is the durable side of the request.
func (t *Tx) Journal() Journal {
	t.check()
	return t.journal
}

// Get returns the record at k.
func (t *Tx) Get(k Key) (*Record, bool) {
	t.check()
	t.saveRecord(k)
	c, ok := t.s.chats[k.Chat]
	if !ok {
		return nil, false
	}
	r, ok := c.users[k.User]
	return r, ok
}

// GetOr returns the record at k, or def when there is none.
func (t *Tx) GetOr(k Key, def *Record) *Record {
	if r, ok := t.Get(k); ok {
		return r
	}
	return def
}

// Ensure returns the record at k, creating an empty one when absent.
func (t *Tx) Ensure(k Key) *Record {
	if r, ok := t.Get(k); ok {
		return r
	}
	r := &Record{}
	t.Set(k, r)
	return r
}

func (t *Tx) Set(k Key, r *Record) {
	t.check()
	t.saveChat(k.Chat)
	t.saveRecord(k)
	c := t.chat(k.Chat)
	c.users[k.User] = r
}

// Delete removes the record at k. Absent records are ignored.
func (t *Tx) Delete(k Key) {
	t.check()
	t.saveRecord(k)
	if c, ok := t.s.chats[k.Chat]; ok {
		delete(c.users, k.User)
	}
}

// PruneIfEmpty walks from the record at k up to its chat, deleting each level
// that holds nothing, and stops at the first non-empty one. It returns the
// number of levels removed and is safe to call speculatively.
func (t *Tx) PruneIfEmpty(k Key) int {
	t.check()
	t.saveChat(k.Chat)
	if k.User != 0 {
		t.saveRecord(k)
	}
	c, ok := t.s.chats[k.Chat]
	if !ok {
		return 0
	}
	removed := 0
	if k.User != 0 {
		r, ok := c.users[k.User]
		if ok && !r.Empty() {
			return 0
		}
		if ok {
			delete(c.users, k.User)
			removed++
		}
	}
	if c.empty() {
		delete(t.s.chats, k.Chat)
		removed++
	}
	return removed
}

// Aggregate returns the chat-level state, creating the chat when absent.
// Callers that only read should follow up with PruneIfEmpty.
func (t *Tx) Aggregate(chat int64) *ChatAggregate {
	t.check()
	t.saveChat(chat)
	return &t.chat(chat).aggregate
}

// ChatIDs yields the stored chats. The sequence can be ranged again; it must
// not be consumed after the request ends.
func (t *Tx) ChatIDs() iter.Seq[int64] {
	return func(yield func(int64) bool) {
		t.check()
		for id := range t.s.chats {
			if !yield(id) {
				return
			}
		}
	}
}

// UserIDs yields the users with a record in chat.
func (t *Tx) UserIDs(chat int64) iter.Seq[int64] {
	return func(yield func(int64) bool) {
		t.check()
		c, ok := t.s.chats[chat]
		if !ok {
			return
		}
		for id := range c.users {
			if !yield(id) {
				return
			}
		}
	}
}

func (t *Tx) Menu(user int64) (*Menu, bool) {
	t.check()
	t.saveMenu(user)
	m, ok := t.s.menus[user]
	return m, ok
}

func (t *Tx) SetMenu(user int64, m *Menu) {
	t.check()
	t.saveMenu(user)
	t.s.menus[user] = m
}

func (t *Tx) ClearMenu(user int64) {
	t.check()
	t.saveMenu(user)
	delete(t.s.menus, user)
}

func (t *Tx) chat(id int64) *chatState {
	c, ok := t.s.chats[id]
	if !ok {
		c = &chatState{users: make(map[int64]*Record)}
		t.s.chats[id] = c
	}
	return c
}
