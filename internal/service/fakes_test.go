package service

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/iliyamo/library-reservation/internal/apperr"
	"github.com/iliyamo/library-reservation/internal/booking"
	"github.com/iliyamo/library-reservation/internal/model"
	"github.com/iliyamo/library-reservation/internal/queue"
)

// memDB is an in-memory stand-in for the MySQL repositories. Transactions
// run concurrently; LockByID and LockByUsername take a per-row mutex held
// until the transaction ends, like SELECT ... FOR UPDATE. A failed
// transaction replays its undo log.
type memDB struct {
	mu sync.Mutex

	nextID       uint64
	users        map[uint64]model.User
	roles        map[uint64]model.Role
	members      map[uint64]map[uint64]bool
	books        map[uint64]model.Book
	reservations map[uint64]model.Reservation
	tokens       map[string]memToken
	rowLocks     map[string]*sync.Mutex

	// failWith makes the named method return the error.
	failWith map[string]error
}

type memToken struct {
	userID  uint64
	exp     time.Time
	revoked bool
}

type memTx struct {
	held map[string]*sync.Mutex
	undo []func()
}

type memTxKey struct{}

func txOf(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

func newMemDB() *memDB {
	return &memDB{
		users:        map[uint64]model.User{},
		roles:        map[uint64]model.Role{},
		members:      map[uint64]map[uint64]bool{},
		books:        map[uint64]model.Book{},
		reservations: map[uint64]model.Reservation{},
		tokens:       map[string]memToken{},
		rowLocks:     map[string]*sync.Mutex{},
		failWith:     map[string]error{},
	}
}

func (d *memDB) id() uint64 { d.nextID++; return d.nextID }

func (d *memDB) fail(method string) error {
	if err, ok := d.failWith[method]; ok {
		return err
	}
	return nil
}

// onRollback registers fn to run if the surrounding transaction fails.
// Callers hold d.mu.
func (d *memDB) onRollback(ctx context.Context, fn func()) {
	if tx := txOf(ctx); tx != nil {
		tx.undo = append(tx.undo, fn)
	}
}

// lockRow blocks until the transaction in ctx owns key. Outside a
// transaction it is a no-op, as FOR UPDATE is under autocommit.
func (d *memDB) lockRow(ctx context.Context, key string) {
	tx := txOf(ctx)
	if tx == nil || tx.held[key] != nil {
		return
	}
	d.mu.Lock()
	m := d.rowLocks[key]
	if m == nil {
		m = &sync.Mutex{}
		d.rowLocks[key] = m
	}
	d.mu.Unlock()
	m.Lock()
	tx.held[key] = m
}

// pause widens the gap between a check and the write that depends on it,
// so a missing row lock shows up as a lost update.
func pause() { time.Sleep(200 * time.Microsecond) }

func (d *memDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txOf(ctx) != nil {
		return fn(ctx)
	}
	tx := &memTx{held: map[string]*sync.Mutex{}}
	err := fn(context.WithValue(ctx, memTxKey{}, tx))
	if err != nil {
		d.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		d.mu.Unlock()
	}
	for _, m := range tx.held {
		m.Unlock()
	}
	return err
}

// seed helpers

func (d *memDB) addRole(name string) model.Role {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := model.Role{ID: d.id(), Name: name}
	d.roles[r.ID] = r
	return r
}

func (d *memDB) addUser(username string, roles ...string) model.User {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := model.User{ID: d.id(), Username: username, Email: username + "@example.com"}
	d.users[u.ID] = u
	d.members[u.ID] = map[uint64]bool{}
	for _, name := range roles {
		for _, r := range d.roles {
			if r.Name == name {
				d.members[u.ID][r.ID] = true
			}
		}
	}
	return d.withRoles(u)
}

func (d *memDB) addBook(title string) model.Book {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := model.Book{ID: d.id(), Title: title, Author: "A", Genre: "G"}
	d.books[b.ID] = b
	return b
}

func (d *memDB) addReservation(userID, bookID uint64, start, end string) model.Reservation {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, _ := booking.ParseDate(start)
	e, _ := booking.ParseDate(end)
	r := model.Reservation{ID: d.id(), UserID: userID, BookID: bookID, StartDate: s, EndDate: e}
	d.reservations[r.ID] = r
	return r
}

func (d *memDB) withRoles(u model.User) model.User {
	names := []string{}
	for rid := range d.members[u.ID] {
		names = append(names, d.roles[rid].Name)
	}
	sort.Strings(names)
	u.Roles = names
	return u
}

// UserStore

type memUsers struct{ *memDB }

func (s memUsers) Create(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.users {
		if o.Username == u.Username || o.Email == u.Email {
			return apperr.Conflict("user.create", "username or email already taken")
		}
	}
	u.ID = s.id()
	s.users[u.ID] = *u
	s.members[u.ID] = map[uint64]bool{}
	id := u.ID
	s.onRollback(ctx, func() {
		delete(s.users, id)
		delete(s.members, id)
	})
	return nil
}

func (s memUsers) get(match func(model.User) bool) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("users.get"); err != nil {
		return nil, err
	}
	for _, u := range s.users {
		if match(u) {
			out := s.withRoles(u)
			return &out, nil
		}
	}
	return nil, apperr.NotFound("user.get", "user not found")
}

func (s memUsers) GetByID(_ context.Context, id uint64) (*model.User, error) {
	return s.get(func(u model.User) bool { return u.ID == id })
}

func (s memUsers) GetByUsername(_ context.Context, username string) (*model.User, error) {
	username = strings.TrimSpace(username)
	return s.get(func(u model.User) bool { return u.Username == username })
}

func (s memUsers) GetByEmail(_ context.Context, email string) (*model.User, error) {
	return s.get(func(u model.User) bool { return u.Email == email })
}

func (s memUsers) LockByID(ctx context.Context, id uint64) (*model.User, error) {
	s.lockRow(ctx, "user:"+strconv.FormatUint(id, 10))
	return s.GetByID(ctx, id)
}

// LockByUsername resolves the id first and re-reads under the lock, since
// the row may have gone while waiting.
func (s memUsers) LockByUsername(ctx context.Context, username string) (*model.User, error) {
	u, err := s.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.LockByID(ctx, u.ID)
}

func (s memUsers) Update(ctx context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.users {
		if o.ID != u.ID && o.Email == u.Email {
			return apperr.Conflict("user.update", "username or email already taken")
		}
	}
	cur, ok := s.users[u.ID]
	if !ok {
		return apperr.NotFound("user.update", "user not found")
	}
	prev := cur
	s.onRollback(ctx, func() { s.users[prev.ID] = prev })
	cur.Email, cur.PasswordHash, cur.Name, cur.LastName = u.Email, u.PasswordHash, u.Name, u.LastName
	s.users[u.ID] = cur
	return nil
}

func (s memUsers) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return apperr.NotFound("user.delete", "user not found")
	}
	members := s.members[id]
	s.onRollback(ctx, func() {
		s.users[id] = u
		s.members[id] = members
	})
	delete(s.users, id)
	delete(s.members, id)
	return nil
}

func (s memUsers) List(context.Context) ([]model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.User{}
	for _, u := range s.users {
		out = append(out, s.withRoles(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s memUsers) CountReservations(_ context.Context, userID uint64) (int, error) {
	s.mu.Lock()
	n := 0
	for _, r := range s.reservations {
		if r.UserID == userID {
			n++
		}
	}
	s.mu.Unlock()
	pause()
	return n, nil
}

// RoleStore

type memRoles struct{ *memDB }

func (s memRoles) GetByName(_ context.Context, name string) (*model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.Name == name {
			out := r
			return &out, nil
		}
	}
	return nil, apperr.NotFound("role.get", "role not found")
}

func (s memRoles) List(context.Context) ([]model.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Role{}
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s memRoles) ListForUser(_ context.Context, userID uint64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.withRoles(model.User{ID: userID}).Roles, nil
}

func (s memRoles) CountForUser(_ context.Context, userID uint64) (int, error) {
	s.mu.Lock()
	n := len(s.members[userID])
	s.mu.Unlock()
	pause()
	return n, nil
}

func (s memRoles) AddMembership(ctx context.Context, userID, roleID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[userID] == nil {
		s.members[userID] = map[uint64]bool{}
	}
	if s.members[userID][roleID] {
		return apperr.Conflict("role.add_membership", "user already has role")
	}
	s.members[userID][roleID] = true
	s.onRollback(ctx, func() { delete(s.members[userID], roleID) })
	return nil
}

func (s memRoles) RemoveMembership(ctx context.Context, userID, roleID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.members[userID][roleID] {
		return apperr.NotFound("role.remove_membership", "user does not have role")
	}
	delete(s.members[userID], roleID)
	s.onRollback(ctx, func() {
		if s.members[userID] != nil {
			s.members[userID][roleID] = true
		}
	})
	return nil
}

func (s memRoles) Ensure(ctx context.Context, name string) (*model.Role, error) {
	if r, err := s.GetByName(ctx, name); err == nil {
		return r, nil
	}
	r := s.addRole(name)
	return &r, nil
}

// BookStore

type memBooks struct{ *memDB }

func (s memBooks) Create(ctx context.Context, b *model.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.books {
		if o.Title == b.Title {
			return apperr.Conflict("book.create", "a book with this title already exists")
		}
	}
	b.ID = s.id()
	s.books[b.ID] = *b
	id := b.ID
	s.onRollback(ctx, func() { delete(s.books, id) })
	return nil
}

func (s memBooks) GetByID(_ context.Context, id uint64) (*model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("books.get"); err != nil {
		return nil, err
	}
	b, ok := s.books[id]
	if !ok {
		return nil, apperr.NotFound("book.get", "book not found")
	}
	return &b, nil
}

func (s memBooks) LockByID(ctx context.Context, id uint64) error {
	s.lockRow(ctx, "book:"+strconv.FormatUint(id, 10))
	_, err := s.GetByID(ctx, id)
	return err
}

func (s memBooks) List(context.Context) ([]model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Book{}
	for _, b := range s.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (s memBooks) Update(ctx context.Context, b *model.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.books {
		if o.ID != b.ID && o.Title == b.Title {
			return apperr.Conflict("book.update", "a book with this title already exists")
		}
	}
	prev := s.books[b.ID]
	s.onRollback(ctx, func() { s.books[prev.ID] = prev })
	s.books[b.ID] = *b
	return nil
}

func (s memBooks) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.books[id]
	if !ok {
		return apperr.NotFound("book.delete", "book not found")
	}
	s.onRollback(ctx, func() { s.books[id] = b })
	delete(s.books, id)
	return nil
}

// ReservationStore

type memReservations struct{ *memDB }

func (s memReservations) slots(bookID uint64) []booking.Slot {
	var out []booking.Slot
	for _, r := range s.reservations {
		if r.BookID == bookID {
			out = append(out, booking.Slot{ID: r.ID, Range: booking.Range{Start: r.StartDate, End: r.EndDate}})
		}
	}
	return out
}

func (s memReservations) CountOverlapping(_ context.Context, bookID uint64, rng booking.Range, excludeID uint64) (int, error) {
	s.mu.Lock()
	if err := s.fail("reservations.count"); err != nil {
		s.mu.Unlock()
		return 0, err
	}
	n := 0
	for _, slot := range s.slots(bookID) {
		if slot.ID != excludeID && slot.Overlaps(rng) {
			n++
		}
	}
	s.mu.Unlock()
	pause()
	return n, nil
}

func (s memReservations) Create(ctx context.Context, res *model.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res.ID = s.id()
	res.CreatedAt = time.Now().UTC()
	res.UpdatedAt = res.CreatedAt
	s.reservations[res.ID] = *res
	id := res.ID
	s.onRollback(ctx, func() { delete(s.reservations, id) })
	return nil
}

func (s memReservations) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return nil, apperr.NotFound("reservation.get", "reservation not found")
	}
	return &r, nil
}

func (s memReservations) UpdateDates(ctx context.Context, id uint64, rng booking.Range) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.reservations[id]
	prev := r
	s.onRollback(ctx, func() { s.reservations[id] = prev })
	r.StartDate, r.EndDate = rng.Start, rng.End
	s.reservations[id] = r
	return nil
}

func (s memReservations) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reservations[id]
	if !ok {
		return apperr.NotFound("reservation.delete", "reservation not found")
	}
	s.onRollback(ctx, func() { s.reservations[id] = r })
	delete(s.reservations, id)
	return nil
}

func (s memReservations) DeleteByBook(ctx context.Context, bookID uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.reservations {
		if r.BookID == bookID {
			s.onRollback(ctx, func() { s.reservations[id] = r })
			delete(s.reservations, id)
			n++
		}
	}
	return n, nil
}

func (s memReservations) list(match func(model.Reservation) bool) []model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []model.Reservation{}
	for _, r := range s.reservations {
		if match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out
}

func (s memReservations) ListByUser(_ context.Context, userID uint64) ([]model.Reservation, error) {
	return s.list(func(r model.Reservation) bool { return r.UserID == userID }), nil
}

func (s memReservations) ListByBook(_ context.Context, bookID uint64) ([]model.Reservation, error) {
	return s.list(func(r model.Reservation) bool { return r.BookID == bookID }), nil
}

func (s memReservations) ListAll(context.Context) ([]model.Reservation, error) {
	return s.list(func(model.Reservation) bool { return true }), nil
}

func (s memReservations) RangesByBook(_ context.Context, bookID uint64) ([]booking.Range, error) {
	var out []booking.Range
	for _, r := range s.list(func(r model.Reservation) bool { return r.BookID == bookID }) {
		out = append(out, booking.Range{Start: r.StartDate, End: r.EndDate})
	}
	return out, nil
}

// TokenStore

type memTokens struct{ *memDB }

func (s memTokens) StoreRefresh(_ context.Context, userID uint64, hash string, exp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[hash] = memToken{userID: userID, exp: exp}
	return nil
}

func (s memTokens) ValidateRefresh(_ context.Context, hash string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[hash]
	if !ok || t.revoked || time.Now().After(t.exp) {
		return 0, apperr.NotFound("token.validate", "invalid or expired refresh token")
	}
	return t.userID, nil
}

func (s memTokens) RevokeByHash(_ context.Context, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[hash]; ok {
		t.revoked = true
		s.tokens[hash] = t
	}
	return nil
}

func (s memTokens) RevokeAllForUser(_ context.Context, userID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for h, t := range s.tokens {
		if t.userID == userID {
			t.revoked = true
			s.tokens[h] = t
		}
	}
	return nil
}

// memCache records calls to the availability cache.
type memCache struct {
	mu          sync.Mutex
	entries     map[uint64][]model.DateRange
	hits        int
	invalidated []uint64
}

func newMemCache() *memCache { return &memCache{entries: map[uint64][]model.DateRange{}} }

func (c *memCache) Get(_ context.Context, bookID uint64) ([]model.DateRange, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[bookID]
	if ok {
		c.hits++
	}
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, bookID uint64, ranges []model.DateRange) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[bookID] = ranges
	return nil
}

func (c *memCache) Invalidate(_ context.Context, bookID uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, bookID)
	c.invalidated = append(c.invalidated, bookID)
	return nil
}

// memEvents records published events.
type memEvents struct {
	mu     sync.Mutex
	events []queue.ReservationEvent
}

func (e *memEvents) Publish(_ context.Context, ev queue.ReservationEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *memEvents) types() []queue.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]queue.EventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}
