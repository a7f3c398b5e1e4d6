package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/contactbook/apiserver/internal/ratelimit"
	"github.com/contactbook/apiserver/internal/store"
	"github.com/contactbook/apiserver/types"
)

type memUsers struct {
	mu     sync.Mutex
	nextID int
	users  map[int]types.User
}

func newMemUsers() *memUsers {
	return &memUsers{users: map[int]types.User{}}
}

func (m *memUsers) GetByID(ctx context.Context, id int) (types.User, error) {
	return m.find(func(u types.User) bool { return u.ID == id })
}

func (m *memUsers) GetByUsername(ctx context.Context, username string) (types.User, error) {
	return m.find(func(u types.User) bool { return u.Username == username })
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (types.User, error) {
	return m.find(func(u types.User) bool { return u.Email == email })
}

func (m *memUsers) find(match func(types.User) bool) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (m *memUsers) Create(ctx context.Context, user types.User) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return types.User{}, store.ErrConflict
		}
	}
	m.nextID++
	user.ID = m.nextID
	user.CreatedAt = time.Now().UTC()
	m.users[user.ID] = user
	return user, nil
}

func (m *memUsers) update(id int, change func(*types.User)) (types.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	change(&u)
	m.users[id] = u
	return u, nil
}

func (m *memUsers) MarkVerified(ctx context.Context, id int) error {
	_, err := m.update(id, func(u *types.User) { u.IsVerified = true })
	return err
}

func (m *memUsers) UpdatePassword(ctx context.Context, id int, hash string) error {
	_, err := m.update(id, func(u *types.User) { u.PasswordHash = hash })
	return err
}

func (m *memUsers) UpdateAvatar(ctx context.Context, id int, avatar string) (types.User, error) {
	return m.update(id, func(u *types.User) { u.Avatar = avatar })
}

type memContacts struct {
	mu       sync.Mutex
	nextID   int
	contacts map[int]types.Contact
}

func newMemContacts() *memContacts {
	return &memContacts{contacts: map[int]types.Contact{}}
}

func (m *memContacts) owned(ownerID int) []types.Contact {
	out := make([]types.Contact, 0)
	for _, c := range m.contacts {
		if c.UserID == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func window(contacts []types.Contact, offset, limit int) []types.Contact {
	if offset >= len(contacts) {
		return []types.Contact{}
	}
	return contacts[offset:min(offset+limit, len(contacts))]
}

func (m *memContacts) List(ctx context.Context, ownerID, offset, limit int) ([]types.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return window(m.owned(ownerID), offset, limit), nil
}

func (m *memContacts) ListAll(ctx context.Context, ownerID int) ([]types.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.owned(ownerID), nil
}

func (m *memContacts) Search(ctx context.Context, ownerID int, f types.ContactFilter, offset, limit int) ([]types.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	contains := func(value, sub string) bool {
		return sub == "" || strings.Contains(strings.ToLower(value), strings.ToLower(sub))
	}
	out := make([]types.Contact, 0)
	for _, c := range m.owned(ownerID) {
		if contains(c.FirstName, f.FirstName) && contains(c.LastName, f.LastName) && contains(c.Email, f.Email) {
			out = append(out, c)
		}
	}
	return window(out, offset, limit), nil
}

func (m *memContacts) Get(ctx context.Context, ownerID, id int) (types.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok || c.UserID != ownerID {
		return types.Contact{}, store.ErrNotFound
	}
	return c, nil
}

func (m *memContacts) Create(ctx context.Context, contact types.Contact) (types.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contacts {
		if c.Email == contact.Email {
			return types.Contact{}, store.ErrConflict
		}
	}
	m.nextID++
	contact.ID = m.nextID
	contact.CreatedAt = time.Now().UTC()
	contact.UpdatedAt = contact.CreatedAt
	m.contacts[contact.ID] = contact
	return contact, nil
}

func (m *memContacts) Update(ctx context.Context, contact types.Contact) (types.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.contacts[contact.ID]
	if !ok || current.UserID != contact.UserID {
		return types.Contact{}, store.ErrNotFound
	}
	contact.CreatedAt = current.CreatedAt
	contact.UpdatedAt = time.Now().UTC()
	m.contacts[contact.ID] = contact
	return contact, nil
}

func (m *memContacts) Delete(ctx context.Context, ownerID, id int) (types.Contact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.contacts[id]
	if !ok || c.UserID != ownerID {
		return types.Contact{}, store.ErrNotFound
	}
	delete(m.contacts, id)
	return c, nil
}

// countingLimiter admits the first limit requests per user.
type countingLimiter struct {
	mu     sync.Mutex
	limit  int
	counts map[int]int
	err    error
}

func newCountingLimiter(limit int) *countingLimiter {
	return &countingLimiter{limit: limit, counts: map[int]int{}}
}

func (l *countingLimiter) Allow(ctx context.Context, userID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	if l.counts[userID] >= l.limit {
		return ratelimit.ErrLimited
	}
	l.counts[userID]++
	return nil
}

func (l *countingLimiter) RetryAfter(ctx context.Context, userID int) time.Duration {
	return 1500 * time.Millisecond
}

type staticPinger struct {
	err error
}

func (p staticPinger) PingContext(ctx context.Context) error { return p.err }
