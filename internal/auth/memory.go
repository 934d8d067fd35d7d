package auth

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"fenceline.dev/internal/ids"
)

var _ Directory = (*MemoryDirectory)(nil)

// MemoryDirectory implements Directory in process memory. It backs the dev
// bootstrap when no DSN is configured and the package tests.
type MemoryDirectory struct {
	mu          sync.RWMutex
	users       map[string]User
	accounts    map[string]Account
	permissions map[string]Permission
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		users:       make(map[string]User),
		accounts:    make(map[string]Account),
		permissions: make(map[string]Permission),
	}
}

func (d *MemoryDirectory) Users() UserStore             { return memUserStore{d} }
func (d *MemoryDirectory) Accounts() AccountStore       { return memAccountStore{d} }
func (d *MemoryDirectory) Permissions() PermissionStore { return memPermissionStore{d} }

// AddUser registers a user, assigning an id when absent.
func (d *MemoryDirectory) AddUser(u User) User {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	d.users[u.ID] = u
	return u
}

// AddAccount registers an account, assigning an id when absent.
func (d *MemoryDirectory) AddAccount(a Account) Account {
	d.mu.Lock()
	defer d.mu.Unlock()
	if a.ID == "" {
		a.ID = ids.New()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	d.accounts[a.ID] = a
	return a
}

// Grant binds a user to an account. Granting the same pair twice replaces
// the earlier permission, preserving the one-per-pair invariant.
func (d *MemoryDirectory) Grant(p Permission) Permission {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, existing := range d.permissions {
		if existing.UserID == p.UserID && existing.AccountID == p.AccountID {
			delete(d.permissions, id)
		}
	}
	if p.ID == "" {
		p.ID = ids.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	d.permissions[p.ID] = p
	return p
}

// Revoke removes the grant for the (user, account) pair.
func (d *MemoryDirectory) Revoke(userID, accountID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for id, p := range d.permissions {
		if p.UserID == userID && p.AccountID == accountID {
			delete(d.permissions, id)
		}
	}
}

type memUserStore struct{ d *MemoryDirectory }

func (s memUserStore) Find(ctx context.Context, id string) (*User, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	u, ok := s.d.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (s memUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.d.users {
		if strings.ToLower(u.Email) == email {
			out := u
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

type memAccountStore struct{ d *MemoryDirectory }

func (s memAccountStore) Find(ctx context.Context, id string) (*Account, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	a, ok := s.d.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

type memPermissionStore struct{ d *MemoryDirectory }

func (s memPermissionStore) FindFirst(ctx context.Context, userID string) (*Permission, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	var matches []Permission
	for _, p := range s.d.permissions {
		if p.UserID == userID {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return nil, ErrNotFound
	}
	// Same ordering contract as the SQL store: created_at, then id.
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.Before(matches[j].CreatedAt)
		}
		return matches[i].ID < matches[j].ID
	})
	out := matches[0]
	return &out, nil
}

func (s memPermissionStore) Find(ctx context.Context, userID, accountID string) (*Permission, error) {
	s.d.mu.RLock()
	defer s.d.mu.RUnlock()
	for _, p := range s.d.permissions {
		if p.UserID == userID && p.AccountID == accountID {
			out := p
			return &out, nil
		}
	}
	return nil, ErrNotFound
}
