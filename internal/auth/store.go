package auth

import "context"

// Directory describes the persistence operations the auth core consumes.
// All operations are reads; user/account lifecycle and grant administration
// live outside this module.
type Directory interface {
	Users() UserStore
	Accounts() AccountStore
	Permissions() PermissionStore
}

// UserStore looks up users.
type UserStore interface {
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// AccountStore looks up accounts.
type AccountStore interface {
	Find(ctx context.Context, id string) (*Account, error)
}

// PermissionStore looks up user-account grants.
type PermissionStore interface {
	// FindFirst returns the user's earliest grant, ordered by creation
	// time with id as tie-break. Password logins land in this account.
	FindFirst(ctx context.Context, userID string) (*Permission, error)
	// Find returns the unique grant for the (user, account) pair.
	Find(ctx context.Context, userID, accountID string) (*Permission, error)
}
