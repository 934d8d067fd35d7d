package auth

import "time"

// User is an authenticatable identity, independent of any account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	UserStatusActive   = "active"
	UserStatusDisabled = "disabled"
)

// Account is the isolation boundary every owned resource belongs to.
type Account struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	PlanID    string    `json:"plan_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Permission binds one user to one account with capability flags. At most
// one permission exists per (user, account) pair.
type Permission struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	AccountID string          `json:"account_id"`
	Rights    map[string]bool `json:"rights,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Can reports whether the permission carries the named capability flag.
func (p *Permission) Can(right string) bool {
	if p == nil {
		return false
	}
	return p.Rights[right]
}

// Session is the per-request trust context rebuilt from a verified token.
// It is never cached across requests. Permission may be nil: a grant revoked
// after issuance does not invalidate outstanding tokens (see Resolver).
type Session struct {
	User       User
	Account    Account
	Permission *Permission
}

// AccountID returns the account the session is bound to. It always equals
// the account id inside the token the session was resolved from.
func (s Session) AccountID() string {
	return s.Account.ID
}
