package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Credential strategies accepted by the issuer.
const (
	StrategyPassword = "password"
	StrategyRefresh  = "refresh"
)

// Credentials is the input to Issue. Strategy selects which fields matter:
// Email/Password for password logins, AccessToken for refreshes.
type Credentials struct {
	Strategy    string
	Email       string
	Password    string
	AccessToken string
}

// Grant is a freshly minted access token and its binding.
type Grant struct {
	AccessToken string
	ExpiresAt   time.Time
	UserID      string
	AccountID   string
}

// Issuer authenticates a principal and mints a token bound to exactly one
// account.
//
// There is no revocation: tokens are stateless and self-expiring, so
// "logging out" is a client-side discard. A grant revoked after issuance
// stays usable until the outstanding token expires.
type Issuer struct {
	codec *Codec
	dir   Directory
}

// NewIssuer builds an Issuer over the given codec and directory.
func NewIssuer(codec *Codec, dir Directory) (*Issuer, error) {
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	if dir == nil {
		return nil, errors.New("auth: directory is required")
	}
	return &Issuer{codec: codec, dir: dir}, nil
}

// Issue authenticates the credentials and returns a new grant.
func (i *Issuer) Issue(ctx context.Context, creds Credentials) (Grant, error) {
	switch creds.Strategy {
	case StrategyPassword:
		return i.issuePassword(ctx, creds)
	case StrategyRefresh:
		return i.issueRefresh(ctx, creds)
	default:
		return Grant{}, fmt.Errorf("%w: unknown strategy %q", ErrBadRequest, creds.Strategy)
	}
}

// issuePassword verifies the password and binds the token to the user's
// earliest grant. Which account a bare login lands in is otherwise
// unspecified, so the store's creation-order contract is the tie-break.
func (i *Issuer) issuePassword(ctx context.Context, creds Credentials) (Grant, error) {
	email := strings.TrimSpace(strings.ToLower(creds.Email))
	if email == "" || creds.Password == "" {
		return Grant{}, fmt.Errorf("%w: email and password are required", ErrBadRequest)
	}

	user, err := i.dir.Users().FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Grant{}, fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
		}
		return Grant{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if user.Status != UserStatusActive {
		return Grant{}, fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	}
	if err := VerifyPassword(user.PasswordHash, creds.Password); err != nil {
		return Grant{}, fmt.Errorf("%w: invalid credentials", ErrUnauthenticated)
	}

	perm, err := i.dir.Permissions().FindFirst(ctx, user.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Grant{}, ErrUserInactive
		}
		return Grant{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return i.mint(user.ID, perm.AccountID)
}

// issueRefresh re-authenticates with an existing token. The new token keeps
// the account binding of the presented token, even when the user also holds
// grants for other accounts; only the grant for that account is re-checked.
func (i *Issuer) issueRefresh(ctx context.Context, creds Credentials) (Grant, error) {
	claims, err := i.codec.Verify(creds.AccessToken)
	if err != nil {
		return Grant{}, err
	}

	_, err = i.dir.Permissions().Find(ctx, claims.Subject, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Grant{}, ErrUserRemovedFromAccount
		}
		return Grant{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return i.mint(claims.Subject, claims.AccountID)
}

func (i *Issuer) mint(userID, accountID string) (Grant, error) {
	token, exp, err := i.codec.Sign(userID, accountID)
	if err != nil {
		return Grant{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return Grant{
		AccessToken: token,
		ExpiresAt:   exp,
		UserID:      userID,
		AccountID:   accountID,
	}, nil
}
