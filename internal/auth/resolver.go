package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Resolver rebuilds a trusted Session from a raw token on every request.
type Resolver struct {
	codec *Codec
	dir   Directory
}

// NewResolver builds a Resolver over the given codec and directory.
func NewResolver(codec *Codec, dir Directory) (*Resolver, error) {
	if codec == nil {
		return nil, errors.New("auth: codec is required")
	}
	if dir == nil {
		return nil, errors.New("auth: directory is required")
	}
	return &Resolver{codec: codec, dir: dir}, nil
}

// Resolve verifies the token and assembles the session from live lookups of
// the user, the account, and the grant binding them. The three fetches are
// independent reads and run concurrently.
//
// The grant is NOT required to still exist: permissions are checked at
// issuance and refresh only, so a revoked grant keeps working until the
// token expires. Session.Permission is nil in that window.
func (r *Resolver) Resolve(ctx context.Context, rawToken string) (Session, error) {
	claims, err := r.codec.Verify(rawToken)
	if err != nil {
		return Session{}, err
	}

	var (
		user *User
		acct *Account
		perm *Permission
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = r.dir.Users().Find(gctx, claims.Subject)
		if err != nil {
			return fmt.Errorf("user %s: %w", claims.Subject, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		acct, err = r.dir.Accounts().Find(gctx, claims.AccountID)
		if err != nil {
			return fmt.Errorf("account %s: %w", claims.AccountID, err)
		}
		return nil
	})
	g.Go(func() error {
		p, err := r.dir.Permissions().Find(gctx, claims.Subject, claims.AccountID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: permission lookup: %v", ErrInternal, err)
		}
		perm = p
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Session{}, err
		}
		if errors.Is(err, ErrInternal) {
			return Session{}, err
		}
		return Session{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	return Session{User: *user, Account: *acct, Permission: perm}, nil
}
