package scope

import (
	"context"
	"errors"
	"fmt"

	"fenceline.dev/internal/audit"
	"fenceline.dev/internal/auth"
	"fenceline.dev/internal/resource"
)

// Interceptor is one step of an operation chain. Implementations mutate the
// call in place and fail it by returning an error.
type Interceptor interface {
	Name() string
	Intercept(ctx context.Context, c *Call) error
}

// authenticate resolves the session from the call token. It runs first in
// every chain; the later interceptors assume c.Session is set.
type authenticate struct {
	resolver SessionResolver
}

func (authenticate) Name() string { return "authenticate" }

func (a authenticate) Intercept(ctx context.Context, c *Call) error {
	session, err := a.resolver.Resolve(ctx, c.Token)
	if err != nil {
		return err
	}
	c.Session = &session
	c.State = StateAuthenticated
	return nil
}

// scopeQuery confines reads to the session account. A find gets the account
// forced into its filter; a get becomes a filtered single-record lookup
// that bypasses the unscoped fetch.
type scopeQuery struct {
	store resource.Store
}

func (scopeQuery) Name() string { return "scope_query" }

func (s scopeQuery) Intercept(ctx context.Context, c *Call) error {
	accountID := c.Session.AccountID()
	switch c.Op {
	case OpFind:
		// Overwrites any caller-supplied account filter.
		c.Filter["account_id"] = accountID
	case OpGet:
		recs, err := s.store.Find(ctx, resource.Filter{"id": c.ID, "account_id": accountID})
		if err != nil {
			return mapStoreErr(err)
		}
		if len(recs) == 0 {
			// Forbidden whether the record lives elsewhere or nowhere:
			// existence must not leak across accounts.
			return fmt.Errorf("%w: record %s", auth.ErrForbidden, c.ID)
		}
		rec := recs[0]
		c.Result = &rec
		c.shortCircuit = true
	}
	c.State = StateScoped
	return nil
}

// stampWrite forces the session account into the write payload, regardless
// of what the caller supplied.
type stampWrite struct{}

func (stampWrite) Name() string { return "stamp_write" }

func (stampWrite) Intercept(ctx context.Context, c *Call) error {
	accountID := c.Session.AccountID()
	if c.Data == nil {
		c.Data = map[string]any{}
	}
	if supplied, ok := c.Data["account_id"]; ok && supplied != accountID {
		_ = audit.LogEvent(ctx, "scope.write.restamped", map[string]any{
			"op":       string(c.Op),
			"supplied": fmt.Sprint(supplied),
			"stamped":  accountID,
			"user_id":  c.Session.User.ID,
		})
	}
	c.Data["account_id"] = accountID
	c.State = StateScoped
	return nil
}

// scopeDelete verifies ownership before a delete is allowed through. The
// record is loaded in full first: a missing record is NotFound, a record
// owned elsewhere is Forbidden, and only a match lets the delete proceed
// unmodified.
type scopeDelete struct {
	store resource.Store
}

func (scopeDelete) Name() string { return "scope_delete" }

func (s scopeDelete) Intercept(ctx context.Context, c *Call) error {
	rec, err := s.store.Get(ctx, c.ID)
	if err != nil {
		if errors.Is(err, resource.ErrNotFound) {
			return fmt.Errorf("%w: record %s", auth.ErrNotFound, c.ID)
		}
		return mapStoreErr(err)
	}
	if rec.AccountID != c.Session.AccountID() {
		_ = audit.LogEvent(ctx, "scope.delete.denied", map[string]any{
			"record_id": c.ID,
			"owner":     rec.AccountID,
			"caller":    c.Session.AccountID(),
			"user_id":   c.Session.User.ID,
		})
		return fmt.Errorf("%w: record %s", auth.ErrForbidden, c.ID)
	}
	c.State = StateScoped
	return nil
}

// selfScope guards account routes: the route's account id must be the
// session's own account.
type selfScope struct{}

func (selfScope) Name() string { return "self_scope" }

func (selfScope) Intercept(ctx context.Context, c *Call) error {
	if c.ID != c.Session.AccountID() {
		return fmt.Errorf("%w: cannot access account %s", auth.ErrBadRequest, c.ID)
	}
	c.State = StateScoped
	return nil
}
