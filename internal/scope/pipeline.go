// Package scope enforces account isolation on every record operation. Each
// operation kind runs a fixed, ordered interceptor chain that authenticates
// the caller, then rewrites or rejects the operation so no caller can read
// or touch another account's records.
//
// Calls without a credential bypass the chains entirely: they are trusted
// internal calls. An internal caller can opt into enforcement by passing a
// token, behaving exactly like an external client.
package scope

import (
	"context"
	"errors"
	"fmt"

	"fenceline.dev/internal/auth"
	"fenceline.dev/internal/obs"
	"fenceline.dev/internal/resource"
)

// Op is the operation kind a call targets.
type Op string

const (
	OpFind        Op = "find"
	OpGet         Op = "get"
	OpCreate      Op = "create"
	OpUpdate      Op = "update"
	OpPatch       Op = "patch"
	OpRemove      Op = "remove"
	OpAccountSelf Op = "account_self"
)

// State tracks a call through its lifecycle. Rejected is terminal and
// reachable from any state.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateScoped
	StateExecuted
	StateResponded
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateScoped:
		return "scoped"
	case StateExecuted:
		return "executed"
	case StateResponded:
		return "responded"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Call carries one operation through the pipeline. Interceptors mutate the
// filter, payload, and session in place; a scoped get may set Result early
// and short-circuit the store access.
type Call struct {
	Op     Op
	Token  string
	ID     string
	Filter resource.Filter
	Data   map[string]any

	Session *auth.Session
	Result  *resource.Record
	Results []resource.Record
	State   State

	shortCircuit bool
}

// SessionResolver reconstructs a session from a raw token.
type SessionResolver interface {
	Resolve(ctx context.Context, rawToken string) (auth.Session, error)
}

// Pipeline owns the per-operation interceptor chains over one record store.
type Pipeline struct {
	store  resource.Store
	chains map[Op][]Interceptor
}

// New builds a pipeline. The chain per operation is fixed here: the order
// is the isolation contract: authenticate must come first so scoping and
// stamping always see the session account.
func New(resolver SessionResolver, store resource.Store) (*Pipeline, error) {
	if resolver == nil {
		return nil, errors.New("scope: resolver is required")
	}
	if store == nil {
		return nil, errors.New("scope: store is required")
	}
	authn := authenticate{resolver: resolver}
	return &Pipeline{
		store: store,
		chains: map[Op][]Interceptor{
			OpFind:        {authn, scopeQuery{store: store}},
			OpGet:         {authn, scopeQuery{store: store}},
			OpCreate:      {authn, stampWrite{}},
			OpUpdate:      {authn, stampWrite{}},
			OpPatch:       {authn, stampWrite{}},
			OpRemove:      {authn, scopeDelete{store: store}},
			OpAccountSelf: {authn, selfScope{}},
		},
	}, nil
}

// Do runs the call through its chain and then the underlying store
// operation. Any interceptor failure rejects the call before the store is
// touched; no partial write survives a rejection.
func (p *Pipeline) Do(ctx context.Context, c *Call) error {
	if c.Token != "" {
		for _, ic := range p.chains[c.Op] {
			if err := ic.Intercept(ctx, c); err != nil {
				c.State = StateRejected
				obs.AuthDenied(auth.Kind(err))
				return err
			}
		}
	}
	if c.Session != nil {
		ctx = auth.ContextWithSession(ctx, *c.Session)
	}
	if !c.shortCircuit {
		if err := p.execute(ctx, c); err != nil {
			c.State = StateRejected
			return err
		}
		c.State = StateExecuted
	}
	c.State = StateResponded
	return nil
}

func (p *Pipeline) execute(ctx context.Context, c *Call) error {
	switch c.Op {
	case OpFind:
		recs, err := p.store.Find(ctx, c.Filter)
		if err != nil {
			return mapStoreErr(err)
		}
		c.Results = recs
	case OpGet:
		rec, err := p.store.Get(ctx, c.ID)
		if err != nil {
			return mapStoreErr(err)
		}
		c.Result = &rec
	case OpCreate:
		rec, err := p.store.Create(ctx, resource.FromFields(c.Data))
		if err != nil {
			return mapStoreErr(err)
		}
		c.Result = &rec
	case OpUpdate:
		rec, err := p.store.Update(ctx, c.ID, resource.FromFields(c.Data))
		if err != nil {
			return mapStoreErr(err)
		}
		c.Result = &rec
	case OpPatch:
		rec, err := p.store.Patch(ctx, c.ID, c.Data)
		if err != nil {
			return mapStoreErr(err)
		}
		c.Result = &rec
	case OpRemove:
		rec, err := p.store.Remove(ctx, c.ID)
		if err != nil {
			return mapStoreErr(err)
		}
		c.Result = &rec
	case OpAccountSelf:
		// No store access: the chain is the whole operation.
	default:
		return fmt.Errorf("%w: unknown operation %q", auth.ErrBadRequest, c.Op)
	}
	return nil
}

// Find lists records, scoped to the caller's account when a token is given.
func (p *Pipeline) Find(ctx context.Context, token string, filter resource.Filter) ([]resource.Record, error) {
	merged := resource.Filter{}
	for k, v := range filter {
		merged[k] = v
	}
	c := &Call{Op: OpFind, Token: token, Filter: merged}
	if err := p.Do(ctx, c); err != nil {
		return nil, err
	}
	return c.Results, nil
}

// Get fetches one record. Credentialed callers never learn whether a record
// outside their account exists.
func (p *Pipeline) Get(ctx context.Context, token, id string) (resource.Record, error) {
	c := &Call{Op: OpGet, Token: token, ID: id}
	if err := p.Do(ctx, c); err != nil {
		return resource.Record{}, err
	}
	return *c.Result, nil
}

// Create stores a record stamped with the caller's account.
func (p *Pipeline) Create(ctx context.Context, token string, data map[string]any) (resource.Record, error) {
	c := &Call{Op: OpCreate, Token: token, Data: cloneData(data)}
	if err := p.Do(ctx, c); err != nil {
		return resource.Record{}, err
	}
	return *c.Result, nil
}

// Update replaces a record, stamped with the caller's account.
func (p *Pipeline) Update(ctx context.Context, token, id string, data map[string]any) (resource.Record, error) {
	c := &Call{Op: OpUpdate, Token: token, ID: id, Data: cloneData(data)}
	if err := p.Do(ctx, c); err != nil {
		return resource.Record{}, err
	}
	return *c.Result, nil
}

// Patch merges fields into a record, stamped with the caller's account.
func (p *Pipeline) Patch(ctx context.Context, token, id string, data map[string]any) (resource.Record, error) {
	c := &Call{Op: OpPatch, Token: token, ID: id, Data: cloneData(data)}
	if err := p.Do(ctx, c); err != nil {
		return resource.Record{}, err
	}
	return *c.Result, nil
}

// Remove deletes a record after verifying it belongs to the caller's
// account.
func (p *Pipeline) Remove(ctx context.Context, token, id string) (resource.Record, error) {
	c := &Call{Op: OpRemove, Token: token, ID: id}
	if err := p.Do(ctx, c); err != nil {
		return resource.Record{}, err
	}
	return *c.Result, nil
}

// RequireAccountSelf authenticates the token and checks that accountID is
// the session's own account.
func (p *Pipeline) RequireAccountSelf(ctx context.Context, token, accountID string) (auth.Session, error) {
	c := &Call{Op: OpAccountSelf, Token: token, ID: accountID}
	if err := p.Do(ctx, c); err != nil {
		return auth.Session{}, err
	}
	if c.Session == nil {
		return auth.Session{}, fmt.Errorf("%w: credentials required", auth.ErrUnauthenticated)
	}
	return *c.Session, nil
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = v
	}
	return out
}

func mapStoreErr(err error) error {
	if errors.Is(err, resource.ErrNotFound) {
		return fmt.Errorf("%w: record", auth.ErrNotFound)
	}
	if errors.Is(err, resource.ErrInvalid) {
		return fmt.Errorf("%w: %v", auth.ErrBadRequest, err)
	}
	return fmt.Errorf("%w: %v", auth.ErrInternal, err)
}
