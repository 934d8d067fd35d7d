package scope

import (
	"context"
	"errors"
	"testing"
	"time"

	"fenceline.dev/internal/auth"
	"fenceline.dev/internal/resource"
)

type env struct {
	dir      *auth.MemoryDirectory
	store    *resource.Memory
	pipeline *Pipeline
	issuer   *auth.Issuer

	user    auth.User
	first   auth.Account
	second  auth.Account
	tokenA1 string
}

// newEnv wires a user holding grants in two accounts, the earlier grant in
// env.first, plus a token from a password login (bound to env.first).
func newEnv(t *testing.T) *env {
	t.Helper()

	dir := auth.NewMemoryDirectory()
	hash, err := auth.HashPassword("s3cret")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	user := dir.AddUser(auth.User{Email: "u1@example.com", PasswordHash: hash})
	first := dir.AddAccount(auth.Account{Name: "a1"})
	second := dir.AddAccount(auth.Account{Name: "a2"})

	base := time.Now().UTC().Add(-time.Hour)
	dir.Grant(auth.Permission{UserID: user.ID, AccountID: first.ID, CreatedAt: base})
	dir.Grant(auth.Permission{UserID: user.ID, AccountID: second.ID, CreatedAt: base.Add(time.Minute)})

	codec, err := auth.NewCodec("test-secret", "test-issuer")
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	issuer, err := auth.NewIssuer(codec, dir)
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	resolver, err := auth.NewResolver(codec, dir)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	store := resource.NewMemory()
	pipeline, err := New(resolver, store)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	grant, err := issuer.Issue(context.Background(), auth.Credentials{
		Strategy: auth.StrategyPassword,
		Email:    user.Email,
		Password: "s3cret",
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if grant.AccountID != first.ID {
		t.Fatalf("login bound to %s, want earliest account %s", grant.AccountID, first.ID)
	}

	return &env{
		dir:      dir,
		store:    store,
		pipeline: pipeline,
		issuer:   issuer,
		user:     user,
		first:    first,
		second:   second,
		tokenA1:  grant.AccessToken,
	}
}

// seed creates a record directly through the store, outside the pipeline.
func (e *env) seed(t *testing.T, accountID, title string) resource.Record {
	t.Helper()
	rec, err := e.store.Create(context.Background(), resource.FromFields(map[string]any{
		"title":      title,
		"account_id": accountID,
	}))
	if err != nil {
		t.Fatalf("seed %s/%s: %v", accountID, title, err)
	}
	return rec
}

// The end-to-end isolation scenario: a password login for a user holding
// grants in two accounts lands in the earliest one, a create claiming the
// other account is restamped, and a list shows only the session's account.
func TestLoginCreateListIsolation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	created, err := e.pipeline.Create(ctx, e.tokenA1, map[string]any{
		"title":      "x",
		"account_id": e.second.ID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.AccountID != e.first.ID {
		t.Fatalf("stored account %s, want %s", created.AccountID, e.first.ID)
	}

	e.seed(t, e.second.ID, "other-account post")

	recs, err := e.pipeline.Find(ctx, e.tokenA1, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 visible record, got %d", len(recs))
	}
	if recs[0].AccountID != e.first.ID {
		t.Fatalf("leaked record owned by %s", recs[0].AccountID)
	}
}

func TestFindOverwritesCallerAccountFilter(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, e.first.ID, "mine")
	e.seed(t, e.second.ID, "theirs")

	recs, err := e.pipeline.Find(ctx, e.tokenA1, resource.Filter{"account_id": e.second.ID})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	for _, rec := range recs {
		if rec.AccountID != e.first.ID {
			t.Fatalf("caller filter escaped scoping: saw %s", rec.AccountID)
		}
	}
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
}

func TestGetOwnRecord(t *testing.T) {
	e := newEnv(t)
	mine := e.seed(t, e.first.ID, "mine")

	rec, err := e.pipeline.Get(context.Background(), e.tokenA1, mine.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.ID != mine.ID || rec.Fields["title"] != "mine" {
		t.Fatalf("unexpected record %+v", rec)
	}
}

// Cross-account get and get of a nonexistent id fail identically so record
// existence never leaks across accounts.
func TestGetDoesNotLeakExistence(t *testing.T) {
	e := newEnv(t)
	theirs := e.seed(t, e.second.ID, "theirs")
	ctx := context.Background()

	_, errCross := e.pipeline.Get(ctx, e.tokenA1, theirs.ID)
	if !errors.Is(errCross, auth.ErrForbidden) {
		t.Fatalf("cross-account get: expected ErrForbidden, got %v", errCross)
	}
	_, errMissing := e.pipeline.Get(ctx, e.tokenA1, "no-such-id")
	if !errors.Is(errMissing, auth.ErrForbidden) {
		t.Fatalf("missing get: expected ErrForbidden, got %v", errMissing)
	}
}

func TestUpdateAndPatchStampOwner(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mine := e.seed(t, e.first.ID, "before")

	updated, err := e.pipeline.Update(ctx, e.tokenA1, mine.ID, map[string]any{
		"title":      "after",
		"account_id": e.second.ID,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.AccountID != e.first.ID {
		t.Fatalf("update rebound owner to %s", updated.AccountID)
	}

	patched, err := e.pipeline.Patch(ctx, e.tokenA1, mine.ID, map[string]any{
		"account_id": e.second.ID,
	})
	if err != nil {
		t.Fatalf("Patch: %v", err)
	}
	if patched.AccountID != e.first.ID {
		t.Fatalf("patch rebound owner to %s", patched.AccountID)
	}
	if patched.Fields["title"] != "after" {
		t.Fatalf("patch dropped fields: %v", patched.Fields)
	}
}

func TestRemoveAcrossAccountsLeavesRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	theirs := e.seed(t, e.second.ID, "theirs")

	_, err := e.pipeline.Remove(ctx, e.tokenA1, theirs.ID)
	if !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	// The record must be unchanged afterwards.
	still, err := e.store.Get(ctx, theirs.ID)
	if err != nil {
		t.Fatalf("record vanished after denied delete: %v", err)
	}
	if still.AccountID != e.second.ID {
		t.Fatalf("record mutated after denied delete: %+v", still)
	}
}

func TestRemoveOwnRecord(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mine := e.seed(t, e.first.ID, "mine")

	removed, err := e.pipeline.Remove(ctx, e.tokenA1, mine.ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if removed.ID != mine.ID {
		t.Fatalf("removed wrong record %s", removed.ID)
	}
	if _, err := e.store.Get(ctx, mine.ID); !errors.Is(err, resource.ErrNotFound) {
		t.Fatalf("record survived delete: %v", err)
	}
}

func TestRemoveMissingIsNotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.pipeline.Remove(context.Background(), e.tokenA1, "no-such-id")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// Calls without a credential bypass the chains: they see and write
// everything. Passing a token opts back into enforcement.
func TestInternalCallsBypassChains(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, e.first.ID, "mine")
	e.seed(t, e.second.ID, "theirs")

	all, err := e.pipeline.Find(ctx, "", nil)
	if err != nil {
		t.Fatalf("internal Find: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("internal call should see both records, got %d", len(all))
	}

	scoped, err := e.pipeline.Find(ctx, e.tokenA1, nil)
	if err != nil {
		t.Fatalf("opt-in Find: %v", err)
	}
	if len(scoped) != 1 {
		t.Fatalf("opt-in call should be scoped, got %d records", len(scoped))
	}
}

func TestInvalidTokenRejectsOperation(t *testing.T) {
	e := newEnv(t)
	_, err := e.pipeline.Find(context.Background(), "bogus-token", nil)
	if !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestRequireAccountSelf(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	session, err := e.pipeline.RequireAccountSelf(ctx, e.tokenA1, e.first.ID)
	if err != nil {
		t.Fatalf("RequireAccountSelf(own): %v", err)
	}
	if session.AccountID() != e.first.ID {
		t.Fatalf("unexpected session account %s", session.AccountID())
	}

	_, err = e.pipeline.RequireAccountSelf(ctx, e.tokenA1, e.second.ID)
	if !errors.Is(err, auth.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest for foreign account, got %v", err)
	}
}

func TestCallLifecycleStates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	mine := e.seed(t, e.first.ID, "mine")

	ok := &Call{Op: OpGet, Token: e.tokenA1, ID: mine.ID}
	if err := e.pipeline.Do(ctx, ok); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if ok.State != StateResponded {
		t.Fatalf("expected responded, got %s", ok.State)
	}
	if ok.Result == nil || ok.Result.ID != mine.ID {
		t.Fatal("scoped get did not short-circuit a result")
	}

	bad := &Call{Op: OpGet, Token: "bogus", ID: mine.ID}
	if err := e.pipeline.Do(ctx, bad); err == nil {
		t.Fatal("expected rejection")
	}
	if bad.State != StateRejected {
		t.Fatalf("expected rejected, got %s", bad.State)
	}

	theirs := e.seed(t, e.second.ID, "theirs")
	denied := &Call{Op: OpRemove, Token: e.tokenA1, ID: theirs.ID}
	if err := e.pipeline.Do(ctx, denied); err == nil {
		t.Fatal("expected rejection")
	}
	if denied.State != StateRejected {
		t.Fatalf("expected rejected, got %s", denied.State)
	}
}

// Refreshing keeps the original account binding, so a refreshed token sees
// the same slice of data.
func TestRefreshedTokenKeepsScope(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seed(t, e.first.ID, "mine")
	e.seed(t, e.second.ID, "theirs")

	refreshed, err := e.issuer.Issue(ctx, auth.Credentials{
		Strategy:    auth.StrategyRefresh,
		AccessToken: e.tokenA1,
	})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	recs, err := e.pipeline.Find(ctx, refreshed.AccessToken, nil)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(recs) != 1 || recs[0].AccountID != e.first.ID {
		t.Fatalf("refreshed token scope changed: %v", recs)
	}
}
