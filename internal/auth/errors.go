package auth

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the auth core. Handlers map these to transport
// status codes; everything else is treated as ErrInternal.
var (
	ErrUnauthenticated = errors.New("auth: unauthenticated")
	ErrForbidden       = errors.New("auth: forbidden")
	ErrNotFound        = errors.New("auth: not found")
	ErrBadRequest      = errors.New("auth: bad request")
	ErrInternal        = errors.New("auth: internal")
)

// Distinct refusal messages, both ErrUnauthenticated: ErrUserInactive means
// the user holds no grant at all (password login), ErrUserRemovedFromAccount
// that the grant for the token's account was revoked (refresh).
var (
	ErrUserInactive = fmt.Errorf(
		"%w: this user is inactive; ask an administrator to invite you to their organization",
		ErrUnauthenticated)
	ErrUserRemovedFromAccount = fmt.Errorf(
		"%w: this user is no longer active in this account; ask an administrator to invite you again",
		ErrUnauthenticated)
)

// Kind returns the metric/log label for an auth error.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	default:
		return "internal"
	}
}
