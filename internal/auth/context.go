package auth

import "context"

type sessionContextKey struct{}
type tokenContextKey struct{}

// ContextWithSession attaches the resolved session to the context.
func ContextWithSession(ctx context.Context, session Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, &session)
}

// SessionFromContext extracts the session if a credentialed caller was
// resolved earlier in the request. The second return is false for calls
// that supplied no token.
func SessionFromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return Session{}, false
	}
	return *v, true
}

// ContextWithToken stores the raw bearer token in the context.
func ContextWithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// TokenFromContext returns the raw bearer token if one was attached.
func TokenFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(tokenContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
