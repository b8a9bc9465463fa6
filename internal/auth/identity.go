package auth

import "context"

// Identity is the acting username resolved from a verified token. It lives
// only for the duration of a single request and is never persisted.
type Identity struct {
	Username string
}

type contextKey string

var identityKey contextKey

// NewContext returns a context carrying the resolved identity for the
// remainder of the request
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFromContext extracts an identity previously set by NewContext.
// ok is false for an unauthenticated request context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// Resolver resolves bearer tokens into identities
type Resolver struct {
	tokens *TokenService
}

// NewResolver returns a Resolver verifying tokens with the provided TokenService
func NewResolver(tokens *TokenService) *Resolver {
	return &Resolver{tokens: tokens}
}

// Resolve verifies the provided token and returns the embedded identity.
// Any verification failure (absent, malformed, wrong signature) yields
// ok == false rather than an error: an unresolvable token simply leaves
// the request unauthenticated.
func (r *Resolver) Resolve(token string) (Identity, bool) {
	username, err := r.tokens.Verify(token)
	if err != nil || username == "" {
		return Identity{}, false
	}
	return Identity{Username: username}, true
}
