package auth

import (
	"context"

	"messagely/internal/storage"
)

// Decision is the result of a guard evaluation. The zero value is a deny.
type Decision struct {
	allowed bool
	reason  string
}

// Allow returns an allowing decision
func Allow() Decision {
	return Decision{allowed: true}
}

// Deny returns a denying decision with an internal reason. The reason is
// for logging only and must never reach the caller: every deny surfaces
// as the same uniform unauthorized outcome.
func Deny(reason string) Decision {
	return Decision{reason: reason}
}

// Allowed reports whether the guard allowed the request
func (d Decision) Allowed() bool {
	return d.allowed
}

// Reason returns the internal deny reason, empty for an allow
func (d Decision) Reason() string {
	return d.reason
}

// RecipientLookup resolves a message id to its recipient username.
// Implemented by storage.Store.
type RecipientLookup interface {
	MessageRecipient(ctx context.Context, id int64) (string, error)
}

// RequireAuthenticated allows any request carrying a resolved identity
func RequireAuthenticated(ctx context.Context) Decision {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Username == "" {
		return Deny("no identity")
	}
	return Allow()
}

// RequireMatchingUsername allows only the request whose identity matches
// the target username. Whether a user with the target username exists is
// deliberately not consulted: a mismatch denies without confirming
// existence.
func RequireMatchingUsername(ctx context.Context, target string) Decision {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Username == "" {
		return Deny("no identity")
	}
	if target == "" || id.Username != target {
		return Deny("username mismatch")
	}
	return Allow()
}

// RequireParticipant allows only the sender or the recipient of msg
func RequireParticipant(ctx context.Context, msg storage.Message) Decision {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.Username == "" {
		return Deny("no identity")
	}
	if id.Username != msg.FromUsername && id.Username != msg.ToUsername {
		return Deny("not a message participant")
	}
	return Allow()
}

// RequireRecipientByID allows only the recipient of the message with the
// provided id. The recipient is looked up during evaluation; a missing
// message or a failing lookup denies rather than propagating, so callers
// need no separate existence check.
func RequireRecipientByID(ctx context.Context, lookup RecipientLookup, id int64) Decision {
	identity, ok := IdentityFromContext(ctx)
	if !ok || identity.Username == "" {
		return Deny("no identity")
	}

	recipient, err := lookup.MessageRecipient(ctx, id)
	if err != nil {
		return Deny("recipient lookup failed")
	}
	if recipient == "" || identity.Username != recipient {
		return Deny("not the message recipient")
	}
	return Allow()
}
