package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"messagely/internal/storage"
)

type recipientLookupFunc func(ctx context.Context, id int64) (string, error)

func (f recipientLookupFunc) MessageRecipient(ctx context.Context, id int64) (string, error) {
	return f(ctx, id)
}

func authedContext(username string) context.Context {
	return NewContext(context.Background(), Identity{Username: username})
}

func TestRequireAuthenticated(t *testing.T) {
	t.Parallel()

	require.True(t, RequireAuthenticated(authedContext("alice")).Allowed())
	require.False(t, RequireAuthenticated(context.Background()).Allowed())
	require.False(t, RequireAuthenticated(authedContext("")).Allowed())
}

func TestRequireMatchingUsername(t *testing.T) {
	t.Parallel()

	require.True(t, RequireMatchingUsername(authedContext("alice"), "alice").Allowed())
	require.False(t, RequireMatchingUsername(authedContext("bob"), "alice").Allowed())
	require.False(t, RequireMatchingUsername(context.Background(), "alice").Allowed())
	require.False(t, RequireMatchingUsername(authedContext(""), "").Allowed())
}

func TestRequireParticipant(t *testing.T) {
	t.Parallel()

	msg := storage.Message{ID: 1, FromUsername: "alice", ToUsername: "bob"}

	require.True(t, RequireParticipant(authedContext("alice"), msg).Allowed())
	require.True(t, RequireParticipant(authedContext("bob"), msg).Allowed())
	require.False(t, RequireParticipant(authedContext("carol"), msg).Allowed())
	require.False(t, RequireParticipant(context.Background(), msg).Allowed())
}

func TestRequireParticipantFailsClosedOnEmptyMessage(t *testing.T) {
	t.Parallel()

	// a message with unset participants must never match anyone
	require.False(t, RequireParticipant(authedContext(""), storage.Message{}).Allowed())
	require.False(t, RequireParticipant(context.Background(), storage.Message{}).Allowed())
}

func TestRequireRecipientByID(t *testing.T) {
	t.Parallel()

	lookup := recipientLookupFunc(func(_ context.Context, id int64) (string, error) {
		if id == 1 {
			return "bob", nil
		}
		return "", storage.ErrMessageNotExist
	})

	require.True(t, RequireRecipientByID(authedContext("bob"), lookup, 1).Allowed())
	require.False(t, RequireRecipientByID(authedContext("alice"), lookup, 1).Allowed())
	require.False(t, RequireRecipientByID(context.Background(), lookup, 1).Allowed())
}

func TestRequireRecipientByIDMissingMessage(t *testing.T) {
	t.Parallel()

	lookup := recipientLookupFunc(func(_ context.Context, _ int64) (string, error) {
		return "", storage.ErrMessageNotExist
	})

	// a missing message denies rather than surfacing not-found
	d := RequireRecipientByID(authedContext("bob"), lookup, 42)
	require.False(t, d.Allowed())
	require.NotEmpty(t, d.Reason())
}

func TestRequireRecipientByIDLookupFault(t *testing.T) {
	t.Parallel()

	lookup := recipientLookupFunc(func(_ context.Context, _ int64) (string, error) {
		return "", errors.New("connection reset")
	})

	// a store fault during evaluation denies instead of propagating
	require.False(t, RequireRecipientByID(authedContext("bob"), lookup, 1).Allowed())
}

func TestRequireRecipientByIDSkipsLookupWhenUnauthenticated(t *testing.T) {
	t.Parallel()

	called := false
	lookup := recipientLookupFunc(func(_ context.Context, _ int64) (string, error) {
		called = true
		return "bob", nil
	})

	require.False(t, RequireRecipientByID(context.Background(), lookup, 1).Allowed())
	require.False(t, called)
}

func TestDecisionZeroValueDenies(t *testing.T) {
	t.Parallel()

	var d Decision
	require.False(t, d.Allowed())
}
