package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUserPasswordNeverSerialized(t *testing.T) {
	t.Parallel()

	u := User{
		Username:  "alice",
		Password:  "$2a$12$secret-hash",
		FirstName: "Alice",
	}

	payload, err := json.Marshal(u)
	require.NoError(t, err)
	require.NotContains(t, string(payload), "password")
	require.NotContains(t, string(payload), "secret-hash")
}

func TestMessageUnreadSerializesNullReadAt(t *testing.T) {
	t.Parallel()

	m := Message{
		ID:           1,
		FromUsername: "alice",
		ToUsername:   "bob",
		Body:         "hi",
		SentAt:       time.Now(),
	}

	payload, err := json.Marshal(m)
	require.NoError(t, err)
	require.Contains(t, string(payload), `"read_at":null`)
}
