package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"messagely/internal/auth"
	"messagely/internal/storage"
)

func bootstrapServer(t *testing.T) (*httptest.Server, *auth.TokenService) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	tokens := auth.NewTokenService([]byte("test-secret"))
	hasher := auth.NewPasswordHasher(bcrypt.MinCost)

	srv, err := NewServer(logger.Sugar(), newMemStore(), tokens, hasher)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.cfg.httpServer.Handler)
	t.Cleanup(ts.Close)

	return ts, tokens
}

func doRequest(t *testing.T, method, url, token, body string) (int, []byte) {
	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, payload
}

func registerViaAPI(t *testing.T, ts *httptest.Server, username, password string) string {
	code, body := doRequest(t, "POST", ts.URL+"/register", "",
		`{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusCreated, code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	require.NotEmpty(t, resp.Token)

	return resp.Token
}

// TestMessagingScenario runs the register, send, fetch, mark-read flow
// through the full middleware chain with real bearer tokens.
func TestMessagingScenario(t *testing.T) {
	t.Parallel()

	ts, tokens := bootstrapServer(t)

	aliceToken := registerViaAPI(t, ts, "alice", "pw1")
	bobToken := registerViaAPI(t, ts, "bob", "pw2")

	// alice sends a message to bob
	code, body := doRequest(t, "POST", ts.URL+"/messages", aliceToken,
		`{"to_username":"bob","body":"hi bob"}`)
	require.Equal(t, http.StatusCreated, code)

	var created struct {
		Message storage.Message `json:"message"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.Equal(t, "alice", created.Message.FromUsername)
	require.Nil(t, created.Message.ReadAt)

	messageURL := ts.URL + "/messages/" + strconv.FormatInt(created.Message.ID, 10)

	// bob fetches the message by id
	code, body = doRequest(t, "GET", messageURL, bobToken, "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), "hi bob")

	// carol holds a validly signed token but is not a participant
	carolToken, err := tokens.Sign("carol")
	require.NoError(t, err)

	code, body = doRequest(t, "GET", messageURL, carolToken, "")
	require.Equal(t, http.StatusUnauthorized, code)
	require.NotContains(t, string(body), "hi bob")

	// bob marks the message read
	code, body = doRequest(t, "POST", messageURL+"/read", bobToken, "")
	require.Equal(t, http.StatusOK, code)

	var marked struct {
		Message struct {
			ReadAt *string `json:"read_at"`
		} `json:"message"`
	}
	require.NoError(t, json.Unmarshal(body, &marked))
	require.NotNil(t, marked.Message.ReadAt)

	// alice is the sender, not the recipient
	code, _ = doRequest(t, "POST", messageURL+"/read", aliceToken, "")
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestServerGuardedRoutes(t *testing.T) {
	t.Parallel()

	ts, _ := bootstrapServer(t)

	aliceToken := registerViaAPI(t, ts, "alice", "pw1")
	bobToken := registerViaAPI(t, ts, "bob", "pw2")

	// every guarded route denies a tokenless request uniformly
	for _, route := range []string{"/users", "/users/alice", "/users/alice/to", "/users/alice/from", "/messages/1"} {
		code, body := doRequest(t, "GET", ts.URL+route, "", "")
		require.Equal(t, http.StatusUnauthorized, code, route)
		require.Equal(t, "Unauthorized\n", string(body), route)
	}

	// any authenticated identity may list users
	code, body := doRequest(t, "GET", ts.URL+"/users", bobToken, "")
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), `"username":"alice"`)

	// bob may not read alice's message history
	code, _ = doRequest(t, "GET", ts.URL+"/users/alice/to", bobToken, "")
	require.Equal(t, http.StatusUnauthorized, code)

	// alice may read her own
	code, _ = doRequest(t, "GET", ts.URL+"/users/alice/to", aliceToken, "")
	require.Equal(t, http.StatusOK, code)
}

func TestServerLogin(t *testing.T) {
	t.Parallel()

	ts, _ := bootstrapServer(t)

	registerViaAPI(t, ts, "alice", "pw1")

	code, body := doRequest(t, "POST", ts.URL+"/login", "", `{"username":"alice","password":"pw1"}`)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, string(body), "token")

	code, _ = doRequest(t, "POST", ts.URL+"/login", "", `{"username":"alice","password":"wrong"}`)
	require.Equal(t, http.StatusBadRequest, code)
}
